// Package reporting renders session results: the per-test result stream on
// the console and the JSON report document written at session end.
package reporting

import (
	"time"

	"github.com/ethereum-optimism/infra/wetest/docstring"
	"github.com/ethereum-optimism/infra/wetest/types"
)

// Document is the JSON report written at the end of an active session.
type Document struct {
	Title    *string  `json:"title"`
	Tests    []Record `json:"tests"`
	Created  float64  `json:"created"`
	Duration float64  `json:"duration"`
	ExitCode int      `json:"exitcode"`
	Root     string   `json:"root"`
	Summary  Summary  `json:"summary"`
}

// Record is the final outcome of one test. Records are appended in execution
// order and never modified afterwards.
type Record struct {
	NodeID   string              `json:"nodeid"`
	Outcome  string              `json:"outcome"`
	Metadata *docstring.Metadata `json:"metadata,omitempty"`
	Title    string              `json:"title,omitempty"`
	Package  string              `json:"package"`
	Markers  []string            `json:"markers,omitempty"`
	Duration float64             `json:"duration"`
	Reason   string              `json:"reason,omitempty"`
}

// Summary holds the outcome counts of the session.
type Summary struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

// ReportBuilder accumulates records and assembles the final document.
type ReportBuilder struct {
	title   *string
	records []Record
}

// NewReportBuilder creates a builder. A nil title is serialized as null.
func NewReportBuilder(title *string) *ReportBuilder {
	return &ReportBuilder{title: title, records: make([]Record, 0)}
}

// Add appends the record for result.
func (rb *ReportBuilder) Add(result *types.TestResult) {
	rb.records = append(rb.records, NewRecord(result))
}

// Records returns the records collected so far.
func (rb *ReportBuilder) Records() []Record {
	return rb.records
}

// Build assembles the document for a finished session.
func (rb *ReportBuilder) Build(summary types.RunSummary, created time.Time) *Document {
	return &Document{
		Title:    rb.title,
		Tests:    rb.records,
		Created:  unixSeconds(created),
		Duration: summary.Duration.Seconds(),
		ExitCode: summary.ExitCode,
		Root:     summary.Root,
		Summary: Summary{
			Passed:  summary.Stats.Passed,
			Failed:  summary.Stats.Failed,
			Skipped: summary.Stats.Skipped,
			Total:   summary.Stats.Total,
		},
	}
}

// NewRecord converts a test result into its report record.
func NewRecord(result *types.TestResult) Record {
	rec := Record{
		NodeID:   result.DisplayName(),
		Outcome:  result.Status.Outcome(),
		Metadata: result.Metadata,
		Title:    result.Title,
		Package:  result.Case.Package,
		Markers:  result.Case.Markers(),
		Duration: result.Duration.Seconds(),
	}
	if result.Status != types.TestStatusPass {
		rec.Reason = result.Reason
	}
	return rec
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
