package reporting

import (
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/wetest/metrics"
	"github.com/ethereum-optimism/infra/wetest/types"
)

// WriteError is returned by Complete when the report could not be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write report %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Assembler collects one record per finished test and writes the report
// document once the session completes.
type Assembler struct {
	builder *ReportBuilder
	writer  ReportWriter
	path    string
	out     io.Writer
	log     log.Logger
	now     func() time.Time
}

// AssemblerConfig configures an Assembler
type AssemblerConfig struct {
	Path  string  // destination shown in the confirmation line
	Title *string // nil is written as null
	// Writer defaults to a FileWriter for Path.
	Writer ReportWriter
	Out    io.Writer // receives the confirmation line
	Log    log.Logger
}

// NewAssembler creates a new report assembler
func NewAssembler(cfg AssemblerConfig) (*Assembler, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("report path is required")
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Writer == nil {
		cfg.Writer = NewFileWriter(cfg.Path)
	}
	return &Assembler{
		builder: NewReportBuilder(cfg.Title),
		writer:  cfg.Writer,
		path:    cfg.Path,
		out:     cfg.Out,
		log:     cfg.Log,
		now:     time.Now,
	}, nil
}

// Consume records the final outcome of a test
func (a *Assembler) Consume(result *types.TestResult) error {
	a.builder.Add(result)
	return nil
}

// Complete writes the report and prints its location. A write failure is
// returned to the caller as a fatal session error.
func (a *Assembler) Complete(summary types.RunSummary) error {
	doc := a.builder.Build(summary, a.now())
	err := a.writer.Write(doc)
	metrics.RecordReportWrite(err)
	if err != nil {
		return &WriteError{Path: a.path, Err: err}
	}
	a.log.Debug("Report written", "path", a.path, "tests", len(doc.Tests))
	_, err = fmt.Fprintf(a.out, "report written to: %s\n", a.path)
	return err
}
