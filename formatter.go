package wetest

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/wetest/runner"
	"github.com/ethereum-optimism/infra/wetest/types"
	"github.com/ethereum-optimism/infra/wetest/ui"
)

// ResultFormatter is responsible for formatting and displaying test results.
type ResultFormatter interface {
	FormatResults(result *runner.RunnerResult) error
}

// ConsoleResultFormatter prints the summary table of a run.
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
	styled bool
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter. The table
// is colored when styled is set.
func NewConsoleResultFormatter(logger log.Logger, out io.Writer, styled bool) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
		out:    out,
		styled: styled,
	}
}

// FormatResults renders one row per package followed by its tests in
// execution order.
func (f *ConsoleResultFormatter) FormatResults(result *runner.RunnerResult) error {
	f.logger.Debug("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Test Results (%s)", formatDuration(result.Duration)))

	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Tests", "Passed", "Failed", "Skipped", "Status", "Reason",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Reason", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, pkg := range result.Packages {
		t.AppendRow(table.Row{
			"Package",
			pkg.ImportPath,
			formatDuration(pkg.Duration),
			"-", // Don't count a package as a test
			pkg.Stats.Passed,
			pkg.Stats.Failed,
			pkg.Stats.Skipped,
			statusCell(pkg.Stats.Status()),
			"",
		})

		for i, test := range pkg.Tests {
			var one types.ResultStats
			one.Add(test.Status)
			t.AppendRow(table.Row{
				"Test",
				ui.BuildTreePrefix(1, i == len(pkg.Tests)-1, nil) + test.DisplayName(),
				formatDuration(test.Duration),
				"1",
				one.Passed,
				one.Failed,
				one.Skipped,
				statusCell(test.Status),
				keyReason(test),
			})
		}
		t.AppendSeparator()
	}

	if f.styled {
		switch result.Status {
		case types.TestStatusPass:
			t.SetStyle(table.StyleColoredBlackOnGreenWhite)
		case types.TestStatusSkip:
			t.SetStyle(table.StyleColoredBlackOnYellowWhite)
		default:
			t.SetStyle(table.StyleColoredBlackOnRedWhite)
		}
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(result.Duration),
		result.Stats.Total,
		result.Stats.Passed,
		result.Stats.Failed,
		result.Stats.Skipped,
		statusCell(result.Status),
		"",
	})

	t.Render()
	return nil
}

// statusCell returns the status column text.
func statusCell(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}

// keyReason returns the first line of the result's reason.
func keyReason(test *types.TestResult) string {
	if test.Status == types.TestStatusPass {
		return ""
	}
	reason, _, _ := strings.Cut(strings.TrimSpace(test.Reason), "\n")
	return reason
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
