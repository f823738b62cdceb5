package reporting

import (
	"fmt"
	"io"

	"github.com/ethereum-optimism/infra/wetest/types"
)

// ResultStream prints one line per finished test: the node identifier, the
// outcome word and the share of the session completed so far.
type ResultStream struct {
	out    io.Writer
	total  int
	done   int
	colors bool
}

// NewResultStream creates a stream for a session of total tests.
func NewResultStream(out io.Writer, total int, colors bool) *ResultStream {
	return &ResultStream{out: out, total: total, colors: colors}
}

// Consume prints the result line for result
func (s *ResultStream) Consume(result *types.TestResult) error {
	s.done++
	label := result.Status.Label()
	if s.colors {
		label = StatusColors(result.Status).Sprint(label)
	}
	_, err := fmt.Fprintf(s.out, "%s %s [%3d%%]\n", result.DisplayName(), label, s.percent())
	return err
}

// Complete is a no-op; the summary table is printed by the service.
func (s *ResultStream) Complete(types.RunSummary) error {
	return nil
}

func (s *ResultStream) percent() int {
	if s.total <= 0 {
		return 100
	}
	return s.done * 100 / s.total
}
