package wetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/wetest/exitcodes"
	"github.com/ethereum-optimism/infra/wetest/reporting"
	"github.com/ethereum-optimism/infra/wetest/runner"
	"github.com/ethereum-optimism/infra/wetest/service"
	"github.com/ethereum-optimism/infra/wetest/types"
)

func TestExitCode(t *testing.T) {
	failed := &runner.RunnerResult{Stats: types.ResultStats{Total: 2, Failed: 1, Passed: 1}}

	tests := []struct {
		name    string
		err     error
		code    int
		runtime bool
	}{
		{name: "success", err: nil, code: exitcodes.Success},
		{name: "test failure", err: fmt.Errorf("run: %w", NewTestFailureError(failed)), code: exitcodes.TestFailure},
		{name: "setup", err: fmt.Errorf("start: %w", NewRuntimeError(errors.New("bad config"))), code: exitcodes.RuntimeErr, runtime: true},
		{name: "report", err: &ReportError{Path: "out.json", Err: errors.New("read-only")}, code: exitcodes.RuntimeErr, runtime: true},
		{name: "interrupt", err: &InterruptedError{Cause: context.Canceled}, code: exitcodes.RuntimeErr, runtime: true},
		{name: "unclassified", err: errors.New("plain"), code: exitcodes.RuntimeErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ExitCode(tt.err))
			assert.Equal(t, tt.runtime, IsRuntimeError(tt.err))
			assert.Equal(t, tt.code == exitcodes.TestFailure, IsTestFailureError(tt.err))
		})
	}
}

func TestTestFailureErrorDescribesRun(t *testing.T) {
	result := &runner.RunnerResult{Stats: types.ResultStats{Total: 3, Failed: 2, Skipped: 1}}
	err := NewTestFailureError(result)
	assert.Equal(t, 2, err.Failed)
	assert.Equal(t, "test failure: 2 failed, 1 skipped in 0.00s", err.Error())
}

func TestClassifyRunError(t *testing.T) {
	assert.NoError(t, classifyRunError(nil))

	var interrupted *InterruptedError
	require.ErrorAs(t, classifyRunError(context.Canceled), &interrupted)
	assert.ErrorIs(t, interrupted, context.Canceled)

	writeErr := &reporting.WriteError{Path: "/ro/report.json", Err: errors.New("permission denied")}
	sinkErr := &runner.SinkError{Err: errors.Join(errors.New("raw sink closed"), writeErr)}
	var reportErr *ReportError
	require.ErrorAs(t, classifyRunError(sinkErr), &reportErr)
	assert.Equal(t, "/ro/report.json", reportErr.Path)
	assert.Equal(t, "report not written to /ro/report.json: permission denied", reportErr.Error())

	var runtimeErr *RuntimeError
	require.ErrorAs(t, classifyRunError(errors.New("collect failed")), &runtimeErr)
}

func TestRunTestsReportErrorKeepsSummary(t *testing.T) {
	lgr := log.NewLogger(log.DiscardHandler())
	result := &runner.RunnerResult{RunID: "run-1", Status: types.TestStatusPass, Stats: types.ResultStats{Total: 1, Passed: 1}}
	writeErr := &reporting.WriteError{Path: "report.json", Err: errors.New("is a directory")}

	mockRunner := new(MockExecutorRunner)
	mockRunner.On("RunAllTests", mock.Anything).Return(result, &runner.SinkError{Err: writeErr})

	var out bytes.Buffer
	s := &session{
		config:    &Config{Log: lgr},
		runID:     "run-1",
		executor:  NewDefaultTestExecutor(mockRunner, lgr),
		formatter: NewConsoleResultFormatter(lgr, &out, false),
		reporter:  NewDefaultMetricsReporter(),
		service:   service.New(service.Config{Log: lgr}),
		out:       &out,
	}

	err := s.runTests(context.Background())
	var reportErr *ReportError
	require.ErrorAs(t, err, &reportErr)
	assert.Equal(t, "report.json", reportErr.Path)
	assert.Equal(t, exitcodes.RuntimeErr, ExitCode(err))
	assert.Same(t, result, s.Result())
	assert.Contains(t, out.String(), "1 passed in 0.00s")
}
