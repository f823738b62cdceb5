package wetest

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/wetest/exitcodes"
	"github.com/ethereum-optimism/infra/wetest/runner"
)

// RuntimeError is a session that could not be set up or run: bad flags or
// configuration, a test directory outside a module, a failing endpoint.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// ReportError means every test ran but the JSON report could not be written
// to Path.
type ReportError struct {
	Path string
	Err  error
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("report not written to %s: %v", e.Path, e.Err)
}

func (e *ReportError) Unwrap() error {
	return e.Err
}

// InterruptedError is a session stopped before its last test. No report is
// written for it.
type InterruptedError struct {
	Cause error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("session interrupted: %v", e.Cause)
}

func (e *InterruptedError) Unwrap() error {
	return e.Cause
}

// TestFailureError is a completed session with at least one failed test.
type TestFailureError struct {
	Failed  int
	Summary string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Summary)
}

// NewTestFailureError describes the failed run result.
func NewTestFailureError(result *runner.RunnerResult) *TestFailureError {
	return &TestFailureError{Failed: result.Stats.Failed, Summary: result.String()}
}

// IsRuntimeError reports whether err ends the session with exit code 2 for a
// known reason: setup, report or interrupt.
func IsRuntimeError(err error) bool {
	var (
		runtimeErr   *RuntimeError
		reportErr    *ReportError
		interruptErr *InterruptedError
	)
	return errors.As(err, &runtimeErr) || errors.As(err, &reportErr) || errors.As(err, &interruptErr)
}

// IsTestFailureError reports whether err is or wraps a TestFailureError.
func IsTestFailureError(err error) bool {
	var failure *TestFailureError
	return errors.As(err, &failure)
}

// ExitCode maps the error a session ended with to the process exit code.
// Errors of unknown kind are runtime errors.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case IsTestFailureError(err):
		return exitcodes.TestFailure
	default:
		return exitcodes.RuntimeErr
	}
}
