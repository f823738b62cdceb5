package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/wetest/types"
)

var _ TestExecutor = (*testExecutor)(nil)

// TestExecutor runs one collected test in its own go test process.
type TestExecutor interface {
	// Execute runs tc and returns its parsed result. An error is returned only
	// when the test could not be run at all or ctx was cancelled.
	Execute(ctx context.Context, tc types.TestCase) (*types.TestResult, error)
}

// JSONStore handles storing raw JSON output
type JSONStore interface {
	Store(testID string, rawJSON []byte) error
	StoreFromFile(testID, path string) error
}

// CommandBuilder creates the command for a go invocation. The returned
// function releases anything the command needed.
type CommandBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// testExecutor implements TestExecutor
type testExecutor struct {
	timeout      time.Duration
	goBinary     string
	cmdBuilder   CommandBuilder
	outputParser OutputParser
	jsonStore    JSONStore
	log          log.Logger
}

// NewTestExecutor creates a new test executor. A zero timeout leaves the go
// test default in place; jsonStore may be nil.
func NewTestExecutor(timeout time.Duration, goBinary string, cmdBuilder CommandBuilder,
	outputParser OutputParser, jsonStore JSONStore, lgr log.Logger) (TestExecutor, error) {

	if goBinary == "" {
		goBinary = DefaultGoBinary
	}
	if cmdBuilder == nil {
		return nil, fmt.Errorf("cmdBuilder cannot be nil")
	}
	if outputParser == nil {
		return nil, fmt.Errorf("outputParser cannot be nil")
	}
	if lgr == nil {
		lgr = log.New()
	}

	return &testExecutor{
		timeout:      timeout,
		goBinary:     goBinary,
		cmdBuilder:   cmdBuilder,
		outputParser: outputParser,
		jsonStore:    jsonStore,
		log:          lgr,
	}, nil
}

// DefaultCommandBuilder runs the command with the current environment plus
// the trace context of ctx, so spans from the test process join the session.
func DefaultCommandBuilder(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Env = telemetry.InstrumentEnvironment(ctx, os.Environ())
	cmd.WaitDelay = commandWaitDelay
	return cmd, func() {}
}

// Execute runs a single test
func (e *testExecutor) Execute(ctx context.Context, tc types.TestCase) (*types.TestResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}
	if tc.Dir == "" {
		return nil, fmt.Errorf("package directory cannot be empty")
	}
	if tc.Name == "" {
		return nil, fmt.Errorf("test name cannot be empty")
	}

	args := e.buildTestArgs(tc)
	cmd, cleanup := e.cmdBuilder(ctx, e.goBinary, args...)
	defer cleanup()
	cmd.Dir = tc.Dir

	stdoutFile, err := os.CreateTemp("", "wetest-exec-stdout-*.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout temp file: %w", err)
	}
	stdoutPath := stdoutFile.Name()
	defer func() {
		_ = stdoutFile.Close()
		_ = os.Remove(stdoutPath)
	}()

	stdoutTail := newTailBuffer(defaultStdoutTailBytes)
	var stderrBuf bytes.Buffer
	cmd.Stdout = io.MultiWriter(stdoutFile, stdoutTail)
	cmd.Stderr = &stderrBuf

	e.log.Debug("Running test command", "dir", cmd.Dir, "test", tc.GoTestName(), "command", cmd.String())

	startTime := time.Now()
	runErr := cmd.Run()
	duration := time.Since(startTime)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_ = stdoutFile.Sync()
	_ = stdoutFile.Close()

	stdoutReader, err := os.Open(stdoutPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdout: %w", err)
	}
	var result *types.TestResult
	if e.timeout > 0 && duration >= e.timeout {
		result = e.outputParser.ParseWithTimeout(stdoutReader, tc, e.timeout)
	} else {
		result = e.outputParser.Parse(stdoutReader, tc)
	}
	_ = stdoutReader.Close()

	if result == nil {
		result = &types.TestResult{
			Case:   tc,
			Status: types.TestStatusFail,
			Error:  errors.New("failed to parse test output"),
		}
	}
	if result.Duration == 0 {
		result.Duration = duration
	}
	if snippet := buildStdoutSnippet(stdoutTail); snippet != "" {
		result.Stdout = snippet
	}

	if e.jsonStore != nil && stdoutTail.TotalBytes() > 0 {
		if err := e.jsonStore.StoreFromFile(tc.NodeID(), stdoutPath); err != nil {
			return nil, fmt.Errorf("failed to store raw JSON: %w", err)
		}
	}

	e.applyExitStatus(result, runErr, stderrBuf.String())
	return result, nil
}

// applyExitStatus reconciles the parsed result with how the process ended.
func (e *testExecutor) applyExitStatus(result *types.TestResult, runErr error, stderr string) {
	if runErr == nil {
		return
	}
	exitErr := &exec.ExitError{}
	switch {
	case errors.As(runErr, &exitErr) && exitErr.ExitCode() == 1 && result.Status != types.TestStatusPass:
		// go test reports test failures with exit code 1
	case errors.As(runErr, &exitErr):
		result.Status = types.TestStatusFail
		result.Error = fmt.Errorf("test execution failed with exit code %d: %s", exitErr.ExitCode(), stderr)
	default:
		result.Status = types.TestStatusFail
		result.Error = fmt.Errorf("failed to run test: %w", runErr)
	}

	if stderr != "" && result.Error != nil {
		result.Error = fmt.Errorf("%w\nstderr: %s", result.Error, stderr)
	}
	if result.Reason == "" && result.Error != nil {
		result.Reason = result.Error.Error()
	}
}

func (e *testExecutor) buildTestArgs(tc types.TestCase) []string {
	args := []string{TestCommand, JSONFlag, VerboseFlag, CountFlag, DisableCacheCount}
	if e.timeout > 0 {
		args = append(args, TimeoutFlag, e.timeout.String())
	}
	return append(args, CurrentDirPattern, RunFlag, tc.RunPattern())
}
