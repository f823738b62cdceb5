package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/wetest/types"
)

const helperEnv = "WETEST_HELPER_PROCESS"

// TestHelperProcess stands in for the go binary. It prints the event stream
// given in the environment and exits with the requested code.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	fmt.Fprint(os.Stdout, os.Getenv("WETEST_HELPER_STDOUT"))
	fmt.Fprint(os.Stderr, os.Getenv("WETEST_HELPER_STDERR"))
	code := 0
	_, _ = fmt.Sscan(os.Getenv("WETEST_HELPER_EXIT"), &code)
	os.Exit(code)
}

type helperRun struct {
	stdout string
	stderr string
	exit   int

	name string
	args []string
}

func (h *helperRun) builder(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	h.name = name
	h.args = arg
	cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=^TestHelperProcess$")
	cmd.Env = append(os.Environ(),
		helperEnv+"=1",
		"WETEST_HELPER_STDOUT="+h.stdout,
		"WETEST_HELPER_STDERR="+h.stderr,
		fmt.Sprintf("WETEST_HELPER_EXIT=%d", h.exit),
	)
	return cmd, func() {}
}

type mockJSONStore struct {
	mock.Mock
}

func (m *mockJSONStore) Store(testID string, rawJSON []byte) error {
	return m.Called(testID, rawJSON).Error(0)
}

func (m *mockJSONStore) StoreFromFile(testID, path string) error {
	return m.Called(testID, path).Error(0)
}

type mockOutputParser struct{}

func (m *mockOutputParser) Parse(output io.Reader, tc types.TestCase) *types.TestResult {
	return &types.TestResult{Case: tc, Status: types.TestStatusPass}
}

func (m *mockOutputParser) ParseWithTimeout(output io.Reader, tc types.TestCase, timeout time.Duration) *types.TestResult {
	return &types.TestResult{Case: tc, Status: types.TestStatusPass}
}

func TestNewTestExecutor(t *testing.T) {
	noopBuilder := func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
		return &exec.Cmd{}, func() {}
	}

	tests := []struct {
		name        string
		goBinary    string
		cmdBuilder  CommandBuilder
		parser      OutputParser
		expectError string
		wantBinary  string
	}{
		{name: "valid inputs", goBinary: "/usr/local/go/bin/go", cmdBuilder: noopBuilder, parser: &mockOutputParser{}, wantBinary: "/usr/local/go/bin/go"},
		{name: "empty binary uses default", cmdBuilder: noopBuilder, parser: &mockOutputParser{}, wantBinary: DefaultGoBinary},
		{name: "nil builder", parser: &mockOutputParser{}, expectError: "cmdBuilder cannot be nil"},
		{name: "nil parser", cmdBuilder: noopBuilder, expectError: "outputParser cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor, err := NewTestExecutor(time.Minute, tt.goBinary, tt.cmdBuilder, tt.parser, nil, nil)
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBinary, executor.(*testExecutor).goBinary)
		})
	}
}

func TestBuildTestArgs(t *testing.T) {
	e := &testExecutor{timeout: 90 * time.Second}
	assert.Equal(t,
		[]string{"test", "-json", "-v", "-count", "1", "-timeout", "1m30s", ".", "-run", "^TestCart$/^TestAdd$"},
		e.buildTestArgs(suiteCase))

	e.timeout = 0
	assert.Equal(t,
		[]string{"test", "-json", "-v", "-count", "1", ".", "-run", "^TestExample$"},
		e.buildTestArgs(exampleCase))
}

func TestExecutePassingTest(t *testing.T) {
	run := &helperRun{
		stdout: `{"Action":"run","Test":"TestExample"}` + "\n" +
			`{"Action":"pass","Test":"TestExample","Elapsed":0.2}` + "\n",
	}
	store := &mockJSONStore{}
	store.On("StoreFromFile", "pkg/a_test.go::TestExample", mock.AnythingOfType("string")).Return(nil)

	executor, err := NewTestExecutor(0, "go", run.builder, NewOutputParser(), store, nil)
	require.NoError(t, err)

	tc := exampleCase
	tc.Dir = t.TempDir()
	result, err := executor.Execute(context.Background(), tc)
	require.NoError(t, err)

	assert.Equal(t, types.TestStatusPass, result.Status)
	assert.Equal(t, 200*time.Millisecond, result.Duration)
	assert.Contains(t, result.Stdout, `"Action":"pass"`)
	assert.Equal(t, "go", run.name)
	assert.Equal(t, "^TestExample$", run.args[len(run.args)-1])
	store.AssertExpectations(t)
}

func TestExecuteFailingTest(t *testing.T) {
	run := &helperRun{
		stdout: `{"Action":"output","Test":"TestExample","Output":"    a_test.go:3: nope\n"}` + "\n" +
			`{"Action":"fail","Test":"TestExample","Elapsed":0.1}` + "\n",
		exit: 1,
	}
	executor, err := NewTestExecutor(0, "go", run.builder, NewOutputParser(), nil, nil)
	require.NoError(t, err)

	tc := exampleCase
	tc.Dir = t.TempDir()
	result, err := executor.Execute(context.Background(), tc)
	require.NoError(t, err)

	assert.Equal(t, types.TestStatusFail, result.Status)
	assert.Equal(t, "a_test.go:3: nope", result.Reason)
}

func TestExecuteUnexpectedExitCode(t *testing.T) {
	run := &helperRun{
		stdout: `{"Action":"pass","Test":"TestExample","Elapsed":0.1}` + "\n",
		stderr: "signal: killed",
		exit:   3,
	}
	executor, err := NewTestExecutor(0, "go", run.builder, NewOutputParser(), nil, nil)
	require.NoError(t, err)

	tc := exampleCase
	tc.Dir = t.TempDir()
	result, err := executor.Execute(context.Background(), tc)
	require.NoError(t, err)

	assert.Equal(t, types.TestStatusFail, result.Status)
	require.Error(t, result.Error)
	assert.True(t, strings.Contains(result.Error.Error(), "exit code 3"))
	assert.Contains(t, result.Error.Error(), "stderr: signal: killed")
	assert.NotEmpty(t, result.Reason)
}

func TestExecuteMissingBinary(t *testing.T) {
	builder := func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
		return exec.CommandContext(ctx, "/nonexistent/wetest-go"), func() {}
	}
	executor, err := NewTestExecutor(0, "go", builder, NewOutputParser(), nil, nil)
	require.NoError(t, err)

	tc := exampleCase
	tc.Dir = t.TempDir()
	result, err := executor.Execute(context.Background(), tc)
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusFail, result.Status)
	assert.Contains(t, result.Error.Error(), "failed to run test")
}

func TestExecuteCancelled(t *testing.T) {
	run := &helperRun{stdout: `{"Action":"pass","Test":"TestExample"}`}
	executor, err := NewTestExecutor(0, "go", run.builder, NewOutputParser(), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tc := exampleCase
	tc.Dir = t.TempDir()
	_, err = executor.Execute(ctx, tc)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteValidatesInput(t *testing.T) {
	executor, err := NewTestExecutor(0, "go", (&helperRun{}).builder, NewOutputParser(), nil, nil)
	require.NoError(t, err)

	//nolint:staticcheck
	_, err = executor.Execute(nil, exampleCase)
	assert.Error(t, err)

	_, err = executor.Execute(context.Background(), exampleCase)
	assert.ErrorContains(t, err, "package directory cannot be empty")
}
