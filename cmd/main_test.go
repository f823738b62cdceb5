package main_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/wetest/exitcodes"
)

const passingTests = `package shop

import "testing"

func TestAlwaysPasses(t *testing.T) {}
`

const atomicTests = `package shop

import "testing"

// TestLogin signs in.
//
// @ 登录
// @! owner: alice
//
//wetest:atomic
func TestLogin(t *testing.T) {
	t.Fatal("login failed")
}

//wetest:electronic
func TestAudit(t *testing.T) {}

func TestProfile(t *testing.T) {}
`

const reportConfig = `[wetest]
title = 冒烟测试
json_report_file = report.json
metadata = true
chinese_node_id = yes
`

// TestExitCodeBehavior verifies the exit codes of a single run:
// 0 when all tests pass, 1 when any test fails and 2 on runtime errors.
func TestExitCodeBehavior(t *testing.T) {
	binary := buildWetest(t)

	testCases := []struct {
		name           string
		setup          func(t *testing.T, dir string) []string
		expectedStatus int
	}{
		{
			name: "passing tests exit with code 0",
			setup: func(t *testing.T, dir string) []string {
				createModule(t, dir, passingTests)
				return []string{"--testdir", dir}
			},
			expectedStatus: exitcodes.Success,
		},
		{
			name: "failing tests exit with code 1",
			setup: func(t *testing.T, dir string) []string {
				createModule(t, dir, atomicTests)
				return []string{"--testdir", dir}
			},
			expectedStatus: exitcodes.TestFailure,
		},
		{
			name: "missing test directory exits with code 2",
			setup: func(t *testing.T, dir string) []string {
				return []string{"--testdir", filepath.Join(dir, "missing")}
			},
			expectedStatus: exitcodes.RuntimeErr,
		},
		{
			name: "unwritable report exits with code 2",
			setup: func(t *testing.T, dir string) []string {
				createModule(t, dir, passingTests)
				writeFile(t, filepath.Join(dir, "wetest.ini"), "[wetest]\njson_report_file = "+filepath.Join(dir, "go.mod", "report.json")+"\n")
				return []string{"--testdir", dir, "--wetest"}
			},
			expectedStatus: exitcodes.RuntimeErr,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			args := tc.setup(t, dir)
			_, code := runWetest(t, binary, dir, args...)
			assert.Equal(t, tc.expectedStatus, code)
		})
	}
}

func TestReportWritten(t *testing.T) {
	binary := buildWetest(t)
	dir := t.TempDir()
	createModule(t, dir, atomicTests)
	writeFile(t, filepath.Join(dir, "wetest.ini"), reportConfig)

	out, code := runWetest(t, binary, dir, "--testdir", dir, "--wetest")
	require.Equal(t, exitcodes.TestFailure, code)
	assert.Contains(t, out, "shop_test.go::登录 FAILED [ 33%]")
	assert.Contains(t, out, "shop_test.go::TestAudit PASSED [ 66%]")
	assert.Contains(t, out, "shop_test.go::TestProfile SKIPPED [100%]")
	assert.Contains(t, out, "report written to: report.json")

	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)

	var doc struct {
		Title *string `json:"title"`
		Tests []struct {
			NodeID   string            `json:"nodeid"`
			Outcome  string            `json:"outcome"`
			Metadata map[string]string `json:"metadata"`
			Title    string            `json:"title"`
			Reason   string            `json:"reason"`
		} `json:"tests"`
		ExitCode int `json:"exitcode"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.NotNil(t, doc.Title)
	assert.Equal(t, "冒烟测试", *doc.Title)
	assert.Equal(t, 1, doc.ExitCode)
	require.Len(t, doc.Tests, 3)
	assert.Equal(t, "shop_test.go::登录", doc.Tests[0].NodeID)
	assert.Equal(t, "failed", doc.Tests[0].Outcome)
	assert.Equal(t, map[string]string{"owner": "alice"}, doc.Tests[0].Metadata)
	assert.Equal(t, "TestLogin signs in.", doc.Tests[0].Title)
	assert.Equal(t, "passed", doc.Tests[1].Outcome)
	assert.Equal(t, "skipped", doc.Tests[2].Outcome)
	assert.Equal(t, "skipped due to preceding atomic failure", doc.Tests[2].Reason)
}

func TestInactiveRunWritesNoReport(t *testing.T) {
	binary := buildWetest(t)
	dir := t.TempDir()
	createModule(t, dir, atomicTests)
	writeFile(t, filepath.Join(dir, "wetest.ini"), reportConfig)

	out, code := runWetest(t, binary, dir, "--testdir", dir)
	require.Equal(t, exitcodes.TestFailure, code)
	assert.Contains(t, out, "shop_test.go::TestLogin FAILED")
	assert.Contains(t, out, "shop_test.go::TestProfile PASSED")
	assert.NotContains(t, out, "report written to")
	assert.NoFileExists(t, filepath.Join(dir, "report.json"))
}

func buildWetest(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("builds and runs the wetest binary")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go binary not available")
	}

	binaryPath := filepath.Join(t.TempDir(), "wetest")
	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "Failed to build wetest: %s", string(output))
	return binaryPath
}

func runWetest(t *testing.T, binary, dir string, args ...string) (string, int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "WETEST_LOG_LEVEL=error")

	output, err := cmd.CombinedOutput()
	t.Logf("output:\n%s", output)
	require.NoError(t, ctx.Err(), "wetest timed out")

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(output), exitErr.ExitCode()
	}
	require.NoError(t, err)
	return string(output), 0
}

func createModule(t *testing.T, dir, testContent string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, "go.mod"), fmt.Sprintf("module %s\n\ngo 1.21\n", "example.com/shop"))
	writeFile(t, filepath.Join(dir, "shop_test.go"), testContent)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}
