package reporting

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/wetest/docstring"
	"github.com/ethereum-optimism/infra/wetest/types"
)

func loginResult(status types.TestStatus) *types.TestResult {
	return &types.TestResult{
		Case: types.TestCase{
			Package: "example.com/shop/login",
			File:    "login/login_test.go",
			Name:    "TestLogin",
			Atomic:  true,
		},
		Status:   status,
		Duration: 1500 * time.Millisecond,
	}
}

func summaryOf(results ...*types.TestResult) types.RunSummary {
	var stats types.ResultStats
	for _, r := range results {
		stats.Add(r.Status)
	}
	exit := 0
	if stats.Failed > 0 {
		exit = 1
	}
	return types.RunSummary{RunID: "run-1", Root: "/src/shop", Stats: stats, Duration: 3 * time.Second, ExitCode: exit}
}

func TestNewRecord(t *testing.T) {
	meta := docstring.NewMetadata()
	meta.Set("owner", "alice")

	passed := loginResult(types.TestStatusPass)
	passed.NodeID = "login/login_test.go::登录"
	passed.Title = "Signs in."
	passed.Metadata = meta
	passed.Reason = "ignored for passing tests"

	rec := NewRecord(passed)
	assert.Equal(t, "login/login_test.go::登录", rec.NodeID)
	assert.Equal(t, "passed", rec.Outcome)
	assert.Equal(t, "Signs in.", rec.Title)
	assert.Equal(t, []string{types.MarkerAtomic}, rec.Markers)
	assert.Equal(t, 1.5, rec.Duration)
	assert.Empty(t, rec.Reason)
	assert.Same(t, meta, rec.Metadata)

	skipped := loginResult(types.TestStatusSkip)
	skipped.Reason = "skipped due to preceding atomic failure"
	rec = NewRecord(skipped)
	assert.Equal(t, "login/login_test.go::TestLogin", rec.NodeID)
	assert.Equal(t, "skipped", rec.Outcome)
	assert.Equal(t, skipped.Reason, rec.Reason)
}

func TestRecordJSONOmitsDisabledFields(t *testing.T) {
	rec := NewRecord(&types.TestResult{
		Case:   types.TestCase{Package: "p", File: "a_test.go", Name: "TestA"},
		Status: types.TestStatusPass,
	})
	data, err := EncodeJSON(rec)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "metadata")
	assert.NotContains(t, raw, "title")
	assert.NotContains(t, raw, "markers")
	assert.NotContains(t, raw, "reason")
	assert.Equal(t, "a_test.go::TestA", raw["nodeid"])
}

func TestBuildDocument(t *testing.T) {
	first := loginResult(types.TestStatusFail)
	second := loginResult(types.TestStatusSkip)
	second.Case.Name = "TestProfile"

	title := "冒烟测试"
	rb := NewReportBuilder(&title)
	rb.Add(first)
	rb.Add(second)

	created := time.Unix(1700000000, 500000000)
	doc := rb.Build(summaryOf(first, second), created)

	require.NotNil(t, doc.Title)
	assert.Equal(t, "冒烟测试", *doc.Title)
	require.Len(t, doc.Tests, 2)
	assert.Equal(t, "login/login_test.go::TestLogin", doc.Tests[0].NodeID)
	assert.Equal(t, "login/login_test.go::TestProfile", doc.Tests[1].NodeID)
	assert.Equal(t, 1700000000.5, doc.Created)
	assert.Equal(t, 3.0, doc.Duration)
	assert.Equal(t, 1, doc.ExitCode)
	assert.Equal(t, "/src/shop", doc.Root)
	assert.Equal(t, Summary{Failed: 1, Skipped: 1, Total: 2}, doc.Summary)
}

func TestAssemblerWritesReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	var out bytes.Buffer

	asm, err := NewAssembler(AssemblerConfig{Path: path, Out: &out, Log: log.NewLogger(log.DiscardHandler())})
	require.NoError(t, err)

	meta := docstring.NewMetadata()
	meta.Set("owner", "<alice>")
	result := loginResult(types.TestStatusPass)
	result.NodeID = "login/login_test.go::登录测试"
	result.Metadata = meta

	require.NoError(t, asm.Consume(result))
	require.NoError(t, asm.Complete(summaryOf(result)))

	assert.Equal(t, "report written to: "+path+"\n", out.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "登录测试")
	assert.Contains(t, string(data), `"owner": "<alice>"`)

	var doc struct {
		Title *string          `json:"title"`
		Tests []map[string]any `json:"tests"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Nil(t, doc.Title)
	require.Len(t, doc.Tests, 1)
	assert.Equal(t, "passed", doc.Tests[0]["outcome"])
	assert.Equal(t, map[string]any{"owner": "<alice>"}, doc.Tests[0]["metadata"])
}

func TestAssemblerEmptySession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	asm, err := NewAssembler(AssemblerConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, asm.Complete(summaryOf()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, []any{}, raw["tests"])
}

func TestAssemblerUnwritableDestination(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	path := filepath.Join(blocker, "report.json")

	var out bytes.Buffer
	asm, err := NewAssembler(AssemblerConfig{Path: path, Out: &out})
	require.NoError(t, err)
	require.NoError(t, asm.Consume(loginResult(types.TestStatusPass)))

	err = asm.Complete(summaryOf())
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, path, writeErr.Path)
	assert.Empty(t, out.String())
}

type failingWriter struct{}

func (failingWriter) Write(*Document) error { return errors.New("disk full") }

func TestAssemblerWriterError(t *testing.T) {
	asm, err := NewAssembler(AssemblerConfig{Path: "report.json", Writer: failingWriter{}})
	require.NoError(t, err)
	require.EqualError(t, asm.Complete(summaryOf()), "failed to write report report.json: disk full")
}

func TestNewAssemblerRequiresPath(t *testing.T) {
	_, err := NewAssembler(AssemblerConfig{})
	require.Error(t, err)
}
