package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleTest = `package example

import "testing"

func TestExample(t *testing.T) {}

func TestExample2(t *testing.T) {}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func setupModule(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "go.mod"), "module example.com/acceptance\n\ngo 1.22\n")
	writeFile(t, filepath.Join(root, "alpha", "alpha_test.go"), exampleTest)
	writeFile(t, filepath.Join(root, "beta", "beta_test.go"), exampleTest)
	writeFile(t, filepath.Join(root, "beta", "deep", "deep_test.go"), exampleTest)
	writeFile(t, filepath.Join(root, "bench", "bench_test.go"), "package bench\nimport \"testing\"\nfunc BenchmarkX(b *testing.B) {}\n")
	return root
}

func TestRegistry(t *testing.T) {
	root := setupModule(t)

	reg, err := NewRegistry(Config{Log: log.New(), TestDir: root})
	require.NoError(t, err)

	pkgs := reg.GetPackages()
	require.Len(t, pkgs, 3)
	assert.Equal(t, "example.com/acceptance/alpha", pkgs[0].ImportPath)
	assert.Equal(t, "example.com/acceptance/beta", pkgs[1].ImportPath)
	assert.Equal(t, "example.com/acceptance/beta/deep", pkgs[2].ImportPath)
	assert.Equal(t, filepath.Join(root, "beta", "deep"), pkgs[2].Dir)
	assert.Equal(t, 6, reg.CountTests())
	assert.Equal(t, "example.com/acceptance", reg.ModulePath())
	assert.Equal(t, []string{DefaultPattern}, reg.GetConfig().Patterns)

	first := pkgs[0].Scopes[0].Items[0].Test
	assert.Equal(t, "alpha/alpha_test.go::TestExample", first.NodeID())
}

func TestRegistryPatterns(t *testing.T) {
	root := setupModule(t)

	tests := []struct {
		name     string
		patterns []string
		expected []string
	}{
		{name: "subtree", patterns: []string{"./beta/..."}, expected: []string{"example.com/acceptance/beta", "example.com/acceptance/beta/deep"}},
		{name: "single package", patterns: []string{"./beta"}, expected: []string{"example.com/acceptance/beta"}},
		{name: "bare name", patterns: []string{"alpha"}, expected: []string{"example.com/acceptance/alpha"}},
		{name: "several patterns keep directory order", patterns: []string{"./beta/deep", "./alpha"}, expected: []string{"example.com/acceptance/alpha", "example.com/acceptance/beta/deep"}},
		{name: "no match", patterns: []string{"./gamma"}, expected: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := NewRegistry(Config{Log: log.New(), TestDir: root, Patterns: tt.patterns})
			require.NoError(t, err)

			var got []string
			for _, pkg := range reg.GetPackages() {
				got = append(got, pkg.ImportPath)
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRegistryErrors(t *testing.T) {
	_, err := NewRegistry(Config{Log: log.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test directory is required")

	broken := setupModule(t)
	writeFile(t, filepath.Join(broken, "alpha", "broken_test.go"), "package example\nfunc {")
	_, err = NewRegistry(Config{Log: log.New(), TestDir: broken})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to collect tests in ./alpha")
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		rel     string
		want    bool
	}{
		{"./...", ".", true},
		{"./...", "./a/b", true},
		{"...", "./a", true},
		{".", ".", true},
		{".", "./a", false},
		{"./a/...", "./a", true},
		{"./a/...", "./a/b", true},
		{"./a/...", "./ab", false},
		{"./a", "./a", true},
		{"./a/", "./a", true},
		{"a", "./a", true},
		{"./a", "./a/b", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchPattern(tt.pattern, tt.rel), "%s vs %s", tt.pattern, tt.rel)
	}
}
