package registry

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/wetest/testlist"
	"github.com/ethereum-optimism/infra/wetest/types"
)

// DefaultPattern selects every package under the test directory.
const DefaultPattern = "./..."

// Registry holds the packages selected for a session and their collected tests
type Registry struct {
	config     Config
	modulePath string
	packages   []*types.Package
	mu         sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log      log.Logger
	TestDir  string   // absolute directory patterns are resolved against
	Patterns []string // package patterns such as ./..., ./pkg/... or ./pkg
}

// NewRegistry resolves the configured patterns and collects the tests of
// every matching package.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.TestDir == "" {
		return nil, fmt.Errorf("test directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = []string{DefaultPattern}
	}

	r := &Registry{config: cfg}
	if err := r.load(); err != nil {
		return nil, fmt.Errorf("failed to load packages: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "packages", len(r.packages), "tests", r.CountTests())
	return r, nil
}

func (r *Registry) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	testDir := r.config.TestDir
	modRoot, modPath, err := testlist.FindModule(testDir)
	if err != nil {
		return err
	}
	r.modulePath = modPath

	candidates, err := testlist.FindTestPackages(testDir)
	if err != nil {
		return err
	}

	selected := make(map[string]bool)
	for _, pattern := range r.config.Patterns {
		matched := 0
		for _, rel := range candidates {
			if MatchPattern(pattern, rel) {
				selected[rel] = true
				matched++
			}
		}
		if matched == 0 {
			r.config.Log.Warn("Pattern matched no packages", "pattern", pattern)
		}
	}

	var packages []*types.Package
	for _, rel := range candidates {
		if !selected[rel] {
			continue
		}
		dir := filepath.Join(testDir, filepath.FromSlash(rel))
		importPath, err := testlist.ImportPath(modRoot, modPath, dir)
		if err != nil {
			return err
		}
		scopes, err := testlist.CollectPackage(dir, importPath, testDir)
		if err != nil {
			return fmt.Errorf("failed to collect tests in %s: %w", rel, err)
		}
		pkg := &types.Package{ImportPath: importPath, Dir: dir, Scopes: scopes}
		if pkg.CountTests() == 0 {
			r.config.Log.Debug("Skipping package without tests", "package", importPath)
			continue
		}
		packages = append(packages, pkg)
	}

	r.packages = packages
	return nil
}

// MatchPattern reports whether the package directory rel, as returned by
// testlist.FindTestPackages, is selected by pattern. A trailing "/..." selects
// the directory and everything below it.
func MatchPattern(pattern, rel string) bool {
	pattern = normalize(pattern)
	rel = normalize(rel)
	if base, ok := strings.CutSuffix(pattern, "/..."); ok {
		return base == "." || rel == base || strings.HasPrefix(rel, base+"/")
	}
	if pattern == "..." {
		return true
	}
	return rel == pattern
}

func normalize(p string) string {
	p = filepath.ToSlash(strings.TrimSpace(p))
	if p == "." || p == "./" {
		return "."
	}
	if p == "..." {
		return p
	}
	p = strings.TrimSuffix(p, "/")
	if !strings.HasPrefix(p, "./") {
		p = "./" + p
	}
	return p
}

// GetPackages returns the collected packages in directory order.
func (r *Registry) GetPackages() []*types.Package {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.packages
}

// CountTests returns the number of collected tests across all packages.
func (r *Registry) CountTests() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, pkg := range r.packages {
		n += pkg.CountTests()
	}
	return n
}

// ModulePath returns the module path of the test directory.
func (r *Registry) ModulePath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modulePath
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}
