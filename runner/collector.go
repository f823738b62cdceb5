package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/wetest/types"
)

// PackageResult aggregates the results of one package in execution order.
type PackageResult struct {
	ImportPath string
	Tests      []*types.TestResult
	Stats      types.ResultStats
	Duration   time.Duration
}

// RunnerResult captures the complete test run results
type RunnerResult struct {
	RunID    string
	Packages []*PackageResult
	Tests    []*types.TestResult // every result in execution order
	Status   types.TestStatus
	Duration time.Duration
	Stats    types.ResultStats
}

// ResultCollector aggregates per-test results into a RunnerResult.
type ResultCollector interface {
	NewRunResult(runID string) *RunnerResult
	AddTestResult(result *RunnerResult, test *types.TestResult)
	FinalizeResults(result *RunnerResult)
}

type resultCollector struct{}

// NewResultCollector creates a new result collector
func NewResultCollector() ResultCollector {
	return &resultCollector{}
}

func (c *resultCollector) NewRunResult(runID string) *RunnerResult {
	return &RunnerResult{
		RunID: runID,
		Stats: types.ResultStats{StartTime: time.Now()},
	}
}

// AddTestResult appends test to the run and to its package, creating the
// package entry when the package changes.
func (c *resultCollector) AddTestResult(result *RunnerResult, test *types.TestResult) {
	result.Tests = append(result.Tests, test)
	result.Stats.Add(test.Status)

	var pkg *PackageResult
	if n := len(result.Packages); n > 0 && result.Packages[n-1].ImportPath == test.Case.Package {
		pkg = result.Packages[n-1]
	} else {
		pkg = &PackageResult{ImportPath: test.Case.Package}
		result.Packages = append(result.Packages, pkg)
	}
	pkg.Tests = append(pkg.Tests, test)
	pkg.Stats.Add(test.Status)
	pkg.Duration += test.Duration
}

func (c *resultCollector) FinalizeResults(result *RunnerResult) {
	result.Stats.EndTime = time.Now()
	result.Duration = result.Stats.EndTime.Sub(result.Stats.StartTime)
	result.Status = result.Stats.Status()
}

// ExitCode returns 1 when any test failed and 0 otherwise.
func (r *RunnerResult) ExitCode() int {
	if r.Stats.Failed > 0 {
		return 1
	}
	return 0
}

// String summarizes the outcome counts, e.g. "1 failed, 3 passed, 1 skipped in 2.50s".
func (r *RunnerResult) String() string {
	var parts []string
	if r.Stats.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Stats.Failed))
	}
	if r.Stats.Passed > 0 {
		parts = append(parts, fmt.Sprintf("%d passed", r.Stats.Passed))
	}
	if r.Stats.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", r.Stats.Skipped))
	}
	if len(parts) == 0 {
		parts = append(parts, "no tests ran")
	}
	return fmt.Sprintf("%s in %.2fs", strings.Join(parts, ", "), r.Duration.Seconds())
}
