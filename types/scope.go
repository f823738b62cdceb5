package types

import "time"

// ScopeKind distinguishes the two tracking units of a test file.
type ScopeKind string

const (
	ScopeModule ScopeKind = "module" // top-level Test functions of one file
	ScopeClass  ScopeKind = "class"  // Test methods of one testify suite
)

// Scope is an ordered sequence of tests sharing an enclosing context.
// A module scope may contain class scopes at the position of the
// function that runs the suite; class scopes never nest further.
type Scope struct {
	Kind  ScopeKind
	Name  string
	Items []ScopeItem
}

// ScopeItem is either a single test or a nested class scope.
type ScopeItem struct {
	Test  *TestCase
	Class *Scope
}

// CountTests returns the number of tests in the scope, nested scopes included.
func (s *Scope) CountTests() int {
	n := 0
	for _, item := range s.Items {
		switch {
		case item.Test != nil:
			n++
		case item.Class != nil:
			n += item.Class.CountTests()
		}
	}
	return n
}

// Package is a package under test with its collected module scopes in file order.
type Package struct {
	ImportPath string
	Dir        string
	Scopes     []*Scope
}

// CountTests returns the number of collected tests in the package.
func (p *Package) CountTests() int {
	n := 0
	for _, s := range p.Scopes {
		n += s.CountTests()
	}
	return n
}

// ResultStats tracks outcome counts for a run
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	StartTime time.Time
	EndTime   time.Time
}

// Add counts one result.
func (s *ResultStats) Add(status TestStatus) {
	s.Total++
	switch status {
	case TestStatusPass:
		s.Passed++
	case TestStatusFail:
		s.Failed++
	case TestStatusSkip:
		s.Skipped++
	}
}

// Status derives the overall status. Failures take priority over skips.
func (s ResultStats) Status() TestStatus {
	if s.Failed > 0 {
		return TestStatusFail
	}
	if s.Total == 0 || s.Skipped == s.Total {
		return TestStatusSkip
	}
	return TestStatusPass
}

// RunSummary is handed to result sinks once every test has completed.
type RunSummary struct {
	RunID    string
	Root     string
	Stats    ResultStats
	Duration time.Duration
	ExitCode int
}
