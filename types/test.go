package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/wetest/docstring"
)

// TestStatus represents the possible states of a test execution
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
	TestStatusSkip TestStatus = "skip"
)

// Outcome returns the word used for the status in the JSON report.
func (s TestStatus) Outcome() string {
	switch s {
	case TestStatusPass:
		return "passed"
	case TestStatusSkip:
		return "skipped"
	default:
		return "failed"
	}
}

// Label returns the upper-case word used in the result stream.
func (s TestStatus) Label() string {
	return strings.ToUpper(s.Outcome())
}

// Marker names accepted as //wetest:<marker> directives on a test's doc comment.
const (
	MarkerAtomic     = "atomic"
	MarkerElectronic = "electronic"
)

// TestCase is a single test found at collection time. Its markers and scope
// membership never change after collection.
type TestCase struct {
	Package    string // import path of the package under test
	Dir        string // absolute directory of the package
	File       string // file path relative to the test directory, slash separated
	Suite      string // testify suite type for class-scoped tests
	Runner     string // top-level Test function that runs Suite
	Name       string // test function or suite method name
	Doc        string // doc comment text, directives removed
	Atomic     bool
	Electronic bool
}

// GoTestName returns the name go test reports for the test.
func (tc TestCase) GoTestName() string {
	if tc.Suite != "" {
		return tc.Runner + "/" + tc.Name
	}
	return tc.Name
}

// RunPattern returns the -run expression selecting exactly this test.
func (tc TestCase) RunPattern() string {
	if tc.Suite != "" {
		return fmt.Sprintf("^%s$/^%s$", tc.Runner, tc.Name)
	}
	return fmt.Sprintf("^%s$", tc.Name)
}

// NodeID returns the structural identifier of the test,
// e.g. "calc/calc_test.go::TestAdd" or "calc/calc_test.go::CalcSuite::TestAdd".
func (tc TestCase) NodeID() string {
	return strings.Join(tc.nodeParts(tc.Name), NodeIDSeparator)
}

// NodeIDWithName returns the node identifier with its last component replaced.
func (tc TestCase) NodeIDWithName(name string) string {
	return strings.Join(tc.nodeParts(name), NodeIDSeparator)
}

func (tc TestCase) nodeParts(last string) []string {
	parts := []string{tc.File}
	if tc.Suite != "" {
		parts = append(parts, tc.Suite)
	}
	return append(parts, last)
}

// Markers returns the marker names set on the test.
func (tc TestCase) Markers() []string {
	var markers []string
	if tc.Atomic {
		markers = append(markers, MarkerAtomic)
	}
	if tc.Electronic {
		markers = append(markers, MarkerElectronic)
	}
	return markers
}

// NodeIDSeparator joins the components of a node identifier.
const NodeIDSeparator = "::"

// TestResult captures the outcome of a single test run
type TestResult struct {
	Case     TestCase
	NodeID   string // display identifier, possibly rewritten from the doc comment
	Status   TestStatus
	Error    error
	Reason   string // skip reason or condensed failure output
	Duration time.Duration
	Stdout   string
	TimedOut bool
	Forced   bool // skipped by the atomic tracker without running

	// Populated only while the extension is active.
	Title    string
	Metadata *docstring.Metadata

	SubTests map[string]*TestResult

	// Hierarchy tracking
	Depth         int
	HierarchyPath []string
}

// DisplayName returns the node identifier shown for the result.
func (tr *TestResult) DisplayName() string {
	if tr.NodeID != "" {
		return tr.NodeID
	}
	return tr.Case.NodeID()
}

// SetHierarchyFromTestName sets the hierarchy information by parsing a test name
func (tr *TestResult) SetHierarchyFromTestName(testName string) {
	depth, path := ParseTestNameHierarchy(testName)
	tr.Depth = depth
	tr.HierarchyPath = path
}

// GetParentName returns the name of the immediate parent test
func (tr *TestResult) GetParentName() string {
	if len(tr.HierarchyPath) <= 1 {
		return ""
	}
	return tr.HierarchyPath[len(tr.HierarchyPath)-2]
}

// ParseTestNameHierarchy parses a Go test name and extracts hierarchy information
// Handles names like "TestParent/SubTest1/SubSubTest2"
// Returns depth (0=top-level, 1=first subtest, etc.) and the full hierarchy path
func ParseTestNameHierarchy(testName string) (depth int, path []string) {
	if testName == "" {
		return 0, []string{}
	}

	cleanPath := make([]string, 0)
	for _, element := range strings.Split(testName, "/") {
		if element != "" {
			cleanPath = append(cleanPath, element)
		}
	}

	if len(cleanPath) == 0 {
		return 0, []string{}
	}
	return len(cleanPath) - 1, cleanPath
}
