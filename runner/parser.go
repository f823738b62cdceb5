package runner

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/wetest/types"
)

// Go test2json (TestEvent) action constants for JSON test output
// See https://cs.opensource.google/go/go/+/master:src/cmd/test2json/main.go;l=34-60
const (
	ActionStart       = "start"
	ActionRun         = "run"
	ActionPass        = "pass"
	ActionFail        = "fail"
	ActionSkip        = "skip"
	ActionOutput      = "output"
	ActionBuildOutput = "build-output"
	ActionBuildFail   = "build-fail"
)

const (
	// ReasonNotRun is reported when go test finished without running the test.
	ReasonNotRun = "test did not run"

	maxEventLineBytes = 16 * 1024 * 1024
	maxReasonLines    = 40
)

var sourcePrefix = regexp.MustCompile(`^\S+\.go:\d+: `)

// TestEvent represents a test event from go test -json output
type TestEvent struct {
	Time       time.Time
	Action     string
	Package    string
	ImportPath string // set on build events
	Test       string
	Elapsed    float64
	Output     string
}

// OutputParser turns the go test -json stream of a single test run into a result.
type OutputParser interface {
	Parse(output io.Reader, tc types.TestCase) *types.TestResult
	ParseWithTimeout(output io.Reader, tc types.TestCase, timeout time.Duration) *types.TestResult
}

// outputParser implements OutputParser interface
type outputParser struct{}

// NewOutputParser creates a new output parser
func NewOutputParser() OutputParser {
	return &outputParser{}
}

// parseState accumulates what a single event stream says about one test.
type parseState struct {
	name       string
	runner     string
	terminal   bool
	pkgFailed  bool
	timedOut   bool
	start, end time.Time
	testOutput []string
	pkgOutput  []string
	subStarts  map[string]time.Time
}

// Parse parses test output into TestResult. Events for the test itself decide
// the status; events for its subtests are kept as SubTests. When the stream
// ends without a verdict for the test, a failed package means a failure and
// anything else means the test never ran.
func (p *outputParser) Parse(output io.Reader, tc types.TestCase) *types.TestResult {
	st := &parseState{
		name:      tc.GoTestName(),
		subStarts: make(map[string]time.Time),
	}
	if tc.Suite != "" {
		st.runner = tc.Runner
	}
	result := &types.TestResult{
		Case:     tc,
		Status:   types.TestStatusFail,
		SubTests: make(map[string]*types.TestResult),
	}
	result.SetHierarchyFromTestName(st.name)

	seen := false
	scanner := bufio.NewScanner(output)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineBytes)
	for scanner.Scan() {
		event, err := parseTestEvent(scanner.Bytes())
		if err != nil {
			continue
		}
		seen = true
		st.process(event, result)
	}

	if !seen {
		result.Error = errors.New("no test output")
		result.Reason = "no test output"
		return result
	}

	if !st.terminal {
		if st.pkgFailed || st.timedOut {
			result.Status = types.TestStatusFail
		} else {
			result.Status = types.TestStatusSkip
			result.Reason = ReasonNotRun
		}
	}
	if result.Duration == 0 {
		result.Duration = calculateTestDuration(st.start, st.end)
	}
	result.TimedOut = st.timedOut

	switch result.Status {
	case types.TestStatusFail:
		result.Reason = failureReason(st.testOutput, st.pkgOutput)
		if result.Reason == "" {
			result.Error = errors.New("test failed")
		} else {
			result.Error = errors.New(result.Reason)
		}
	case types.TestStatusSkip:
		if result.Reason == "" {
			result.Reason = skipReason(st.testOutput)
		}
	}
	return result
}

func (st *parseState) process(event TestEvent, result *types.TestResult) {
	if strings.Contains(event.Output, "panic: test timed out after") {
		st.timedOut = true
	}

	switch {
	case event.Test == st.name:
		switch event.Action {
		case ActionStart, ActionRun:
			st.start = event.Time
		case ActionPass, ActionFail, ActionSkip:
			st.terminal = true
			st.end = event.Time
			result.Status = statusFromAction(event.Action)
			if event.Elapsed > 0 {
				result.Duration = time.Duration(event.Elapsed * float64(time.Second))
			}
		case ActionOutput:
			st.testOutput = append(st.testOutput, event.Output)
		}

	case strings.HasPrefix(event.Test, st.name+"/"):
		processSubTestEvent(event, result, st.subStarts)
		if event.Action == ActionOutput {
			st.testOutput = append(st.testOutput, event.Output)
		}

	case event.Test == "" || (st.runner != "" && event.Test == st.runner):
		switch event.Action {
		case ActionFail, ActionBuildFail:
			st.pkgFailed = true
		case ActionOutput, ActionBuildOutput:
			st.pkgOutput = append(st.pkgOutput, event.Output)
		}
	}
}

// ParseWithTimeout parses test output for tests that exceeded timeout
func (p *outputParser) ParseWithTimeout(output io.Reader, tc types.TestCase, timeout time.Duration) *types.TestResult {
	result := p.Parse(output, tc)

	if result.TimedOut || (timeout > 0 && result.Duration >= timeout) {
		result.Status = types.TestStatusFail
		result.Error = fmt.Errorf("test exceeded timeout of %v", timeout)
		result.Reason = result.Error.Error()
		result.TimedOut = true

		// Subtests still marked passing never finished.
		for _, subTest := range result.SubTests {
			if subTest.Status == types.TestStatusPass {
				subTest.Status = types.TestStatusFail
				subTest.Error = fmt.Errorf("subtest timed out")
				subTest.TimedOut = true
			}
		}
	}

	return result
}

func parseTestEvent(line []byte) (TestEvent, error) {
	var event TestEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return event, err
	}
	if event.Action == "" {
		return event, errors.New("missing action")
	}
	return event, nil
}

func statusFromAction(action string) types.TestStatus {
	switch action {
	case ActionPass:
		return types.TestStatusPass
	case ActionSkip:
		return types.TestStatusSkip
	default:
		return types.TestStatusFail
	}
}

func processSubTestEvent(event TestEvent, result *types.TestResult, subTestStartTimes map[string]time.Time) {
	subTest, exists := result.SubTests[event.Test]
	if !exists {
		subCase := result.Case
		subCase.Name = event.Test[strings.LastIndex(event.Test, "/")+1:]
		subTest = &types.TestResult{
			Case:     subCase,
			Status:   types.TestStatusPass,
			SubTests: make(map[string]*types.TestResult),
		}
		subTest.SetHierarchyFromTestName(event.Test)
		result.SubTests[event.Test] = subTest
	}

	switch event.Action {
	case ActionStart, ActionRun:
		subTestStartTimes[event.Test] = event.Time
	case ActionPass, ActionFail, ActionSkip:
		subTest.Status = statusFromAction(event.Action)
		calculateSubTestDuration(subTest, event, subTestStartTimes)
	case ActionOutput:
		updateSubTestError(subTest, event.Output)
	}
}

func calculateSubTestDuration(subTest *types.TestResult, event TestEvent, subTestStartTimes map[string]time.Time) {
	if event.Elapsed > 0 {
		subTest.Duration = time.Duration(event.Elapsed * float64(time.Second))
	} else if startTime, ok := subTestStartTimes[event.Test]; ok {
		subTest.Duration = event.Time.Sub(startTime)
	}
}

func updateSubTestError(subTest *types.TestResult, output string) {
	output = strings.TrimSpace(stripansi.Strip(output))
	if strings.Contains(output, "Error:") || strings.Contains(output, "panic:") ||
		strings.Contains(output, "--- FAIL:") {
		if subTest.Error == nil {
			subTest.Error = fmt.Errorf("%s", output)
		} else {
			subTest.Error = fmt.Errorf("%w\n%s", subTest.Error, output)
		}
	}
}

func calculateTestDuration(start, end time.Time) time.Duration {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	duration := end.Sub(start)
	if duration < 0 {
		return 0
	}
	return duration
}

// frameworkLine reports whether a line was printed by the testing package
// itself rather than by the test.
func frameworkLine(line string) bool {
	t := strings.TrimSpace(line)
	switch {
	case t == "", t == "PASS", t == "FAIL":
		return true
	case strings.HasPrefix(t, "=== "), strings.HasPrefix(t, "--- "):
		return true
	case strings.HasPrefix(t, "ok "), strings.HasPrefix(t, "ok\t"), strings.HasPrefix(t, "FAIL\t"):
		return true
	case strings.HasPrefix(t, "exit status "), strings.HasPrefix(t, "testing: warning: no tests to run"):
		return true
	}
	return false
}

func cleanLines(outputs []string) []string {
	var lines []string
	for _, out := range outputs {
		for _, line := range strings.Split(stripansi.Strip(out), "\n") {
			line = strings.TrimRight(line, " \t\r")
			if !frameworkLine(line) {
				lines = append(lines, line)
			}
		}
	}
	return lines
}

// failureReason condenses the output of a failed test, falling back to the
// package output for build failures and crashes outside the test.
func failureReason(testOutput, pkgOutput []string) string {
	lines := cleanLines(testOutput)
	if len(lines) == 0 {
		lines = cleanLines(pkgOutput)
	}
	if len(lines) > maxReasonLines {
		lines = lines[len(lines)-maxReasonLines:]
	}
	return strings.TrimSpace(trimLines(lines))
}

// skipReason returns the message passed to t.Skip, without its source prefix.
func skipReason(testOutput []string) string {
	lines := cleanLines(testOutput)
	if len(lines) == 0 {
		return ""
	}
	last := strings.TrimSpace(lines[len(lines)-1])
	return sourcePrefix.ReplaceAllString(last, "")
}

// trimLines left-trims every line, continuation lines included.
func trimLines(lines []string) string {
	trimmed := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed = append(trimmed, strings.TrimLeft(line, " \t"))
	}
	return strings.Join(trimmed, "\n")
}
