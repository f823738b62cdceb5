// Package atomicgroup decides, per scope, whether a test may run.
//
// An atomic test that fails poisons its scope: every later ordinary test in
// the same scope is skipped without running until another atomic test passes.
// Electronic tests always run and never change the scope state.
package atomicgroup

// SkipReason is reported for tests skipped because of a poisoned scope.
const SkipReason = "skipped due to preceding atomic failure"

// Decision is the tracker's verdict for a test that is about to run.
type Decision int

const (
	Run Decision = iota
	Skip
)

func (d Decision) String() string {
	if d == Skip {
		return "skip"
	}
	return "run"
}

// Outcome is the result of a test as seen by the tracker.
type Outcome int

const (
	Passed Outcome = iota
	Failed
	Skipped
)

// Markers are the role markers of one test.
type Markers struct {
	Atomic     bool
	Electronic bool
}

func (m Markers) ordinary() bool {
	return !m.Atomic && !m.Electronic
}

// Tracker hands out independent scope states.
type Tracker struct {
	enabled bool
}

// NewTracker returns a tracker. A disabled tracker lets every test run.
func NewTracker(enabled bool) *Tracker {
	return &Tracker{enabled: enabled}
}

// Enabled reports whether atomic tracking is on.
func (t *Tracker) Enabled() bool {
	return t.enabled
}

// Enter starts a new scope with a clear state.
func (t *Tracker) Enter(name string) *Scope {
	return &Scope{name: name, enabled: t.enabled}
}

// Scope is the tracking state of one module or class scope. It is not safe
// for concurrent use.
type Scope struct {
	name     string
	enabled  bool
	poisoned bool
}

// Name returns the scope name given to Enter.
func (s *Scope) Name() string {
	return s.name
}

// Poisoned reports whether an atomic failure is in effect.
func (s *Scope) Poisoned() bool {
	return s.poisoned
}

// Decide returns Skip for an ordinary test in a poisoned scope and Run
// otherwise.
func (s *Scope) Decide(m Markers) Decision {
	if s.enabled && s.poisoned && m.ordinary() {
		return Skip
	}
	return Run
}

// Record updates the scope with the outcome of a test that ran. Only atomic
// tests change the state; a skipped atomic test leaves it as it was.
func (s *Scope) Record(m Markers, outcome Outcome) {
	if !s.enabled || !m.Atomic {
		return
	}
	switch outcome {
	case Failed:
		s.poisoned = true
	case Passed:
		s.poisoned = false
	}
}
