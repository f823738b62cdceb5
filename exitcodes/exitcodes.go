// Package exitcodes defines the exit codes used by wetest.
package exitcodes

// Exit code constants used by wetest
//
// * Success (0): every test passed or was skipped
// * TestFailure (1): one or more tests failed
// * RuntimeErr (2): configuration or collection errors, an unwritable report, an interrupted session
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors or interruptions
)
