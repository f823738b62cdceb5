package runner

import "time"

// Test execution constants
const (
	// Default go binary name
	DefaultGoBinary = "go"

	// Test command arguments
	TestCommand = "test"
	JSONFlag    = "-json"
	VerboseFlag = "-v"
	TimeoutFlag = "-timeout"
	CountFlag   = "-count"
	RunFlag     = "-run"

	// Test count to disable caching
	DisableCacheCount = "1"

	// Tests run from inside their package directory
	CurrentDirPattern = "."

	// How long a cancelled go test may keep its output pipes open
	commandWaitDelay = 5 * time.Second
)
