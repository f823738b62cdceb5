// Package runner executes a collected test session one test at a time.
//
// The main components are:
//   - TestRunner: walks packages and scopes in collection order, consulting
//     the atomic tracker before each test and fanning results out to sinks
//   - TestExecutor: runs a single test in its own go test process
//   - OutputParser: turns go test -json events into a TestResult
//   - ResultCollector: aggregates results per package and per run
//   - JSONStore: keeps the raw go test -json output of each test
package runner
