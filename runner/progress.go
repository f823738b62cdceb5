package runner

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/wetest/types"
)

// ProgressIndicator receives progress notifications from the session.
type ProgressIndicator interface {
	StartRun(totalTests int)
	StartScope(scope *types.Scope)
	StartTest(nodeID string)
	UpdateTest(nodeID string, status types.TestStatus)
	CompleteScope(scope *types.Scope)
	Stop()
}

// noOpProgressIndicator provides a no-op implementation of ProgressIndicator
type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) StartRun(totalTests int)                           {}
func (n *noOpProgressIndicator) StartScope(scope *types.Scope)                     {}
func (n *noOpProgressIndicator) StartTest(nodeID string)                           {}
func (n *noOpProgressIndicator) UpdateTest(nodeID string, status types.TestStatus) {}
func (n *noOpProgressIndicator) CompleteScope(scope *types.Scope)                  {}
func (n *noOpProgressIndicator) Stop()                                             {}

// consoleProgressIndicator logs a progress line at a fixed interval while
// the session runs.
type consoleProgressIndicator struct {
	logger   log.Logger
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex

	scopes         []string // enclosing scopes, outermost first
	scopeStarts    []time.Time
	completedTests int
	totalTests     int
	currentTest    string
	testStart      time.Time
}

// NewConsoleProgressIndicator creates a progress indicator that shows updates in the console
func NewConsoleProgressIndicator(logger log.Logger, updateInterval time.Duration) ProgressIndicator {
	if updateInterval <= 0 {
		updateInterval = 30 * time.Second
	}

	indicator := &consoleProgressIndicator{
		logger: logger,
		ticker: time.NewTicker(updateInterval),
		stopCh: make(chan struct{}),
	}
	go indicator.progressReporter()
	return indicator
}

func (c *consoleProgressIndicator) StartRun(totalTests int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalTests = totalTests
	c.completedTests = 0
	c.logger.Info("Starting run", "totalTests", totalTests)
}

func (c *consoleProgressIndicator) StartScope(scope *types.Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scopes = append(c.scopes, scope.Name)
	c.scopeStarts = append(c.scopeStarts, time.Now())
	c.logger.Debug("Starting scope", "kind", scope.Kind, "scope", scope.Name, "tests", scope.CountTests())
}

func (c *consoleProgressIndicator) StartTest(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentTest = nodeID
	c.testStart = time.Now()
}

func (c *consoleProgressIndicator) UpdateTest(nodeID string, status types.TestStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.completedTests++
	c.currentTest = ""
	c.logger.Debug("Test completed", "test", nodeID, "status", status, "completed", c.completedTests, "total", c.totalTests)
}

func (c *consoleProgressIndicator) CompleteScope(scope *types.Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.scopes)
	if n == 0 {
		return
	}
	duration := time.Since(c.scopeStarts[n-1]).Truncate(time.Millisecond)
	c.scopes = c.scopes[:n-1]
	c.scopeStarts = c.scopeStarts[:n-1]
	c.logger.Debug("Completed scope", "kind", scope.Kind, "scope", scope.Name, "duration", duration)
}

func (c *consoleProgressIndicator) progressReporter() {
	for {
		select {
		case <-c.ticker.C:
			c.reportProgress()
		case <-c.stopCh:
			return
		}
	}
}

func (c *consoleProgressIndicator) reportProgress() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	c.logger.Info("Progress update", c.progressFields(time.Now())...)
}

func (c *consoleProgressIndicator) progressFields(now time.Time) []interface{} {
	var percentComplete float64
	if c.totalTests > 0 {
		percentComplete = float64(c.completedTests) * 100.0 / float64(c.totalTests)
	}

	running := ""
	if c.currentTest != "" {
		running = fmt.Sprintf("%s (%v)", c.currentTest, now.Sub(c.testStart).Truncate(time.Second))
	}
	scope := ""
	if n := len(c.scopes); n > 0 {
		scope = c.scopes[n-1]
	}

	return []interface{}{
		"scope", scope,
		"completed", c.completedTests,
		"total", c.totalTests,
		"percent", fmt.Sprintf("%.1f%%", percentComplete),
		"running", running,
	}
}

// Stop stops the progress indicator
func (c *consoleProgressIndicator) Stop() {
	c.stopOnce.Do(func() {
		c.ticker.Stop()
		close(c.stopCh)
	})
}
