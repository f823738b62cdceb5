// Package wetest runs Go tests one at a time and, when activated, attaches
// doc comment metadata to each result, applies atomic group semantics and
// writes a JSON report.
package wetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/wetest/logging"
	"github.com/ethereum-optimism/infra/wetest/options"
	"github.com/ethereum-optimism/infra/wetest/registry"
	"github.com/ethereum-optimism/infra/wetest/reporting"
	"github.com/ethereum-optimism/infra/wetest/runner"
	"github.com/ethereum-optimism/infra/wetest/service"
	"github.com/ethereum-optimism/infra/wetest/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// session implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &session{}

// session runs the collected tests once and reports the outcome.
type session struct {
	ctx       context.Context
	config    *Config
	version   string
	runID     string
	opts      options.Options
	registry  *registry.Registry
	executor  TestExecutor
	formatter ResultFormatter
	reporter  MetricsReporter
	service   *service.Service
	rawSink   *logging.RawJSONSink
	out       io.Writer
	result    *runner.RunnerResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New loads the options, collects the tests and wires the runner. Console
// output goes to out, or stdout when out is nil.
func New(ctx context.Context, config *Config, version string, out io.Writer, shutdownCallback func(error)) (*session, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	styled := false
	if out == nil {
		out = os.Stdout
		styled = reporting.ColorsEnabled(os.Stdout)
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}
	runID := uuid.New().String()

	config.Log.Debug("Creating session with config",
		"testDir", config.TestDir,
		"patterns", config.Patterns,
		"enabled", config.Enabled,
		"configFile", config.ConfigFile)

	opts := options.Default()
	if config.Enabled {
		var err error
		opts, err = options.Resolve(config.ConfigFile, config.TestDir, config.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to load options: %w", err)
		}
	}

	snapshot := config.Snapshot()
	snapshot.Extension = opts.Snapshot(config.Enabled)
	snapshot.RunID = runID
	config.Log.Info("Effective configuration", "config", snapshot)

	reg, err := registry.NewRegistry(registry.Config{
		Log:      config.Log,
		TestDir:  config.TestDir,
		Patterns: config.Patterns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	var rawSink *logging.RawJSONSink
	if config.RawJSONOut != "" {
		rawSink, err = logging.NewRawJSONSink(config.RawJSONOut)
		if err != nil {
			return nil, fmt.Errorf("failed to create raw JSON output: %w", err)
		}
	}

	testExecutor, err := runner.NewTestExecutor(config.Timeout, config.GoBinary, runner.DefaultCommandBuilder,
		runner.NewOutputParser(), runner.NewJSONStore(rawSink), config.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create test executor: %w", err)
	}

	sinks := []runner.ResultSink{reporting.NewResultStream(out, reg.CountTests(), styled)}
	if config.Enabled {
		if path, ok := opts.ReportPath(time.Now()); ok {
			asm, err := reporting.NewAssembler(reporting.AssemblerConfig{
				Path:  path,
				Title: opts.ReportTitle(),
				Out:   out,
				Log:   config.Log,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create report assembler: %w", err)
			}
			sinks = append(sinks, asm)
		}
	}
	if rawSink != nil {
		sinks = append(sinks, rawSink)
	}

	var progress runner.ProgressIndicator
	if config.ShowProgress {
		progress = runner.NewConsoleProgressIndicator(config.Log, config.ProgressInterval)
	}

	testRunner, err := runner.NewTestRunner(runner.Config{
		Registry: reg,
		Executor: testExecutor,
		Options:  opts,
		Active:   config.Enabled,
		Sinks:    sinks,
		Progress: progress,
		Log:      config.Log,
		RunID:    runID,
		Root:     config.TestDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}
	config.Log.Debug("wetest.New: created registry and test runner", "tests", reg.CountTests())

	return &session{
		ctx:              ctx,
		config:           config,
		version:          version,
		runID:            runID,
		opts:             opts,
		registry:         reg,
		executor:         NewDefaultTestExecutor(testRunner, config.Log),
		formatter:        NewConsoleResultFormatter(config.Log, out, styled),
		reporter:         NewDefaultMetricsReporter(),
		service:          service.New(service.Config{HealthzAddr: config.HealthzAddr, MetricsAddr: config.MetricsAddr, Log: config.Log}),
		rawSink:          rawSink,
		out:              out,
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the session once. Start implements the cliapp.Lifecycle interface.
func (s *session) Start(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.config.Log.Error("Runtime error occurred", "error", r)
			err = NewRuntimeError(fmt.Errorf("panic: %v", r))
		}
	}()

	s.ctx = ctx
	s.running.Store(true)
	s.config.Log.Info("Starting wetest", "version", s.version, "run_id", s.runID, "enabled", s.config.Enabled)

	if err := s.service.Start(ctx); err != nil {
		return NewRuntimeError(err)
	}

	if err := s.runTests(ctx); err != nil {
		s.config.Log.Error("Session ended with an error", "error", err)
		return err
	}

	if s.result.Status == types.TestStatusFail {
		s.config.Log.Warn("Test run completed with failures, returning exit code 1")
		return NewTestFailureError(s.result)
	}

	go func() {
		s.shutdownCallback(nil)
	}()
	return nil
}

func (s *session) runTests(ctx context.Context) error {
	result, err := s.executor.RunTests(ctx)
	if result != nil {
		s.result = result
		if ferr := s.formatter.FormatResults(result); ferr != nil {
			s.config.Log.Warn("Failed to print results", "error", ferr)
		}
		fmt.Fprintln(s.out, result.String())
		s.reporter.ReportResults(s.runID, result)
		s.service.Healthz.MarkDone()
	}
	return classifyRunError(err)
}

// classifyRunError turns an error from the test runner into the session error
// kind that decides the exit code.
func classifyRunError(err error) error {
	var writeErr *reporting.WriteError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &InterruptedError{Cause: err}
	case errors.As(err, &writeErr):
		return &ReportError{Path: writeErr.Path, Err: writeErr.Err}
	default:
		return NewRuntimeError(err)
	}
}

// Stop implements the cliapp.Lifecycle interface.
func (s *session) Stop(ctx context.Context) error {
	s.config.Log.Info("Stopping wetest")

	if !s.running.Load() {
		s.config.Log.Debug("Session already stopped, nothing to do")
		return nil
	}
	s.running.Store(false)

	var errs []error
	if s.rawSink != nil {
		errs = append(errs, s.rawSink.Close())
	}
	errs = append(errs, s.service.Shutdown(ctx))
	s.config.Log.Info("wetest stopped")
	return errors.Join(errs...)
}

func (s *session) Stopped() bool {
	return !s.running.Load()
}

// Result returns the result of the last run, nil before it completes.
func (s *session) Result() *runner.RunnerResult {
	return s.result
}
