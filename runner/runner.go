package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/wetest/atomicgroup"
	"github.com/ethereum-optimism/infra/wetest/docstring"
	"github.com/ethereum-optimism/infra/wetest/metrics"
	"github.com/ethereum-optimism/infra/wetest/options"
	"github.com/ethereum-optimism/infra/wetest/registry"
	"github.com/ethereum-optimism/infra/wetest/types"
)

// ResultSink receives every finished test in execution order, then the run
// summary once the session completes.
type ResultSink interface {
	Consume(result *types.TestResult) error
	Complete(summary types.RunSummary) error
}

// SinkError wraps a failure reported by a sink's Complete.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("failed to complete results: %v", e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// TestRunner defines the interface for running a test session
type TestRunner interface {
	RunAllTests(ctx context.Context) (*RunnerResult, error)
}

// Config holds configuration for creating a new runner
type Config struct {
	// Registry supplies the packages when Packages is empty.
	Registry *registry.Registry
	Packages []*types.Package

	Executor TestExecutor
	Options  options.Options
	// Active enables doc comment processing and atomic tracking. An inactive
	// session runs every test and reports it under its structural identifier.
	Active bool

	Sinks     []ResultSink
	Progress  ProgressIndicator
	Collector ResultCollector
	Log       log.Logger
	RunID     string
	Root      string
}

// runner runs every collected test serially in collection order
type runner struct {
	packages  []*types.Package
	executor  TestExecutor
	opts      options.Options
	active    bool
	sinks     []ResultSink
	progress  ProgressIndicator
	collector ResultCollector
	log       log.Logger
	runID     string
	root      string
	tracer    trace.Tracer
}

// NewTestRunner creates a new test runner instance
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	packages := cfg.Packages
	if len(packages) == 0 && cfg.Registry != nil {
		packages = cfg.Registry.GetPackages()
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Progress == nil {
		cfg.Progress = NewNoOpProgressIndicator()
	}
	if cfg.Collector == nil {
		cfg.Collector = NewResultCollector()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}

	cfg.Log.Debug("NewTestRunner()", "packages", len(packages), "active", cfg.Active,
		"atomic", cfg.Active && cfg.Options.Atomic, "sinks", len(cfg.Sinks))

	return &runner{
		packages:  packages,
		executor:  cfg.Executor,
		opts:      cfg.Options,
		active:    cfg.Active,
		sinks:     cfg.Sinks,
		progress:  cfg.Progress,
		collector: cfg.Collector,
		log:       cfg.Log,
		runID:     cfg.RunID,
		root:      cfg.Root,
		tracer:    otel.Tracer("test runner"),
	}, nil
}

// RunAllTests runs the session. A cancelled context aborts the session
// without completing the sinks. A sink that fails to complete yields the
// collected result together with a *SinkError.
func (r *runner) RunAllTests(ctx context.Context) (*RunnerResult, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("run %s", r.runID))
	defer span.End()

	result := r.collector.NewRunResult(r.runID)
	tracker := atomicgroup.NewTracker(r.active && r.opts.Atomic)

	total := 0
	for _, pkg := range r.packages {
		total += pkg.CountTests()
	}
	r.log.Debug("Running all tests", "run_id", r.runID, "tests", total)
	r.progress.StartRun(total)
	defer r.progress.Stop()

	for _, pkg := range r.packages {
		if err := r.runPackage(ctx, pkg, tracker, result); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	r.collector.FinalizeResults(result)

	summary := types.RunSummary{
		RunID:    r.runID,
		Root:     r.root,
		Stats:    result.Stats,
		Duration: result.Duration,
		ExitCode: result.ExitCode(),
	}
	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Complete(summary); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		err := &SinkError{Err: errors.Join(errs...)}
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	return result, nil
}

func (r *runner) runPackage(ctx context.Context, pkg *types.Package, tracker *atomicgroup.Tracker, result *RunnerResult) error {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("package %s", pkg.ImportPath))
	defer span.End()

	for _, scope := range pkg.Scopes {
		if err := r.runScope(ctx, scope, tracker, result); err != nil {
			return err
		}
	}
	return nil
}

// runScope runs the items of one scope against a fresh tracker state. A
// class scope nested in a module scope gets its own state.
func (r *runner) runScope(ctx context.Context, scope *types.Scope, tracker *atomicgroup.Tracker, result *RunnerResult) error {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("%s %s", scope.Kind, scope.Name))
	defer span.End()

	state := tracker.Enter(scope.Name)
	r.progress.StartScope(scope)
	defer r.progress.CompleteScope(scope)

	for _, item := range scope.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case item.Class != nil:
			if err := r.runScope(ctx, item.Class, tracker, result); err != nil {
				return err
			}
		case item.Test != nil:
			if err := r.runTest(ctx, state, item.Test, result); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *runner) runTest(ctx context.Context, state *atomicgroup.Scope, tc *types.TestCase, result *RunnerResult) error {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("test %s", tc.GoTestName()))
	defer span.End()

	markers := atomicgroup.Markers{Atomic: tc.Atomic, Electronic: tc.Electronic}
	r.progress.StartTest(tc.NodeID())

	var res *types.TestResult
	if state.Decide(markers) == atomicgroup.Skip {
		r.log.Debug("Skipping test", "test", tc.NodeID(), "scope", state.Name())
		res = &types.TestResult{
			Case:   *tc,
			Status: types.TestStatusSkip,
			Reason: atomicgroup.SkipReason,
			Forced: true,
		}
		metrics.RecordForcedSkip(r.runID, state.Name())
	} else {
		var err error
		res, err = r.execute(ctx, *tc)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.log.Error("Test execution failed", "test", tc.NodeID(), "err", err)
			metrics.RecordErrorDetails("test_execution", err)
			res = &types.TestResult{
				Case:   *tc,
				Status: types.TestStatusFail,
				Error:  err,
				Reason: err.Error(),
			}
		}
		state.Record(markers, trackerOutcome(res.Status))
	}

	r.describe(res)
	span.SetAttributes(
		attribute.String("nodeid", res.DisplayName()),
		attribute.String("outcome", res.Status.Outcome()),
		attribute.Bool("forced", res.Forced),
	)
	if res.Status == types.TestStatusFail {
		span.SetStatus(codes.Error, res.Reason)
	}

	for _, sink := range r.sinks {
		if err := sink.Consume(res); err != nil {
			r.log.Warn("Result sink failed", "test", res.DisplayName(), "err", err)
			metrics.RecordErrorDetails("result_sink", err)
		}
	}
	r.collector.AddTestResult(result, res)
	metrics.RecordTest(r.runID, tc.Package, res.Status, res.Duration)
	r.progress.UpdateTest(tc.NodeID(), res.Status)
	return nil
}

// execute runs one test, converting a panic in the executor into an error.
func (r *runner) execute(ctx context.Context, tc types.TestCase) (res *types.TestResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = fmt.Errorf("panic while running %s: %v", tc.NodeID(), p)
		}
	}()
	res, err = r.executor.Execute(ctx, tc)
	if err == nil && res == nil {
		err = fmt.Errorf("no result for %s", tc.NodeID())
	}
	return res, err
}

// describe fills the display identifier and, for an active session, the
// title and metadata taken from the doc comment.
func (r *runner) describe(res *types.TestResult) {
	tc := res.Case
	res.NodeID = tc.NodeID()
	if !r.active {
		return
	}
	if r.opts.ChineseNodeID {
		if name, ok := docstring.ExtractIdentifier(tc.Doc, r.opts.NodeIDDelimiter); ok {
			res.NodeID = tc.NodeIDWithName(name)
		}
	}
	if r.opts.Metadata {
		res.Metadata = docstring.ParseMetadata(tc.Doc, r.opts.MetaDelimiter, r.opts.MetaAssignmentSymbol)
	}
	res.Title = docstring.Title(tc.Doc, r.opts.MetaDelimiter, r.opts.NodeIDDelimiter)
}

func trackerOutcome(status types.TestStatus) atomicgroup.Outcome {
	switch status {
	case types.TestStatusPass:
		return atomicgroup.Passed
	case types.TestStatusSkip:
		return atomicgroup.Skipped
	default:
		return atomicgroup.Failed
	}
}
