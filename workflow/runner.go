package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/id"
	"github.com/xraph/vectorflow/middleware"
)

// RunEmitter emits workflow-level lifecycle events.
// This interface is satisfied by ext.Registry (via an adapter in the
// engine package) to break the import cycle between workflow and ext.
type RunEmitter interface {
	StepEmitter
	EmitWorkflowStarted(ctx context.Context, run *Run)
	EmitWorkflowCompleted(ctx context.Context, run *Run, elapsed time.Duration)
	EmitWorkflowFailed(ctx context.Context, run *Run, err error)
	EmitWorkflowProgress(ctx context.Context, run *Run, p Progress)
}

// Submitter executes background work with bounded concurrency.
// worker.Pool satisfies it.
type Submitter interface {
	Submit(ctx context.Context, key string, task func(ctx context.Context)) error
}

// Runner orchestrates workflow execution: creating runs, building
// the Workflow context, invoking handlers, and managing state.
type Runner struct {
	registry *Registry
	store    Store
	emitter  RunEmitter
	logger   *slog.Logger
	mws      []middleware.Middleware
	mw       middleware.Middleware
	pool     Submitter
	sleep    SleepFunc
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMiddleware appends step middleware. Timeout and then Recover are
// always applied innermost, after every middleware given here.
func WithMiddleware(mws ...middleware.Middleware) RunnerOption {
	return func(r *Runner) { r.mws = append(r.mws, mws...) }
}

// WithPool runs spawned and resumed runs on the given submitter instead
// of bare goroutines.
func WithPool(p Submitter) RunnerOption {
	return func(r *Runner) { r.pool = p }
}

// WithSleeper replaces the timer used for retry backoff and durable sleep.
func WithSleeper(fn SleepFunc) RunnerOption {
	return func(r *Runner) { r.sleep = fn }
}

// NewRunner creates a workflow runner.
func NewRunner(
	registry *Registry,
	store Store,
	emitter RunEmitter,
	logger *slog.Logger,
	opts ...RunnerOption,
) *Runner {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		registry: registry,
		store:    store,
		emitter:  emitter,
		logger:   logger,
		sleep:    timerSleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.mw = stepChain(logger, r.mws...)
	return r
}

// Registry returns the workflow registry.
func (r *Runner) Registry() *Registry { return r.registry }

// Store returns the workflow store.
func (r *Runner) Store() Store { return r.store }

// StartOption configures a new run.
type StartOption func(*Run)

// WithRunID uses a caller-chosen run ID instead of minting one. Starting
// a run whose ID already exists fails with vectorflow.ErrRunAlreadyExists.
func WithRunID(runID string) StartOption {
	return func(run *Run) { run.ID = runID }
}

// WithJobID correlates the run with a job record.
func WithJobID(jobID string) StartOption {
	return func(run *Run) { run.JobID = jobID }
}

// WithParentRunID records the run that started this one.
func WithParentRunID(parentID string) StartOption {
	return func(run *Run) { run.ParentRunID = parentID }
}

// Start starts a new workflow run with a typed input and waits for it
// to finish. The input is JSON-marshaled and stored on the Run.
func Start[T any](ctx context.Context, runner *Runner, name string, input T, opts ...StartOption) (*Run, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input for workflow %q: %w", name, err)
	}
	return runner.StartRaw(ctx, name, data, opts...)
}

// Spawn starts a new workflow run in the background and returns once
// the run is persisted.
func Spawn[T any](ctx context.Context, runner *Runner, name string, input T, opts ...StartOption) (*Run, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input for workflow %q: %w", name, err)
	}
	return runner.SpawnRaw(ctx, name, data, opts...)
}

// StartRaw starts a workflow run with pre-serialized JSON input and
// executes it synchronously. Handler failures are recorded on the
// returned run, not returned as errors.
func (r *Runner) StartRaw(ctx context.Context, name string, input []byte, opts ...StartOption) (*Run, error) {
	handler, run, err := r.createRun(ctx, name, input, opts)
	if err != nil {
		return nil, err
	}
	r.executeRun(ctx, run, handler)
	return run, nil
}

// SpawnRaw persists a workflow run and executes it in the background.
// The run does not inherit ctx's cancellation. If the run cannot be
// scheduled it stays persisted in the running state and is picked up by
// ResumeAll.
func (r *Runner) SpawnRaw(ctx context.Context, name string, input []byte, opts ...StartOption) (*Run, error) {
	handler, run, err := r.createRun(ctx, name, input, opts)
	if err != nil {
		return nil, err
	}
	if err := r.schedule(ctx, run, handler); err != nil {
		return run, fmt.Errorf("schedule run %s: %w", run.ID, err)
	}
	return run, nil
}

func (r *Runner) createRun(ctx context.Context, name string, input []byte, opts []StartOption) (RunnerFunc, *Run, error) {
	handler, ok := r.registry.Get(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", vectorflow.ErrWorkflowNotFound, name)
	}

	run := &Run{
		ID:        id.NewRunID().String(),
		Name:      name,
		State:     RunStateRunning,
		Input:     input,
		StartedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(run)
	}

	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("create run for workflow %q: %w", name, err)
	}

	r.emitter.EmitWorkflowStarted(ctx, run)
	return handler, run, nil
}

func (r *Runner) schedule(ctx context.Context, run *Run, handler RunnerFunc) error {
	if r.pool == nil {
		go r.executeRun(context.WithoutCancel(ctx), run, handler)
		return nil
	}
	return r.pool.Submit(ctx, run.ID, func(taskCtx context.Context) {
		r.executeRun(taskCtx, run, handler)
	})
}

// executeRun runs the workflow handler and records completion or failure.
func (r *Runner) executeRun(ctx context.Context, run *Run, handler RunnerFunc) {
	start := time.Now()
	wf := NewWorkflowContext(ctx, run, r.store, r.emitter, r.logger, r.mw, r.sleep)

	output, err := invoke(wf, handler, run.Input)
	elapsed := time.Since(start)
	now := time.Now().UTC()
	run.Metadata = wf.Metadata()

	// Store writes outlive a cancelled run context.
	storeCtx := context.WithoutCancel(ctx)

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// Interrupted by shutdown: leave the run resumable.
			r.logger.Warn("workflow run interrupted",
				slog.String("run_id", run.ID),
				slog.String("workflow", run.Name),
			)
			return
		}
		run.State = RunStateFailed
		run.Error = err.Error()
		run.CompletedAt = &now
		if updateErr := r.store.UpdateRun(storeCtx, run); updateErr != nil {
			r.logger.Error("failed to update run as failed",
				slog.String("run_id", run.ID),
				slog.String("error", updateErr.Error()),
			)
		}
		r.emitter.EmitWorkflowFailed(storeCtx, run, err)
		return
	}

	run.State = RunStateCompleted
	run.Output = output
	run.CompletedAt = &now
	if updateErr := r.store.UpdateRun(storeCtx, run); updateErr != nil {
		r.logger.Error("failed to update run as completed",
			slog.String("run_id", run.ID),
			slog.String("error", updateErr.Error()),
		)
	}
	r.emitter.EmitWorkflowCompleted(storeCtx, run, elapsed)
}

// invoke calls the handler, converting a panic into an error.
func invoke(wf *Workflow, handler RunnerFunc, input []byte) (out []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			wf.logger.Error("workflow handler panicked",
				slog.String("run_id", wf.run.ID),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic in workflow %s: %v", wf.run.Name, rec)
		}
	}()
	return handler(wf, input)
}

// Get returns a run by ID.
func (r *Runner) Get(ctx context.Context, runID string) (*Run, error) {
	return r.store.GetRun(ctx, runID)
}

// Resume re-executes a run that is still in the running state (crash
// recovery) and waits for it. Checkpointed steps are skipped.
func (r *Runner) Resume(ctx context.Context, runID string) error {
	run, handler, err := r.resumable(ctx, runID)
	if err != nil {
		return err
	}
	r.executeRun(ctx, run, handler)
	return nil
}

func (r *Runner) resumable(ctx context.Context, runID string) (*Run, RunnerFunc, error) {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.State != RunStateRunning {
		return nil, nil, fmt.Errorf("%w: run %s is %q, not running", vectorflow.ErrInvalidState, runID, run.State)
	}
	handler, ok := r.registry.Get(run.Name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q (run %s)", vectorflow.ErrWorkflowNotFound, run.Name, runID)
	}
	return run, handler, nil
}

// ResumeAll finds all runs in the running state whose workflow is in
// this runner's registry and schedules them again. Called at startup for
// crash recovery.
func (r *Runner) ResumeAll(ctx context.Context) (int, error) {
	runs, err := r.store.ListRuns(ctx, ListOpts{State: RunStateRunning})
	if err != nil {
		return 0, fmt.Errorf("list running workflow runs: %w", err)
	}

	resumed := 0
	for _, run := range runs {
		handler, ok := r.registry.Get(run.Name)
		if !ok {
			// Runners sharing a store split workflows between registries.
			r.logger.Debug("skipping run of workflow not registered here",
				slog.String("run_id", run.ID),
				slog.String("workflow", run.Name),
			)
			continue
		}
		r.logger.Info("resuming workflow run",
			slog.String("run_id", run.ID),
			slog.String("workflow", run.Name),
		)
		if schedErr := r.schedule(ctx, run, handler); schedErr != nil {
			r.logger.Error("failed to resume workflow run",
				slog.String("run_id", run.ID),
				slog.String("error", schedErr.Error()),
			)
			continue
		}
		resumed++
	}
	return resumed, nil
}
