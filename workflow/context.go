package workflow

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/xraph/vectorflow/middleware"
)

// StepEmitter is called by the Workflow to emit step lifecycle events.
// This interface is satisfied by ext.Registry (via an adapter in the
// engine package) to break the import cycle between workflow and ext.
type StepEmitter interface {
	EmitStepCompleted(ctx context.Context, run *Run, stepName string, elapsed time.Duration)
	EmitStepFailed(ctx context.Context, run *Run, stepName string, err error)
	EmitStepRetrying(ctx context.Context, run *Run, stepName string, attempt int, err error, delay time.Duration)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Workflow is the execution context passed to workflow handler functions.
// It provides durable step execution, parallel fan-out, conditional
// steps and durable sleep. Step results are checkpointed by name so a
// resumed run skips work it already finished.
type Workflow struct {
	ctx     context.Context
	run     *Run
	store   Store
	emitter RunEmitter
	logger  *slog.Logger
	mw      middleware.Middleware
	sleep   SleepFunc

	mu       sync.Mutex
	metadata map[string]any
	progress []Progress
}

// NewWorkflowContext creates a new Workflow execution context.
// This is called by the workflow runner, not by users.
func NewWorkflowContext(
	ctx context.Context,
	run *Run,
	store Store,
	emitter RunEmitter,
	logger *slog.Logger,
	mw middleware.Middleware,
	sleep SleepFunc,
) *Workflow {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if mw == nil {
		mw = stepChain(logger)
	}
	if sleep == nil {
		sleep = timerSleep
	}
	return &Workflow{
		ctx:      ctx,
		run:      run,
		store:    store,
		emitter:  emitter,
		logger:   logger,
		mw:       mw,
		sleep:    sleep,
		metadata: make(map[string]any),
	}
}

// Context returns the underlying context.Context.
func (w *Workflow) Context() context.Context { return w.ctx }

// RunID returns the workflow run ID.
func (w *Workflow) RunID() string { return w.run.ID }

// Run returns the workflow run.
func (w *Workflow) Run() *Run { return w.run }

// Logger returns a logger annotated with the run ID.
func (w *Workflow) Logger() *slog.Logger {
	return w.logger.With(slog.String("run_id", w.run.ID))
}

// SetMetadata records a key on the run's result metadata.
func (w *Workflow) SetMetadata(key string, value any) {
	w.mu.Lock()
	w.metadata[key] = value
	w.mu.Unlock()
}

// Progress records a progress snapshot on the run's metadata and
// forwards it to the emitter.
func (w *Workflow) Progress(currentStep string, completed, total int) {
	p := Progress{
		CurrentStep:    currentStep,
		CompletedSteps: completed,
		TotalSteps:     total,
		At:             time.Now().UTC(),
	}
	w.mu.Lock()
	w.progress = append(w.progress, p)
	w.mu.Unlock()
	w.emitter.EmitWorkflowProgress(w.ctx, w.run, p)
}

// Metadata returns a copy of the metadata accumulated so far, with
// progress snapshots under the "progress" key.
func (w *Workflow) Metadata() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := maps.Clone(w.metadata)
	if len(w.progress) > 0 {
		out["progress"] = append([]Progress(nil), w.progress...)
	}
	return out
}

// stepChain wraps mws so that per-attempt timeouts and panic recovery
// always sit closest to the step function.
func stepChain(logger *slog.Logger, mws ...middleware.Middleware) middleware.Middleware {
	chain := append([]middleware.Middleware(nil), mws...)
	chain = append(chain, middleware.Timeout(logger), middleware.Recover(logger))
	return middleware.Chain(chain...)
}
