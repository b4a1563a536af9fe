package workflow_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/vectorflow/store/memory"
	"github.com/xraph/vectorflow/workflow"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder captures lifecycle events and retry waits.
type recorder struct {
	workflow.NopEmitter

	mu        sync.Mutex
	retries   []retryEvent
	completed []string
	failed    []string
	runsDone  int
	runsFail  []string
	progress  []workflow.Progress
	sleeps    []time.Duration
}

type retryEvent struct {
	step    string
	attempt int
	delay   time.Duration
}

func (r *recorder) EmitStepCompleted(_ context.Context, _ *workflow.Run, step string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, step)
}

func (r *recorder) EmitStepFailed(_ context.Context, _ *workflow.Run, step string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, step)
}

func (r *recorder) EmitStepRetrying(_ context.Context, _ *workflow.Run, step string, attempt int, _ error, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = append(r.retries, retryEvent{step: step, attempt: attempt, delay: delay})
}

func (r *recorder) EmitWorkflowCompleted(context.Context, *workflow.Run, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runsDone++
}

func (r *recorder) EmitWorkflowFailed(_ context.Context, _ *workflow.Run, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runsFail = append(r.runsFail, err.Error())
}

func (r *recorder) EmitWorkflowProgress(_ context.Context, _ *workflow.Run, p workflow.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

// sleep records the requested wait and returns immediately.
func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

type harness struct {
	store    *memory.Store
	registry *workflow.Registry
	runner   *workflow.Runner
	rec      *recorder
}

// newHarness builds a runner over a memory store whose retry waits are
// recorded instead of slept.
func newHarness(opts ...workflow.RunnerOption) *harness {
	h := &harness{
		store:    memory.New(),
		registry: workflow.NewRegistry(),
		rec:      &recorder{},
	}
	opts = append([]workflow.RunnerOption{workflow.WithSleeper(h.rec.sleep)}, opts...)
	h.runner = workflow.NewRunner(h.registry, h.store, h.rec, testLogger(), opts...)
	return h
}

// newWorkflow returns a Workflow context for a fresh persisted run, for
// exercising steps without a registered handler.
func (h *harness) newWorkflow(ctx context.Context, runID string) *workflow.Workflow {
	run := &workflow.Run{ID: runID, Name: "test", State: workflow.RunStateRunning, StartedAt: time.Now().UTC()}
	if err := h.store.CreateRun(ctx, run); err != nil {
		panic(err)
	}
	return workflow.NewWorkflowContext(ctx, run, h.store, h.rec, testLogger(), nil, h.rec.sleep)
}
