package ext_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/xraph/vectorflow/ext"
	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) record(name string) error {
	e.calls = append(e.calls, name)
	return nil
}

func (e *allHooksExt) OnJobCreated(context.Context, *job.Record) error {
	return e.record("OnJobCreated")
}

func (e *allHooksExt) OnJobDispatched(context.Context, *job.Record) error {
	return e.record("OnJobDispatched")
}

func (e *allHooksExt) OnJobCompleted(context.Context, *job.Record, time.Duration) error {
	return e.record("OnJobCompleted")
}

func (e *allHooksExt) OnJobFailed(context.Context, *job.Record) error {
	return e.record("OnJobFailed")
}

func (e *allHooksExt) OnJobsExpired(context.Context, []*job.Record) error {
	return e.record("OnJobsExpired")
}

func (e *allHooksExt) OnWorkflowStarted(context.Context, *workflow.Run) error {
	return e.record("OnWorkflowStarted")
}

func (e *allHooksExt) OnWorkflowStepCompleted(context.Context, *workflow.Run, string, time.Duration) error {
	return e.record("OnWorkflowStepCompleted")
}

func (e *allHooksExt) OnWorkflowStepFailed(context.Context, *workflow.Run, string, error) error {
	return e.record("OnWorkflowStepFailed")
}

func (e *allHooksExt) OnWorkflowStepRetrying(context.Context, *workflow.Run, string, int, error, time.Duration) error {
	return e.record("OnWorkflowStepRetrying")
}

func (e *allHooksExt) OnWorkflowProgress(context.Context, *workflow.Run, workflow.Progress) error {
	return e.record("OnWorkflowProgress")
}

func (e *allHooksExt) OnWorkflowCompleted(context.Context, *workflow.Run, time.Duration) error {
	return e.record("OnWorkflowCompleted")
}

func (e *allHooksExt) OnWorkflowFailed(context.Context, *workflow.Run, error) error {
	return e.record("OnWorkflowFailed")
}

func (e *allHooksExt) OnShutdown(context.Context) error {
	return e.record("OnShutdown")
}

// jobOnlyExt only implements job-related hooks.
type jobOnlyExt struct {
	calls []string
}

func (e *jobOnlyExt) Name() string { return "job-only" }

func (e *jobOnlyExt) OnJobCreated(context.Context, *job.Record) error {
	e.calls = append(e.calls, "OnJobCreated")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobCreated(context.Context, *job.Record) error {
	return errors.New("boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(testLogger())
	all := &allHooksExt{}
	jo := &jobOnlyExt{}
	r.Register(all)
	r.Register(jo)

	ctx := context.Background()
	rec := &job.Record{ID: "vec_1"}

	r.EmitJobCreated(ctx, rec)
	if !slices.Equal(all.calls, []string{"OnJobCreated"}) || !slices.Equal(jo.calls, []string{"OnJobCreated"}) {
		t.Fatalf("calls: all=%v jo=%v", all.calls, jo.calls)
	}

	r.EmitJobDispatched(ctx, rec)
	if len(all.calls) != 2 || len(jo.calls) != 1 {
		t.Fatalf("calls after dispatch: all=%v jo=%v", all.calls, jo.calls)
	}
	if got := len(r.Extensions()); got != 2 {
		t.Errorf("extensions = %d, want 2", got)
	}
}

func TestRegistry_AllHooksFire(t *testing.T) {
	r := ext.NewRegistry(testLogger())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	rec := &job.Record{ID: "vec_1"}
	run := &workflow.Run{Name: "create-vector"}
	fail := errors.New("fail")

	r.EmitJobCreated(ctx, rec)
	r.EmitJobDispatched(ctx, rec)
	r.EmitJobCompleted(ctx, rec, time.Second)
	r.EmitJobFailed(ctx, rec)
	r.EmitJobsExpired(ctx, []*job.Record{rec})
	r.EmitWorkflowStarted(ctx, run)
	r.EmitWorkflowStepCompleted(ctx, run, "embed", time.Second)
	r.EmitWorkflowStepFailed(ctx, run, "store", fail)
	r.EmitWorkflowStepRetrying(ctx, run, "store", 1, fail, time.Second)
	r.EmitWorkflowProgress(ctx, run, workflow.Progress{CurrentStep: "embed"})
	r.EmitWorkflowCompleted(ctx, run, time.Second)
	r.EmitWorkflowFailed(ctx, run, fail)
	r.EmitShutdown(ctx)

	want := []string{
		"OnJobCreated", "OnJobDispatched", "OnJobCompleted", "OnJobFailed", "OnJobsExpired",
		"OnWorkflowStarted", "OnWorkflowStepCompleted", "OnWorkflowStepFailed",
		"OnWorkflowStepRetrying", "OnWorkflowProgress", "OnWorkflowCompleted",
		"OnWorkflowFailed", "OnShutdown",
	}
	if !slices.Equal(all.calls, want) {
		t.Errorf("calls = %v, want %v", all.calls, want)
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(testLogger())
	all := &allHooksExt{}
	r.Register(&failingExt{})
	r.Register(all)

	r.EmitJobCreated(context.Background(), &job.Record{})
	if !slices.Equal(all.calls, []string{"OnJobCreated"}) {
		t.Fatalf("all: expected [OnJobCreated] despite failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(nil)
	ctx := context.Background()

	r.EmitJobCreated(ctx, &job.Record{})
	r.EmitJobFailed(ctx, &job.Record{})
	r.EmitWorkflowStarted(ctx, &workflow.Run{})
	r.EmitWorkflowFailed(ctx, &workflow.Run{}, errors.New("x"))
	r.EmitShutdown(ctx)
}
