package audithook_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	ah "github.com/xraph/vectorflow/audit_hook"
	"github.com/xraph/vectorflow/ext"
	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/workflow"
)

// ── Mock recorder ────────────────────────────────────

// mockRecorder captures audit events for verification.
type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockRecorder) last() *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// ── Test helpers ─────────────────────────────────────

func newTestRecord() *job.Record {
	return &job.Record{
		ID:        "job-1",
		Namespace: "default",
		Kind:      job.KindCreation,
		Status:    job.StatusPending,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Metadata:  &job.Metadata{ParentID: "bulk-1", RunID: "run-1"},
	}
}

func newTestRun() *workflow.Run {
	return &workflow.Run{
		ID:    "run-1",
		Name:  "create-vector",
		JobID: "job-1",
	}
}

// ── Tests ────────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	e := ah.New(&mockRecorder{})
	if e.Name() != "audit-hook" {
		t.Errorf("expected name %q, got %q", "audit-hook", e.Name())
	}
}

func TestExtension_JobCreated(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	r := newTestRecord()

	if err := e.OnJobCreated(context.Background(), r); err != nil {
		t.Fatalf("OnJobCreated: %v", err)
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no event recorded")
	}
	if evt.Action != ah.ActionJobCreated {
		t.Errorf("Action: want %q, got %q", ah.ActionJobCreated, evt.Action)
	}
	if evt.Resource != ah.ResourceJob || evt.Category != ah.CategoryJob {
		t.Errorf("Resource/Category: got %q/%q", evt.Resource, evt.Category)
	}
	if evt.ResourceID != "job-1" {
		t.Errorf("ResourceID: want %q, got %q", "job-1", evt.ResourceID)
	}
	if evt.Severity != ah.SeverityInfo || evt.Outcome != ah.OutcomeSuccess {
		t.Errorf("Severity/Outcome: got %q/%q", evt.Severity, evt.Outcome)
	}
	if evt.Metadata["kind"] != "creation" {
		t.Errorf("Metadata[kind]: got %v", evt.Metadata["kind"])
	}
	if evt.Metadata["parent_id"] != "bulk-1" {
		t.Errorf("Metadata[parent_id]: got %v", evt.Metadata["parent_id"])
	}
}

func TestExtension_JobHooks(t *testing.T) {
	ctx := context.Background()
	failed := newTestRecord()
	failed.Status = job.StatusFailed
	failed.Error = "Failed to save vector: Unknown error"

	tests := []struct {
		name     string
		fire     func(e *ah.Extension) error
		action   string
		severity string
		outcome  string
		reason   string
	}{
		{
			name:     "dispatched",
			fire:     func(e *ah.Extension) error { return e.OnJobDispatched(ctx, newTestRecord()) },
			action:   ah.ActionJobDispatched,
			severity: ah.SeverityInfo,
			outcome:  ah.OutcomeSuccess,
		},
		{
			name: "completed",
			fire: func(e *ah.Extension) error {
				return e.OnJobCompleted(ctx, newTestRecord(), 150*time.Millisecond)
			},
			action:   ah.ActionJobCompleted,
			severity: ah.SeverityInfo,
			outcome:  ah.OutcomeSuccess,
		},
		{
			name:     "failed",
			fire:     func(e *ah.Extension) error { return e.OnJobFailed(ctx, failed) },
			action:   ah.ActionJobFailed,
			severity: ah.SeverityCritical,
			outcome:  ah.OutcomeFailure,
			reason:   "Failed to save vector: Unknown error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecorder{}
			if err := tt.fire(ah.New(rec)); err != nil {
				t.Fatalf("hook: %v", err)
			}
			evt := rec.last()
			if evt == nil {
				t.Fatal("no event recorded")
			}
			if evt.Action != tt.action || evt.Severity != tt.severity || evt.Outcome != tt.outcome {
				t.Errorf("got %q %q %q, want %q %q %q",
					evt.Action, evt.Severity, evt.Outcome, tt.action, tt.severity, tt.outcome)
			}
			if evt.Reason != tt.reason {
				t.Errorf("Reason: want %q, got %q", tt.reason, evt.Reason)
			}
		})
	}
}

func TestExtension_JobCompletedElapsed(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	elapsed := 150 * time.Millisecond

	if err := e.OnJobCompleted(context.Background(), newTestRecord(), elapsed); err != nil {
		t.Fatalf("OnJobCompleted: %v", err)
	}
	if got := rec.last().Metadata["elapsed_ms"]; got != elapsed.Milliseconds() {
		t.Errorf("Metadata[elapsed_ms]: want %d, got %v", elapsed.Milliseconds(), got)
	}
}

func TestExtension_JobsExpiredOnePerRecord(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	a, b := newTestRecord(), newTestRecord()
	b.ID = "job-2"
	if err := e.OnJobsExpired(context.Background(), []*job.Record{a, b}); err != nil {
		t.Fatalf("OnJobsExpired: %v", err)
	}
	if rec.count() != 2 {
		t.Fatalf("expected 2 events, got %d", rec.count())
	}
	if evt := rec.last(); evt.Action != ah.ActionJobExpired || evt.ResourceID != "job-2" {
		t.Errorf("last event = %+v", evt)
	}
}

// ── Workflow lifecycle tests ─────────────────────────

func TestExtension_WorkflowHooks(t *testing.T) {
	ctx := context.Background()
	stepErr := errors.New("index unavailable")

	tests := []struct {
		name     string
		fire     func(e *ah.Extension, r *workflow.Run) error
		action   string
		severity string
		step     string
	}{
		{"started", func(e *ah.Extension, r *workflow.Run) error {
			return e.OnWorkflowStarted(ctx, r)
		}, ah.ActionWorkflowStarted, ah.SeverityInfo, ""},
		{"step completed", func(e *ah.Extension, r *workflow.Run) error {
			return e.OnWorkflowStepCompleted(ctx, r, "upsert", time.Millisecond)
		}, ah.ActionWorkflowStepCompleted, ah.SeverityInfo, "upsert"},
		{"step failed", func(e *ah.Extension, r *workflow.Run) error {
			return e.OnWorkflowStepFailed(ctx, r, "upsert", stepErr)
		}, ah.ActionWorkflowStepFailed, ah.SeverityWarning, "upsert"},
		{"step retrying", func(e *ah.Extension, r *workflow.Run) error {
			return e.OnWorkflowStepRetrying(ctx, r, "upsert", 2, stepErr, time.Second)
		}, ah.ActionWorkflowStepRetrying, ah.SeverityWarning, "upsert"},
		{"completed", func(e *ah.Extension, r *workflow.Run) error {
			return e.OnWorkflowCompleted(ctx, r, time.Second)
		}, ah.ActionWorkflowCompleted, ah.SeverityInfo, ""},
		{"failed", func(e *ah.Extension, r *workflow.Run) error {
			return e.OnWorkflowFailed(ctx, r, stepErr)
		}, ah.ActionWorkflowFailed, ah.SeverityCritical, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecorder{}
			if err := tt.fire(ah.New(rec), newTestRun()); err != nil {
				t.Fatalf("hook: %v", err)
			}
			evt := rec.last()
			if evt.Action != tt.action || evt.Severity != tt.severity {
				t.Errorf("got %q/%q, want %q/%q", evt.Action, evt.Severity, tt.action, tt.severity)
			}
			if evt.Resource != ah.ResourceWorkflow || evt.ResourceID != "run-1" {
				t.Errorf("resource = %q %q", evt.Resource, evt.ResourceID)
			}
			if evt.Metadata["workflow_name"] != "create-vector" || evt.Metadata["job_id"] != "job-1" {
				t.Errorf("metadata = %v", evt.Metadata)
			}
			if tt.step != "" && evt.Metadata["step_name"] != tt.step {
				t.Errorf("step_name = %v", evt.Metadata["step_name"])
			}
		})
	}
}

// ── Filtering ────────────────────────────────────────

func TestExtension_WithActions(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.ActionJobFailed))
	ctx := context.Background()

	_ = e.OnJobCreated(ctx, newTestRecord())
	_ = e.OnWorkflowStarted(ctx, newTestRun())
	if rec.count() != 0 {
		t.Fatalf("filtered actions were recorded: %d", rec.count())
	}
	_ = e.OnJobFailed(ctx, newTestRecord())
	if rec.count() != 1 {
		t.Errorf("expected 1 event, got %d", rec.count())
	}
}

func TestExtension_RecorderErrorIsSwallowed(t *testing.T) {
	failing := ah.RecorderFunc(func(context.Context, *ah.AuditEvent) error {
		return errors.New("backend down")
	})
	var logs bytes.Buffer
	e := ah.New(failing, ah.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	if err := e.OnJobCreated(context.Background(), newTestRecord()); err != nil {
		t.Fatalf("recorder error leaked: %v", err)
	}
	if !strings.Contains(logs.String(), "backend down") {
		t.Errorf("recorder error not logged: %q", logs.String())
	}
}

func TestSlogRecorder_Levels(t *testing.T) {
	var logs bytes.Buffer
	e := ah.New(ah.SlogRecorder(slog.New(slog.NewTextHandler(&logs, nil))))
	ctx := context.Background()

	failed := newTestRecord()
	failed.Error = "boom"
	_ = e.OnJobFailed(ctx, failed)

	out := logs.String()
	for _, want := range []string{"level=ERROR", "action=job.failed", "reason=boom", "resource_id=job-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestExtension_ViaRegistry(t *testing.T) {
	rec := &mockRecorder{}
	reg := ext.NewRegistry(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	reg.Register(ah.New(rec))

	reg.EmitJobCreated(context.Background(), newTestRecord())
	reg.EmitWorkflowFailed(context.Background(), newTestRun(), errors.New("x"))

	if rec.count() != 2 {
		t.Errorf("expected 2 events through the registry, got %d", rec.count())
	}
}
