package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/vectorflow/ext"
	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/workflow"
)

// Compile-time interface checks.
var (
	_ ext.Extension             = (*Extension)(nil)
	_ ext.JobCreated            = (*Extension)(nil)
	_ ext.JobDispatched         = (*Extension)(nil)
	_ ext.JobCompleted          = (*Extension)(nil)
	_ ext.JobFailed             = (*Extension)(nil)
	_ ext.JobsExpired           = (*Extension)(nil)
	_ ext.WorkflowStarted       = (*Extension)(nil)
	_ ext.WorkflowStepCompleted = (*Extension)(nil)
	_ ext.WorkflowStepFailed    = (*Extension)(nil)
	_ ext.WorkflowStepRetrying  = (*Extension)(nil)
	_ ext.WorkflowCompleted     = (*Extension)(nil)
	_ ext.WorkflowFailed        = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// SlogRecorder writes each event as one log record: critical events at
// error level, warnings at warn, everything else at info.
func SlogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		for k, v := range evt.Metadata {
			attrs = append(attrs, slog.Any(k, v))
		}
		logger.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges vectorflow lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobCreated implements ext.JobCreated.
func (e *Extension) OnJobCreated(ctx context.Context, rec *job.Record) error {
	kv := []any{"kind", string(rec.Kind), "namespace", rec.Namespace}
	if rec.Metadata != nil && rec.Metadata.ParentID != "" {
		kv = append(kv, "parent_id", rec.Metadata.ParentID)
	}
	return e.record(ctx, ActionJobCreated, SeverityInfo, OutcomeSuccess,
		ResourceJob, rec.ID, CategoryJob, "", kv...)
}

// OnJobDispatched implements ext.JobDispatched.
func (e *Extension) OnJobDispatched(ctx context.Context, rec *job.Record) error {
	kv := []any{"kind", string(rec.Kind)}
	if rec.Metadata != nil && rec.Metadata.RunID != "" {
		kv = append(kv, "run_id", rec.Metadata.RunID)
	}
	return e.record(ctx, ActionJobDispatched, SeverityInfo, OutcomeSuccess,
		ResourceJob, rec.ID, CategoryJob, "", kv...)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, rec *job.Record, elapsed time.Duration) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		ResourceJob, rec.ID, CategoryJob, "",
		"kind", string(rec.Kind),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, rec *job.Record) error {
	return e.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure,
		ResourceJob, rec.ID, CategoryJob, rec.Error,
		"kind", string(rec.Kind),
	)
}

// OnJobsExpired implements ext.JobsExpired. One event is recorded per
// removed job.
func (e *Extension) OnJobsExpired(ctx context.Context, recs []*job.Record) error {
	for _, rec := range recs {
		_ = e.record(ctx, ActionJobExpired, SeverityInfo, OutcomeSuccess,
			ResourceJob, rec.ID, CategoryJob, "",
			"kind", string(rec.Kind),
			"status", string(rec.Status),
			"created_at", rec.CreatedAt.Format(time.RFC3339),
		)
	}
	return nil
}

// ── Workflow lifecycle hooks ────────────────────────

// OnWorkflowStarted implements ext.WorkflowStarted.
func (e *Extension) OnWorkflowStarted(ctx context.Context, r *workflow.Run) error {
	return e.record(ctx, ActionWorkflowStarted, SeverityInfo, OutcomeSuccess,
		ResourceWorkflow, r.ID, CategoryWorkflow, "",
		runPairs(r)...)
}

// OnWorkflowStepCompleted implements ext.WorkflowStepCompleted.
func (e *Extension) OnWorkflowStepCompleted(ctx context.Context, r *workflow.Run, stepName string, elapsed time.Duration) error {
	return e.record(ctx, ActionWorkflowStepCompleted, SeverityInfo, OutcomeSuccess,
		ResourceWorkflow, r.ID, CategoryWorkflow, "",
		append(runPairs(r), "step_name", stepName, "elapsed_ms", elapsed.Milliseconds())...)
}

// OnWorkflowStepFailed implements ext.WorkflowStepFailed.
func (e *Extension) OnWorkflowStepFailed(ctx context.Context, r *workflow.Run, stepName string, stepErr error) error {
	return e.record(ctx, ActionWorkflowStepFailed, SeverityWarning, OutcomeFailure,
		ResourceWorkflow, r.ID, CategoryWorkflow, errString(stepErr),
		append(runPairs(r), "step_name", stepName)...)
}

// OnWorkflowStepRetrying implements ext.WorkflowStepRetrying.
func (e *Extension) OnWorkflowStepRetrying(ctx context.Context, r *workflow.Run, stepName string, attempt int, stepErr error, delay time.Duration) error {
	return e.record(ctx, ActionWorkflowStepRetrying, SeverityWarning, OutcomeFailure,
		ResourceWorkflow, r.ID, CategoryWorkflow, errString(stepErr),
		append(runPairs(r), "step_name", stepName, "attempt", attempt, "delay_ms", delay.Milliseconds())...)
}

// OnWorkflowCompleted implements ext.WorkflowCompleted.
func (e *Extension) OnWorkflowCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error {
	return e.record(ctx, ActionWorkflowCompleted, SeverityInfo, OutcomeSuccess,
		ResourceWorkflow, r.ID, CategoryWorkflow, "",
		append(runPairs(r), "elapsed_ms", elapsed.Milliseconds())...)
}

// OnWorkflowFailed implements ext.WorkflowFailed.
func (e *Extension) OnWorkflowFailed(ctx context.Context, r *workflow.Run, runErr error) error {
	return e.record(ctx, ActionWorkflowFailed, SeverityCritical, OutcomeFailure,
		ResourceWorkflow, r.ID, CategoryWorkflow, errString(runErr),
		runPairs(r)...)
}

// ── Internal helpers ────────────────────────────────

func runPairs(r *workflow.Run) []any {
	kv := []any{"workflow_name", r.Name}
	if r.JobID != "" {
		kv = append(kv, "job_id", r.JobID)
	}
	if r.ParentRunID != "" {
		kv = append(kv, "parent_run_id", r.ParentRunID)
	}
	return kv
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	reason string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}
	if reason != "" {
		meta["error"] = reason
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
