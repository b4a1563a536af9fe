package ext

import (
	"context"
	"time"

	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/workflow"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobCreated is called after a job record is registered.
type JobCreated interface {
	OnJobCreated(ctx context.Context, rec *job.Record) error
}

// JobDispatched is called when a job moves from pending to processing.
type JobDispatched interface {
	OnJobDispatched(ctx context.Context, rec *job.Record) error
}

// JobCompleted is called when a job reaches completed. elapsed is
// measured from the record's creation.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, rec *job.Record, elapsed time.Duration) error
}

// JobFailed is called when a job reaches failed.
type JobFailed interface {
	OnJobFailed(ctx context.Context, rec *job.Record) error
}

// JobsExpired is called after an expiry pass removed records.
type JobsExpired interface {
	OnJobsExpired(ctx context.Context, recs []*job.Record) error
}

// ──────────────────────────────────────────────────
// Workflow lifecycle hooks
// ──────────────────────────────────────────────────

// WorkflowStarted is called when a workflow run begins.
type WorkflowStarted interface {
	OnWorkflowStarted(ctx context.Context, r *workflow.Run) error
}

// WorkflowStepCompleted is called after a workflow step completes.
type WorkflowStepCompleted interface {
	OnWorkflowStepCompleted(ctx context.Context, r *workflow.Run, stepName string, elapsed time.Duration) error
}

// WorkflowStepFailed is called when a step exhausts its attempts.
type WorkflowStepFailed interface {
	OnWorkflowStepFailed(ctx context.Context, r *workflow.Run, stepName string, err error) error
}

// WorkflowStepRetrying is called before a failed step waits to retry.
type WorkflowStepRetrying interface {
	OnWorkflowStepRetrying(ctx context.Context, r *workflow.Run, stepName string, attempt int, err error, delay time.Duration) error
}

// WorkflowProgress is called for every progress snapshot a run records.
type WorkflowProgress interface {
	OnWorkflowProgress(ctx context.Context, r *workflow.Run, p workflow.Progress) error
}

// WorkflowCompleted is called after a workflow run finishes successfully.
type WorkflowCompleted interface {
	OnWorkflowCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error
}

// WorkflowFailed is called when a workflow run fails terminally.
type WorkflowFailed interface {
	OnWorkflowFailed(ctx context.Context, r *workflow.Run, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
