package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/workflow"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobCreated    []entry[JobCreated]
	jobDispatched []entry[JobDispatched]
	jobCompleted  []entry[JobCompleted]
	jobFailed     []entry[JobFailed]
	jobsExpired   []entry[JobsExpired]

	workflowStarted       []entry[WorkflowStarted]
	workflowStepCompleted []entry[WorkflowStepCompleted]
	workflowStepFailed    []entry[WorkflowStepFailed]
	workflowStepRetrying  []entry[WorkflowStepRetrying]
	workflowProgress      []entry[WorkflowProgress]
	workflowCompleted     []entry[WorkflowCompleted]
	workflowFailed        []entry[WorkflowFailed]

	shutdown []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// cache appends e to list if it implements H.
func cache[H any](list []entry[H], name string, e Extension) []entry[H] {
	if h, ok := e.(H); ok {
		return append(list, entry[H]{name: name, hook: h})
	}
	return list
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
// Register is not safe to call concurrently with Emit methods; register
// everything before starting the engine.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	r.jobCreated = cache(r.jobCreated, name, e)
	r.jobDispatched = cache(r.jobDispatched, name, e)
	r.jobCompleted = cache(r.jobCompleted, name, e)
	r.jobFailed = cache(r.jobFailed, name, e)
	r.jobsExpired = cache(r.jobsExpired, name, e)

	r.workflowStarted = cache(r.workflowStarted, name, e)
	r.workflowStepCompleted = cache(r.workflowStepCompleted, name, e)
	r.workflowStepFailed = cache(r.workflowStepFailed, name, e)
	r.workflowStepRetrying = cache(r.workflowStepRetrying, name, e)
	r.workflowProgress = cache(r.workflowProgress, name, e)
	r.workflowCompleted = cache(r.workflowCompleted, name, e)
	r.workflowFailed = cache(r.workflowFailed, name, e)

	r.shutdown = cache(r.shutdown, name, e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobCreated notifies all extensions that implement JobCreated.
func (r *Registry) EmitJobCreated(ctx context.Context, rec *job.Record) {
	for _, e := range r.jobCreated {
		if err := e.hook.OnJobCreated(ctx, rec); err != nil {
			r.logHookError("OnJobCreated", e.name, err)
		}
	}
}

// EmitJobDispatched notifies all extensions that implement JobDispatched.
func (r *Registry) EmitJobDispatched(ctx context.Context, rec *job.Record) {
	for _, e := range r.jobDispatched {
		if err := e.hook.OnJobDispatched(ctx, rec); err != nil {
			r.logHookError("OnJobDispatched", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, rec *job.Record, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, rec, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, rec *job.Record) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, rec); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitJobsExpired notifies all extensions that implement JobsExpired.
func (r *Registry) EmitJobsExpired(ctx context.Context, recs []*job.Record) {
	for _, e := range r.jobsExpired {
		if err := e.hook.OnJobsExpired(ctx, recs); err != nil {
			r.logHookError("OnJobsExpired", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Workflow event emitters
// ──────────────────────────────────────────────────

// EmitWorkflowStarted notifies all extensions that implement WorkflowStarted.
func (r *Registry) EmitWorkflowStarted(ctx context.Context, run *workflow.Run) {
	for _, e := range r.workflowStarted {
		if err := e.hook.OnWorkflowStarted(ctx, run); err != nil {
			r.logHookError("OnWorkflowStarted", e.name, err)
		}
	}
}

// EmitWorkflowStepCompleted notifies all extensions that implement WorkflowStepCompleted.
func (r *Registry) EmitWorkflowStepCompleted(ctx context.Context, run *workflow.Run, stepName string, elapsed time.Duration) {
	for _, e := range r.workflowStepCompleted {
		if err := e.hook.OnWorkflowStepCompleted(ctx, run, stepName, elapsed); err != nil {
			r.logHookError("OnWorkflowStepCompleted", e.name, err)
		}
	}
}

// EmitWorkflowStepFailed notifies all extensions that implement WorkflowStepFailed.
func (r *Registry) EmitWorkflowStepFailed(ctx context.Context, run *workflow.Run, stepName string, stepErr error) {
	for _, e := range r.workflowStepFailed {
		if err := e.hook.OnWorkflowStepFailed(ctx, run, stepName, stepErr); err != nil {
			r.logHookError("OnWorkflowStepFailed", e.name, err)
		}
	}
}

// EmitWorkflowStepRetrying notifies all extensions that implement WorkflowStepRetrying.
func (r *Registry) EmitWorkflowStepRetrying(ctx context.Context, run *workflow.Run, stepName string, attempt int, stepErr error, delay time.Duration) {
	for _, e := range r.workflowStepRetrying {
		if err := e.hook.OnWorkflowStepRetrying(ctx, run, stepName, attempt, stepErr, delay); err != nil {
			r.logHookError("OnWorkflowStepRetrying", e.name, err)
		}
	}
}

// EmitWorkflowProgress notifies all extensions that implement WorkflowProgress.
func (r *Registry) EmitWorkflowProgress(ctx context.Context, run *workflow.Run, p workflow.Progress) {
	for _, e := range r.workflowProgress {
		if err := e.hook.OnWorkflowProgress(ctx, run, p); err != nil {
			r.logHookError("OnWorkflowProgress", e.name, err)
		}
	}
}

// EmitWorkflowCompleted notifies all extensions that implement WorkflowCompleted.
func (r *Registry) EmitWorkflowCompleted(ctx context.Context, run *workflow.Run, elapsed time.Duration) {
	for _, e := range r.workflowCompleted {
		if err := e.hook.OnWorkflowCompleted(ctx, run, elapsed); err != nil {
			r.logHookError("OnWorkflowCompleted", e.name, err)
		}
	}
}

// EmitWorkflowFailed notifies all extensions that implement WorkflowFailed.
func (r *Registry) EmitWorkflowFailed(ctx context.Context, run *workflow.Run, runErr error) {
	for _, e := range r.workflowFailed {
		if err := e.hook.OnWorkflowFailed(ctx, run, runErr); err != nil {
			r.logHookError("OnWorkflowFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
