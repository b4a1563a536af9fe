package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobCreated            = "job.created"
	ActionJobDispatched         = "job.dispatched"
	ActionJobCompleted          = "job.completed"
	ActionJobFailed             = "job.failed"
	ActionJobExpired            = "job.expired"
	ActionWorkflowStarted       = "workflow.started"
	ActionWorkflowStepCompleted = "workflow.step_completed"
	ActionWorkflowStepFailed    = "workflow.step_failed"
	ActionWorkflowStepRetrying  = "workflow.step_retrying"
	ActionWorkflowCompleted     = "workflow.completed"
	ActionWorkflowFailed        = "workflow.failed"
)

// Audit event categories group related actions.
const (
	CategoryJob      = "vectorflow.job"
	CategoryWorkflow = "vectorflow.workflow"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob      = "job"
	ResourceWorkflow = "workflow_run"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobCreated,
		ActionJobDispatched,
		ActionJobCompleted,
		ActionJobFailed,
		ActionJobExpired,
		ActionWorkflowStarted,
		ActionWorkflowStepCompleted,
		ActionWorkflowStepFailed,
		ActionWorkflowStepRetrying,
		ActionWorkflowCompleted,
		ActionWorkflowFailed,
	}
}
