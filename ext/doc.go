// Package ext defines the extension system for vectorflow.
//
// Extensions are notified of job and workflow lifecycle events and can
// react to them, for example by recording metrics or writing audit logs.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, rec *job.Record, elapsed time.Duration) error {
//	    log.Printf("job %s completed in %s", rec.ID, elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobCreated]: a record was registered (pending)
//   - [JobDispatched]: the job's workflow was started (processing)
//   - [JobCompleted]: the job finished successfully
//   - [JobFailed]: the job failed
//   - [JobsExpired]: an expiry pass removed terminal records
//
// # Workflow Lifecycle Hooks
//
//   - [WorkflowStarted], [WorkflowCompleted], [WorkflowFailed]
//   - [WorkflowStepCompleted], [WorkflowStepFailed], [WorkflowStepRetrying]
//   - [WorkflowProgress]: a run recorded a progress snapshot
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never interrupt the pipeline.
package ext
