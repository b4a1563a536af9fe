// Package audithook is a vectorflow extension that turns job and
// workflow lifecycle events into an audit trail.
//
// Every hook emits a structured [AuditEvent] through the [Recorder]
// interface with a severity (info for normal operations, warning for
// step failures and retries, critical for failed jobs and runs) and
// metadata such as job kind, elapsed time and errors. [SlogRecorder]
// writes events to a logger; other backends plug in via [RecorderFunc].
//
//	eng, _ := engine.Build(store,
//	    engine.WithExtension(audithook.New(audithook.SlogRecorder(auditLogger))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionWorkflowFailed,
//	    ),
//	)
package audithook
