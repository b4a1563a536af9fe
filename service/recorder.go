package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xraph/vectorflow/ext"
	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/workflow"
)

var (
	_ ext.WorkflowProgress  = (*jobRecorder)(nil)
	_ ext.WorkflowCompleted = (*jobRecorder)(nil)
	_ ext.WorkflowFailed    = (*jobRecorder)(nil)
)

// jobRecorder is the single writer of a job record while its run is
// active: it mirrors progress and moves the job to its terminal state
// when the run finishes. Runs without a job ID (sub-jobs) are ignored.
type jobRecorder struct {
	jobs *job.Manager
}

func (r *jobRecorder) Name() string { return "job-recorder" }

func (r *jobRecorder) OnWorkflowProgress(ctx context.Context, run *workflow.Run, p workflow.Progress) error {
	if run.JobID == "" {
		return nil
	}
	return r.jobs.Update(ctx, run.JobID, job.StatusProcessing, &job.Patch{
		Progress: &job.Progress{
			CurrentStep:    p.CurrentStep,
			TotalSteps:     p.TotalSteps,
			CompletedSteps: p.CompletedSteps,
		},
	})
}

func (r *jobRecorder) OnWorkflowCompleted(ctx context.Context, run *workflow.Run, _ time.Duration) error {
	if run.JobID == "" {
		return nil
	}
	meta := &job.Metadata{}
	if len(run.Output) > 0 {
		if err := json.Unmarshal(run.Output, meta); err != nil {
			return r.jobs.Update(ctx, run.JobID, job.StatusFailed, &job.Patch{
				Error: "decode run output: " + err.Error(),
			})
		}
	}
	meta.RunID = run.ID
	return r.jobs.Update(ctx, run.JobID, job.StatusCompleted, &job.Patch{Metadata: meta})
}

func (r *jobRecorder) OnWorkflowFailed(ctx context.Context, run *workflow.Run, err error) error {
	if run.JobID == "" {
		return nil
	}
	return r.jobs.Update(ctx, run.JobID, job.StatusFailed, &job.Patch{Error: err.Error()})
}
