package workflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// RunState represents the lifecycle state of a workflow run.
type RunState string

const (
	// RunStateRunning means the workflow is currently executing or
	// awaiting resumption after a restart.
	RunStateRunning RunState = "running"
	// RunStateCompleted means the workflow finished successfully.
	RunStateCompleted RunState = "completed"
	// RunStateFailed means the workflow failed terminally.
	RunStateFailed RunState = "failed"
)

// Run represents a single execution of a workflow.
type Run struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	JobID       string         `json:"job_id,omitempty"`
	ParentRunID string         `json:"parent_run_id,omitempty"`
	State       RunState       `json:"state"`
	Input       []byte         `json:"input,omitempty"`
	Output      []byte         `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the run has completed or failed.
func (r *Run) IsTerminal() bool {
	return r.State == RunStateCompleted || r.State == RunStateFailed
}

// Progress is a snapshot of how far a run has advanced.
type Progress struct {
	CurrentStep    string    `json:"current_step"`
	CompletedSteps int       `json:"completed_steps"`
	TotalSteps     int       `json:"total_steps"`
	At             time.Time `json:"at"`
}

// RunResult is the outcome of a workflow run as reported to callers.
// Failures of the handler, including panics, appear here as
// Success=false with Error set rather than as Go errors.
type RunResult struct {
	Success     bool            `json:"success"`
	Status      RunState        `json:"status"`
	Data        json.RawMessage `json:"data,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at,omitzero"`
	Duration    time.Duration   `json:"duration"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// Result builds the RunResult view of a run. A run that is still running
// reports Status running and Success false.
func Result(run *Run) RunResult {
	res := RunResult{
		Success:   run.State == RunStateCompleted,
		Status:    run.State,
		Error:     run.Error,
		StartedAt: run.StartedAt,
		Metadata:  run.Metadata,
	}
	if len(run.Output) > 0 {
		res.Data = json.RawMessage(run.Output)
	}
	if run.CompletedAt != nil {
		res.CompletedAt = *run.CompletedAt
		res.Duration = run.CompletedAt.Sub(run.StartedAt)
	}
	return res
}

// DecodeOutput unmarshals a completed run's output into R.
func DecodeOutput[R any](run *Run) (R, error) {
	var out R
	if len(run.Output) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(run.Output, &out); err != nil {
		return out, fmt.Errorf("decode output of run %s: %w", run.ID, err)
	}
	return out, nil
}
