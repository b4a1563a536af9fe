package workflow

import "context"

// ListOpts controls filtering and pagination for workflow run list queries.
type ListOpts struct {
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
	// Offset is the number of runs to skip.
	Offset int
	// State filters by run state. Empty means all states.
	State RunState
	// Name filters by workflow name. Empty means all workflows.
	Name string
	// JobID filters by correlated job. Empty means all jobs.
	JobID string
}

// Store defines the persistence contract for workflow runs and the
// (run id, step name) checkpoint cache.
type Store interface {
	// CreateRun persists a new workflow run. Returns
	// vectorflow.ErrRunAlreadyExists if the ID is taken.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a workflow run by ID. Returns
	// vectorflow.ErrRunNotFound if absent.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// UpdateRun persists changes to an existing workflow run.
	UpdateRun(ctx context.Context, run *Run) error

	// ListRuns returns workflow runs matching the given options, oldest first.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)

	// DeleteRun removes a run and all of its checkpoints.
	DeleteRun(ctx context.Context, runID string) error

	// SaveCheckpoint persists checkpoint data for a workflow step.
	// If a checkpoint already exists for the same run/step, it is replaced.
	SaveCheckpoint(ctx context.Context, runID, stepName string, data []byte) error

	// GetCheckpoint retrieves checkpoint data for a specific workflow step.
	// Returns nil data if no checkpoint exists.
	GetCheckpoint(ctx context.Context, runID, stepName string) ([]byte, error)

	// ListCheckpoints returns all checkpoints for a workflow run.
	ListCheckpoints(ctx context.Context, runID string) ([]*Checkpoint, error)
}
