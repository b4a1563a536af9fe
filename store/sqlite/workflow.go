package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/workflow"
)

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	m, err := toRunModel(run)
	if err != nil {
		return fmt.Errorf("vectorflow/sqlite: create run: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return vectorflow.ErrRunAlreadyExists
		}
		return fmt.Errorf("vectorflow/sqlite: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*workflow.Run, error) {
	m := new(runModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", runID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, vectorflow.ErrRunNotFound
		}
		return nil, fmt.Errorf("vectorflow/sqlite: get run: %w", err)
	}
	r, err := fromRunModel(m)
	if err != nil {
		return nil, fmt.Errorf("vectorflow/sqlite: get run: %w", err)
	}
	return r, nil
}

// UpdateRun persists changes to an existing workflow run.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	m, err := toRunModel(run)
	if err != nil {
		return fmt.Errorf("vectorflow/sqlite: update run: %w", err)
	}
	res, err := s.sdb.NewUpdate((*runModel)(nil)).
		Set("state = ?", m.State).
		Set("output = ?", m.Output).
		Set("error = ?", m.Error).
		Set("metadata = ?", m.Metadata).
		Set("completed_at = ?", m.CompletedAt).
		Where("id = ?", m.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("vectorflow/sqlite: update run: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return vectorflow.ErrRunNotFound
	}
	return nil
}

// ListRuns returns workflow runs matching the given options, oldest first.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	var models []runModel
	q := s.sdb.NewSelect(&models)
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}
	if opts.Name != "" {
		q = q.Where("name = ?", opts.Name)
	}
	if opts.JobID != "" {
		q = q.Where("job_id = ?", opts.JobID)
	}
	q = q.OrderExpr("started_at ASC, id ASC")

	switch {
	case opts.Limit > 0:
		q = q.Limit(opts.Limit)
	case opts.Offset > 0:
		q = q.Limit(noLimit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("vectorflow/sqlite: list runs: %w", err)
	}

	result := make([]*workflow.Run, 0, len(models))
	for i := range models {
		r, err := fromRunModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("vectorflow/sqlite: list runs convert: %w", err)
		}
		result = append(result, r)
	}
	return result, nil
}

// DeleteRun removes a run and its checkpoints. Checkpoints go first so an
// interrupted delete never leaves checkpoints without their run.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.sdb.NewDelete((*checkpointModel)(nil)).
		Where("run_id = ?", runID).
		Exec(ctx); err != nil {
		return fmt.Errorf("vectorflow/sqlite: delete checkpoints: %w", err)
	}
	if _, err := s.sdb.NewDelete((*runModel)(nil)).
		Where("id = ?", runID).
		Exec(ctx); err != nil {
		return fmt.Errorf("vectorflow/sqlite: delete run: %w", err)
	}
	return nil
}

// SaveCheckpoint upserts checkpoint data for a workflow step.
func (s *Store) SaveCheckpoint(ctx context.Context, runID, stepName string, data []byte) error {
	m := &checkpointModel{
		RunID:     runID,
		StepName:  stepName,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(run_id, step_name) DO UPDATE").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("vectorflow/sqlite: save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a specific workflow step.
func (s *Store) GetCheckpoint(ctx context.Context, runID, stepName string) ([]byte, error) {
	m := new(checkpointModel)
	err := s.sdb.NewSelect(m).
		Where("run_id = ?", runID).
		Where("step_name = ?", stepName).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vectorflow/sqlite: get checkpoint: %w", err)
	}
	return m.Data, nil
}

// ListCheckpoints returns all checkpoints for a workflow run in the order
// they were first saved.
func (s *Store) ListCheckpoints(ctx context.Context, runID string) ([]*workflow.Checkpoint, error) {
	var models []checkpointModel
	err := s.sdb.NewSelect(&models).
		Where("run_id = ?", runID).
		OrderExpr("created_at ASC, rowid ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("vectorflow/sqlite: list checkpoints: %w", err)
	}

	result := make([]*workflow.Checkpoint, 0, len(models))
	for i := range models {
		result = append(result, fromCheckpointModel(&models[i]))
	}
	return result, nil
}
