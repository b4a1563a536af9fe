package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/workflow"
)

const runColumns = `id, name, job_id, parent_run_id, state, input, output, error, metadata, started_at, completed_at`

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vectorflow_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.Name, run.JobID, run.ParentRunID, string(run.State),
		run.Input, run.Output, run.Error, run.Metadata, run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return vectorflow.ErrRunAlreadyExists
		}
		return fmt.Errorf("vectorflow/postgres: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*workflow.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM vectorflow_runs WHERE id = $1`, runID)
	r, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, vectorflow.ErrRunNotFound
		}
		return nil, fmt.Errorf("vectorflow/postgres: get run: %w", err)
	}
	return r, nil
}

// UpdateRun persists changes to an existing workflow run.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE vectorflow_runs
		SET state = $2, output = $3, error = $4, metadata = $5, completed_at = $6
		WHERE id = $1`,
		run.ID, string(run.State), run.Output, run.Error, run.Metadata, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("vectorflow/postgres: update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vectorflow.ErrRunNotFound
	}
	return nil
}

// ListRuns returns workflow runs matching the given options, oldest first.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	w := &where{}
	if opts.State != "" {
		w.add("state = $%d", string(opts.State))
	}
	if opts.Name != "" {
		w.add("name = $%d", opts.Name)
	}
	if opts.JobID != "" {
		w.add("job_id = $%d", opts.JobID)
	}
	query := `SELECT ` + runColumns + ` FROM vectorflow_runs` + w.String() +
		` ORDER BY started_at ASC, id ASC`
	query += w.page(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("vectorflow/postgres: list runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*workflow.Run, error) {
		return scanRun(row)
	})
	if err != nil {
		return nil, fmt.Errorf("vectorflow/postgres: list runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run; its checkpoints cascade.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM vectorflow_runs WHERE id = $1`, runID); err != nil {
		return fmt.Errorf("vectorflow/postgres: delete run: %w", err)
	}
	return nil
}

// SaveCheckpoint upserts checkpoint data for a workflow step.
func (s *Store) SaveCheckpoint(ctx context.Context, runID, stepName string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vectorflow_checkpoints (run_id, step_name, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, step_name) DO UPDATE SET data = EXCLUDED.data`,
		runID, stepName, data,
	)
	if err != nil {
		return fmt.Errorf("vectorflow/postgres: save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a specific workflow step.
func (s *Store) GetCheckpoint(ctx context.Context, runID, stepName string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM vectorflow_checkpoints WHERE run_id = $1 AND step_name = $2`,
		runID, stepName,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vectorflow/postgres: get checkpoint: %w", err)
	}
	return data, nil
}

// ListCheckpoints returns all checkpoints for a workflow run in the order
// they were first saved.
func (s *Store) ListCheckpoints(ctx context.Context, runID string) ([]*workflow.Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, step_name, data, created_at
		FROM vectorflow_checkpoints
		WHERE run_id = $1
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("vectorflow/postgres: list checkpoints: %w", err)
	}
	cps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*workflow.Checkpoint, error) {
		var cp workflow.Checkpoint
		if err := row.Scan(&cp.RunID, &cp.StepName, &cp.Data, &cp.CreatedAt); err != nil {
			return nil, err
		}
		cp.CreatedAt = cp.CreatedAt.UTC()
		return &cp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("vectorflow/postgres: list checkpoints: %w", err)
	}
	return cps, nil
}

func scanRun(row pgx.Row) (*workflow.Run, error) {
	var (
		r           workflow.Run
		state       string
		completedAt *time.Time
	)
	if err := row.Scan(&r.ID, &r.Name, &r.JobID, &r.ParentRunID, &state,
		&r.Input, &r.Output, &r.Error, &r.Metadata, &r.StartedAt, &completedAt); err != nil {
		return nil, err
	}
	r.State = workflow.RunState(state)
	r.StartedAt = r.StartedAt.UTC()
	if completedAt != nil {
		t := completedAt.UTC()
		r.CompletedAt = &t
	}
	return &r, nil
}
