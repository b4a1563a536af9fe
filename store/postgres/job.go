package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/job"
)

const jobColumns = `id, namespace, kind, status, error, progress, metadata, created_at, updated_at, completed_at`

// CreateJob persists a new job record.
func (s *Store) CreateJob(ctx context.Context, r *job.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vectorflow_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.Namespace, string(r.Kind), string(r.Status), r.Error,
		r.Progress, r.Metadata, r.CreatedAt, r.UpdatedAt, r.CompletedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return vectorflow.ErrJobAlreadyExists
		}
		return fmt.Errorf("vectorflow/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job record by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*job.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM vectorflow_jobs WHERE id = $1`, jobID)
	r, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, vectorflow.ErrJobNotFound
		}
		return nil, fmt.Errorf("vectorflow/postgres: get job: %w", err)
	}
	return r, nil
}

// UpdateJob replaces an existing job record.
func (s *Store) UpdateJob(ctx context.Context, r *job.Record) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE vectorflow_jobs
		SET namespace = $2, kind = $3, status = $4, error = $5, progress = $6,
		    metadata = $7, updated_at = $8, completed_at = $9
		WHERE id = $1`,
		r.ID, r.Namespace, string(r.Kind), string(r.Status), r.Error,
		r.Progress, r.Metadata, r.UpdatedAt, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("vectorflow/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vectorflow.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job record by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM vectorflow_jobs WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("vectorflow/postgres: delete job: %w", err)
	}
	return nil
}

// ListJobs returns job records matching opts, newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Record, error) {
	w := jobFilter(opts)
	query := `SELECT ` + jobColumns + ` FROM vectorflow_jobs` + w.String() +
		` ORDER BY created_at DESC, id DESC`
	query += w.page(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("vectorflow/postgres: list jobs: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*job.Record, error) {
		return scanJob(row)
	})
	if err != nil {
		return nil, fmt.Errorf("vectorflow/postgres: list jobs: %w", err)
	}
	return records, nil
}

// CountJobs returns the number of job records matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.ListOpts) (int64, error) {
	w := jobFilter(opts)
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vectorflow_jobs`+w.String(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("vectorflow/postgres: count jobs: %w", err)
	}
	return n, nil
}

func jobFilter(opts job.ListOpts) *where {
	w := &where{}
	if opts.Namespace != "" {
		w.add("namespace = $%d", opts.Namespace)
	}
	if opts.Kind != "" {
		w.add("kind = $%d", string(opts.Kind))
	}
	if opts.Status != "" {
		w.add("status = $%d", string(opts.Status))
	}
	if !opts.CreatedBefore.IsZero() {
		w.add("created_at < $%d", opts.CreatedBefore)
	}
	return w
}

func scanJob(row pgx.Row) (*job.Record, error) {
	var (
		r            job.Record
		kind, status string
		completedAt  *time.Time
	)
	if err := row.Scan(&r.ID, &r.Namespace, &kind, &status, &r.Error,
		&r.Progress, &r.Metadata, &r.CreatedAt, &r.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	r.Kind = job.Kind(kind)
	r.Status = job.Status(status)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if completedAt != nil {
		t := completedAt.UTC()
		r.CompletedAt = &t
	}
	return &r, nil
}
