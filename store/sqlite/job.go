package sqlite

import (
	"context"
	"fmt"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/job"
)

// CreateJob persists a new job record.
func (s *Store) CreateJob(ctx context.Context, r *job.Record) error {
	m, err := toJobModel(r)
	if err != nil {
		return fmt.Errorf("vectorflow/sqlite: create job: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return vectorflow.ErrJobAlreadyExists
		}
		return fmt.Errorf("vectorflow/sqlite: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job record by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*job.Record, error) {
	m := new(jobModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", jobID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, vectorflow.ErrJobNotFound
		}
		return nil, fmt.Errorf("vectorflow/sqlite: get job: %w", err)
	}
	r, err := fromJobModel(m)
	if err != nil {
		return nil, fmt.Errorf("vectorflow/sqlite: get job: %w", err)
	}
	return r, nil
}

// UpdateJob replaces an existing job record.
func (s *Store) UpdateJob(ctx context.Context, r *job.Record) error {
	m, err := toJobModel(r)
	if err != nil {
		return fmt.Errorf("vectorflow/sqlite: update job: %w", err)
	}
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("vectorflow/sqlite: update job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return vectorflow.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job record by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.sdb.NewDelete((*jobModel)(nil)).
		Where("id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("vectorflow/sqlite: delete job: %w", err)
	}
	return nil
}

// ListJobs returns job records matching opts, newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Record, error) {
	var models []jobModel
	q := filterJobs(s.sdb.NewSelect(&models), opts).
		OrderExpr("created_at DESC, id DESC")

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
		return nil, fmt.Errorf("vectorflow/sqlite: list jobs: %w", err)
	}

	result := make([]*job.Record, 0, len(models))
	for i := range models {
		r, err := fromJobModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("vectorflow/sqlite: list jobs convert: %w", err)
		}
		result = append(result, r)
	}
	return result, nil
}

// CountJobs returns the number of job records matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.ListOpts) (int64, error) {
	count, err := filterJobs(s.sdb.NewSelect((*jobModel)(nil)), opts).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("vectorflow/sqlite: count jobs: %w", err)
	}
	return count, nil
}

// whereQuery is any grove query builder that chains Where clauses.
type whereQuery[Q any] interface {
	Where(query string, args ...any) Q
}

func filterJobs[Q whereQuery[Q]](q Q, opts job.ListOpts) Q {
	if opts.Namespace != "" {
		q = q.Where("namespace = ?", opts.Namespace)
	}
	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if !opts.CreatedBefore.IsZero() {
		q = q.Where("created_at < ?", opts.CreatedBefore.UTC())
	}
	return q
}
