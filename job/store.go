package job

import (
	"context"
	"time"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Namespace filters by registry namespace. Empty means all namespaces.
	Namespace string
	// Kind filters by job kind. Empty means all kinds.
	Kind Kind
	// Status filters by job status. Empty means all statuses.
	Status Status
	// CreatedBefore keeps only jobs created strictly before this instant.
	// Zero means no bound.
	CreatedBefore time.Time
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// Store defines the persistence contract for job records (the job
// registry). Implementations return copies; mutating a returned record
// does not affect the store.
type Store interface {
	// CreateJob persists a new record. Returns
	// vectorflow.ErrJobAlreadyExists if the ID is taken.
	CreateJob(ctx context.Context, r *Record) error

	// GetJob retrieves a record by ID. Returns vectorflow.ErrJobNotFound
	// if absent.
	GetJob(ctx context.Context, jobID string) (*Record, error)

	// UpdateJob replaces an existing record. Returns
	// vectorflow.ErrJobNotFound if absent.
	UpdateJob(ctx context.Context, r *Record) error

	// DeleteJob removes a record by ID. Deleting a missing record is
	// not an error.
	DeleteJob(ctx context.Context, jobID string) error

	// ListJobs returns records matching opts, newest first.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Record, error)

	// CountJobs returns the number of records matching opts. Limit and
	// Offset are ignored.
	CountJobs(ctx context.Context, opts ListOpts) (int64, error)
}
