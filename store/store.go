package store

import (
	"context"

	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/kv"
	"github.com/xraph/vectorflow/workflow"
)

// Store is the aggregate persistence interface. A single backend
// implements all of the subsystem stores.
type Store interface {
	job.Store
	workflow.Store
	kv.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
