package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/vectorflow/store/memory"
	"github.com/xraph/vectorflow/store/postgres"
	"github.com/xraph/vectorflow/store/redis"
	"github.com/xraph/vectorflow/store/sqlite"
)

// Open returns the backend named by driver ("memory", "sqlite",
// "postgres" or "redis") connected to dsn. It does not migrate.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch driver {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.Open(ctx, dsn, sqlite.WithLogger(logger))
	case "postgres":
		return postgres.New(ctx, dsn, postgres.WithLogger(logger))
	case "redis":
		return redis.Open(dsn, redis.WithLogger(logger))
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}
