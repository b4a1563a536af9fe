// Package store defines the aggregate persistence interface.
//
// Each subsystem (job, workflow, kv) defines its own store interface. The
// composite [Store] composes them, so a single backend satisfies every
// subsystem's persistence contract.
//
// # Available Backends
//
//   - store/memory: in-process maps for development and testing
//   - store/sqlite: SQLite via modernc.org/sqlite (no cgo)
//   - store/postgres: PostgreSQL using pgx/v5
//   - store/redis: Redis using go-redis/v9
//
// [Open] picks a backend from a driver name and DSN.
//
// # Migrations
//
// Call Migrate once at startup to create or update the schema:
//
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package store
