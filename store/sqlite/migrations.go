package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the vectorflow sqlite store.
var Migrations = migrate.NewGroup("vectorflow")

func init() {
	Migrations.MustRegister(
		// 001: job records.
		&migrate.Migration{
			Name:    "create_jobs_table",
			Version: "20250101120000",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS vectorflow_jobs (
						id            TEXT PRIMARY KEY,
						namespace     TEXT NOT NULL DEFAULT 'default',
						kind          TEXT NOT NULL,
						status        TEXT NOT NULL DEFAULT 'pending',
						error         TEXT NOT NULL DEFAULT '',
						progress      TEXT,
						metadata      TEXT,
						created_at    TEXT NOT NULL,
						updated_at    TEXT NOT NULL,
						completed_at  TEXT
					)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_vectorflow_jobs_list
						ON vectorflow_jobs (namespace, created_at DESC)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_vectorflow_jobs_status
						ON vectorflow_jobs (status, created_at)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS vectorflow_jobs`)
				return err
			},
		},

		// 002: workflow runs and step checkpoints.
		&migrate.Migration{
			Name:    "create_workflow_tables",
			Version: "20250101120001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS vectorflow_runs (
						id             TEXT PRIMARY KEY,
						name           TEXT NOT NULL,
						job_id         TEXT NOT NULL DEFAULT '',
						parent_run_id  TEXT NOT NULL DEFAULT '',
						state          TEXT NOT NULL DEFAULT 'running',
						input          BLOB,
						output         BLOB,
						error          TEXT NOT NULL DEFAULT '',
						metadata       TEXT,
						started_at     TEXT NOT NULL,
						completed_at   TEXT
					)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_vectorflow_runs_state
						ON vectorflow_runs (state, started_at)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS vectorflow_checkpoints (
						run_id      TEXT NOT NULL,
						step_name   TEXT NOT NULL,
						data        BLOB NOT NULL,
						created_at  TEXT NOT NULL,
						PRIMARY KEY (run_id, step_name)
					)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				if _, err := exec.Exec(ctx, `DROP TABLE IF EXISTS vectorflow_checkpoints`); err != nil {
					return err
				}
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS vectorflow_runs`)
				return err
			},
		},

		// 003: key-value state.
		&migrate.Migration{
			Name:    "create_kv_table",
			Version: "20250101120002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS vectorflow_kv (
						key    TEXT PRIMARY KEY,
						value  BLOB NOT NULL
					)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS vectorflow_kv`)
				return err
			},
		},
	)
}
