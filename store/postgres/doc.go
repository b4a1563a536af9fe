// Package postgres implements the store using pgx/v5 with raw SQL and
// embedded SQL migrations. Checkpoints cascade with their run.
package postgres
