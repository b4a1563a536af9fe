package postgres

import (
	"context"
	"fmt"

	"github.com/xraph/vectorflow/kv"
)

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM vectorflow_kv WHERE key = $1`, key).Scan(&v)
	if err != nil {
		if isNoRows(err) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("vectorflow/postgres: kv get: %w", err)
	}
	return v, nil
}

// Put stores value under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vectorflow_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("vectorflow/postgres: kv put: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM vectorflow_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("vectorflow/postgres: kv delete: %w", err)
	}
	return nil
}
