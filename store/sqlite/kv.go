package sqlite

import (
	"context"
	"fmt"

	"github.com/xraph/vectorflow/kv"
)

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	m := new(kvModel)
	err := s.sdb.NewSelect(m).
		Where("key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("vectorflow/sqlite: kv get: %w", err)
	}
	return m.Value, nil
}

// Put stores value under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.sdb.NewInsert(&kvModel{Key: key, Value: value}).
		OnConflict("(key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("vectorflow/sqlite: kv put: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.sdb.NewDelete((*kvModel)(nil)).
		Where("key = ?", key).
		Exec(ctx); err != nil {
		return fmt.Errorf("vectorflow/sqlite: kv delete: %w", err)
	}
	return nil
}
