package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/vectorflow/kv"
)

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.keys.value(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vectorflow/redis: kv get: %w", err)
	}
	return v, nil
}

// Put stores value under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.keys.value(key), value, 0).Err(); err != nil {
		return fmt.Errorf("vectorflow/redis: kv put: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keys.value(key)).Err(); err != nil {
		return fmt.Errorf("vectorflow/redis: kv delete: %w", err)
	}
	return nil
}
