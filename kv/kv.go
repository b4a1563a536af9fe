// Package kv defines the durable key-value contract used for small
// pieces of per-actor state, such as a content source's sync cursor.
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/vectorflow"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = vectorflow.ErrKeyNotFound

// Store is a durable key-value store.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key, replacing any existing value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Namespaced prefixes every key with ns and a colon.
func Namespaced(s Store, ns string) Store {
	return &namespaced{inner: s, prefix: ns + ":"}
}

type namespaced struct {
	inner  Store
	prefix string
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *namespaced) Put(ctx context.Context, key string, value []byte) error {
	return n.inner.Put(ctx, n.prefix+key, value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

// GetString returns the value for key as a string and whether it existed.
func GetString(ctx context.Context, s Store, key string) (string, bool, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return string(v), true, nil
}
