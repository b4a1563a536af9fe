// Package vectorindex defines the vector index the workflows write to
// and query. The index's search algorithm is not part of this module.
package vectorindex

import "context"

// Vector is one stored embedding.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueryOptions narrows a similarity query.
type QueryOptions struct {
	TopK      int            `json:"topK"`
	Namespace string         `json:"namespace,omitempty"`
	Filter    map[string]any `json:"filter,omitempty"`
}

// Match is one query hit.
type Match struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Index stores and searches vectors.
type Index interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	// DeleteByIDs removes vectors and returns how many were removed.
	DeleteByIDs(ctx context.Context, namespace string, ids []string) (int, error)
	Query(ctx context.Context, vector []float32, opts QueryOptions) ([]Match, error)
}
