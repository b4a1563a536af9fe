// Package inference defines the embedding capability the workflows
// depend on.
package inference

import (
	"context"
	"errors"
)

// ErrNoEmbedding is returned when the service answers without a vector.
var ErrNoEmbedding = errors.New("inference: no embedding returned")

// Embedder turns text into a vector.
type Embedder interface {
	// Embed returns the embedding of text. An empty model selects the
	// implementation's default.
	Embed(ctx context.Context, text, model string) ([]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text, model string) ([]float32, error)

// Embed calls f.
func (f EmbedderFunc) Embed(ctx context.Context, text, model string) ([]float32, error) {
	return f(ctx, text, model)
}
