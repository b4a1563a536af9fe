package extension

import (
	"log/slog"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/ext"
	"github.com/xraph/vectorflow/inference"
	"github.com/xraph/vectorflow/source"
	"github.com/xraph/vectorflow/store"
	"github.com/xraph/vectorflow/vectorindex"
)

// ExtOption configures the vectorflow Forge extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend. Without it Register opens the
// backend named by the configured store driver.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) { e.store = s }
}

// WithEmbedder sets the embedding client. Without it Register builds
// the OpenAI-compatible client from the inference configuration.
func WithEmbedder(em inference.Embedder) ExtOption {
	return func(e *Extension) { e.deps.Embedder = em }
}

// WithIndex sets the vector index. Without it Register builds the
// remote index client from the index configuration.
func WithIndex(idx vectorindex.Index) ExtOption {
	return func(e *Extension) { e.deps.Index = idx }
}

// WithSource sets the content source served to sync jobs.
func WithSource(src source.Source) ExtOption {
	return func(e *Extension) { e.deps.Source = src }
}

// WithExtension registers a lifecycle hook extension on the engine.
func WithExtension(x ext.Extension) ExtOption {
	return func(e *Extension) { e.exts = append(e.exts, x) }
}

// WithConfig sets the core configuration.
func WithConfig(cfg vectorflow.Config) ExtOption {
	return func(e *Extension) { e.config.VectorFlow = cfg }
}

// WithDisableMigrate disables store migrations on start.
func WithDisableMigrate() ExtOption {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in the app's config
// files. If true and none is found, Register returns an error.
func WithRequireConfig(require bool) ExtOption {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithLogger sets the structured logger for the engine.
func WithLogger(l *slog.Logger) ExtOption {
	return func(e *Extension) { e.logger = l }
}
