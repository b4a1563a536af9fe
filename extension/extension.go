// Package extension mounts vectorflow into a Forge application.
//
// The extension builds the engine and the job service during Register,
// provides both through the app's DI container, counts lifecycle events
// in the app's metric factory, migrates and starts the engine on Start,
// and drains it on Stop. Handler serves the HTTP API for the host to
// mount.
//
// Configuration comes from Option functions or from the app config under
// the "extensions.vectorflow" or "vectorflow" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/api"
	"github.com/xraph/vectorflow/engine"
	"github.com/xraph/vectorflow/ext"
	"github.com/xraph/vectorflow/inference/openai"
	"github.com/xraph/vectorflow/service"
	"github.com/xraph/vectorflow/store"
	"github.com/xraph/vectorflow/vectorindex/remote"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "vectorflow"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Durable vector ingestion jobs: embedding, indexing, bulk and source sync"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts vectorflow as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config Config
	store  store.Store
	owned  bool
	deps   service.Deps
	exts   []ext.Extension
	logger *slog.Logger

	eng *engine.Engine
	svc *service.Service
	api *api.API
}

// New creates a vectorflow Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
		config:        DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine. It is nil until Register is called.
func (e *Extension) Engine() *engine.Engine { return e.eng }

// Service returns the job service. It is nil until Register is called.
func (e *Extension) Service() *service.Service { return e.svc }

// Register implements [forge.Extension]. It builds the engine and the
// service and provides both in the app's container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}
	if err := e.loadConfiguration(); err != nil {
		return err
	}
	if err := e.init(fapp); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*engine.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("vectorflow: register engine in container: %w", err)
	}
	if err := vessel.Provide(fapp.Container(), func() (*service.Service, error) {
		return e.svc, nil
	}); err != nil {
		return fmt.Errorf("vectorflow: register service in container: %w", err)
	}
	return nil
}

func (e *Extension) init(fapp forge.App) error {
	cfg := e.config.VectorFlow
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	if e.store == nil {
		s, err := store.Open(context.Background(), cfg.Store.Driver, cfg.Store.DSN, logger)
		if err != nil {
			return fmt.Errorf("vectorflow: %w", err)
		}
		e.store, e.owned = s, true
	}

	if e.deps.Embedder == nil {
		client, err := openai.NewClient(openai.Config{
			APIKey:  cfg.Inference.APIKey,
			BaseURL: cfg.Inference.BaseURL,
			Model:   cfg.Inference.Model,
			Timeout: cfg.Inference.Timeout,
		}, logger)
		if err != nil {
			return fmt.Errorf("vectorflow: %w", err)
		}
		e.deps.Embedder = client
	}
	if e.deps.Index == nil {
		client, err := remote.NewClient(remote.Config{
			BaseURL: cfg.Index.BaseURL,
			APIKey:  cfg.Index.APIKey,
			Timeout: cfg.Index.Timeout,
		}, logger)
		if err != nil {
			return fmt.Errorf("vectorflow: %w", err)
		}
		e.deps.Index = client
	}

	engOpts := make([]engine.Option, 0, len(e.exts)+3)
	engOpts = append(engOpts,
		engine.WithConfig(cfg),
		engine.WithLogger(logger),
		engine.WithMetricFactory(fapp.Metrics()),
	)
	for _, x := range e.exts {
		engOpts = append(engOpts, engine.WithExtension(x))
	}

	var err error
	if e.eng, err = engine.Build(e.store, engOpts...); err != nil {
		return fmt.Errorf("vectorflow: build engine: %w", err)
	}
	if e.svc, err = service.New(e.eng, e.deps); err != nil {
		return fmt.Errorf("vectorflow: %w", err)
	}
	e.api = api.New(e.svc, logger)
	return nil
}

// Start runs migrations unless disabled and starts the engine.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("vectorflow: extension not initialized")
	}
	if !e.config.DisableMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return fmt.Errorf("vectorflow: %w", err)
		}
	}
	if err := e.eng.Start(ctx); err != nil {
		return err
	}
	e.MarkStarted()
	return nil
}

// Stop drains the engine and closes a store the extension opened.
func (e *Extension) Stop(ctx context.Context) error {
	if e.eng == nil {
		e.MarkStopped()
		return nil
	}
	err := e.eng.Stop(ctx)
	if e.owned {
		err = errors.Join(err, e.store.Close())
	}
	e.MarkStopped()
	return err
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("vectorflow: extension not initialized")
	}
	return e.store.Ping(ctx)
}

// Handler returns the HTTP API handler.
func (e *Extension) Handler() http.Handler {
	if e.api == nil {
		return http.NotFoundHandler()
	}
	return e.api.Handler()
}

// loadConfiguration replaces the programmatic config with the app's
// config file section when one exists.
func (e *Extension) loadConfiguration() error {
	fileConfig, loaded := e.tryLoadFromConfigFile()
	if !loaded {
		if e.config.RequireConfig {
			return errors.New("vectorflow: configuration is required but not found in config files; " +
				"ensure 'extensions.vectorflow' or 'vectorflow' key exists in your config")
		}
		return nil
	}

	if e.config.DisableMigrate {
		fileConfig.DisableMigrate = true
	}
	fileConfig.VectorFlow = withDefaults(fileConfig.VectorFlow)
	e.config = fileConfig

	e.Logger().Debug("vectorflow: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("namespace", e.config.VectorFlow.Namespace),
		forge.F("store", e.config.VectorFlow.Store.Driver),
	)
	return nil
}

func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	for _, key := range []string{"extensions.vectorflow", "vectorflow"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("vectorflow: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("vectorflow: failed to bind config", forge.F("key", key))
	}
	return Config{}, false
}

// withDefaults fills the zero-valued settings a partial config file
// leaves behind.
func withDefaults(cfg vectorflow.Config) vectorflow.Config {
	d := vectorflow.DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = d.Concurrency
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = d.ShutdownTimeout
	}
	if cfg.Namespace == "" {
		cfg.Namespace = d.Namespace
	}
	if cfg.Store.Driver == "" {
		cfg.Store = d.Store
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = d.Retry
	}
	if cfg.External.PollInterval <= 0 {
		cfg.External.PollInterval = d.External.PollInterval
	}
	if cfg.External.Timeout <= 0 {
		cfg.External.Timeout = d.External.Timeout
	}
	if cfg.Bulk.MaxItems <= 0 {
		cfg.Bulk.MaxItems = d.Bulk.MaxItems
	}
	if cfg.Bulk.Concurrency <= 0 {
		cfg.Bulk.Concurrency = d.Bulk.Concurrency
	}
	if cfg.Cleanup.MaxAgeHours <= 0 {
		cfg.Cleanup.MaxAgeHours = d.Cleanup.MaxAgeHours
	}
	if cfg.Inference.Model == "" {
		cfg.Inference.Model = d.Inference.Model
	}
	return cfg
}
