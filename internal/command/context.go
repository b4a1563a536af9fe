package command

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/store"
)

// CommandContext is what most commands need: config, a logger and an
// open store.
type CommandContext struct {
	Config vectorflow.Config
	Logger *slog.Logger
	Store  store.Store
}

// Jobs returns a job manager over the store, scoped to the configured
// namespace.
func (c *CommandContext) Jobs() *job.Manager {
	return job.NewManager(c.Store,
		job.WithNamespace(c.Config.Namespace),
		job.WithLogger(c.Logger),
	)
}

// Close releases the store.
func (c *CommandContext) Close() error { return c.Store.Close() }

// GetContext loads config, builds the logger and opens the store. The
// caller closes it.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	s, err := store.Open(cmd.Context(), cfg.Store.Driver, cfg.Store.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	return &CommandContext{Config: cfg, Logger: logger, Store: s}, nil
}

func loadConfig(cmd *cobra.Command) (vectorflow.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("VECTORFLOW_CONFIG")
	}
	return vectorflow.LoadConfig(path)
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg vectorflow.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", cfg.Format)
}
