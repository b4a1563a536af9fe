package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/vectorflow/api"
	audithook "github.com/xraph/vectorflow/audit_hook"
	"github.com/xraph/vectorflow/cron"
	"github.com/xraph/vectorflow/engine"
	"github.com/xraph/vectorflow/inference/openai"
	"github.com/xraph/vectorflow/service"
	"github.com/xraph/vectorflow/source"
	"github.com/xraph/vectorflow/vectorindex/remote"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the workflow workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runServe(cmd); err != nil {
				return writeCommandError(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().String("source-file", "", "JSON file of source items served to sync jobs")
	cmd.Flags().Bool("no-migrate", false, "skip store migrations on startup")
	cmd.Flags().Bool("audit", false, "log an audit event for every job and workflow transition")
	return cmd
}

func runServe(cmd *cobra.Command) (err error) {
	ctx := cmd.Context()
	cc, err := GetContext(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, cc.Close()) }()
	cfg, logger := cc.Config, cc.Logger

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		if err := cc.Store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	embedder, err := openai.NewClient(openai.Config{
		APIKey:  cfg.Inference.APIKey,
		BaseURL: cfg.Inference.BaseURL,
		Model:   cfg.Inference.Model,
		Timeout: cfg.Inference.Timeout,
	}, logger)
	if err != nil {
		return err
	}
	index, err := remote.NewClient(remote.Config{
		BaseURL: cfg.Index.BaseURL,
		APIKey:  cfg.Index.APIKey,
		Timeout: cfg.Index.Timeout,
	}, logger)
	if err != nil {
		return err
	}
	deps := service.Deps{Embedder: embedder, Index: index}
	if path, _ := cmd.Flags().GetString("source-file"); path != "" {
		if deps.Source, err = loadSourceFile(path); err != nil {
			return err
		}
	}

	engOpts := []engine.Option{engine.WithConfig(cfg), engine.WithLogger(logger)}
	if audit, _ := cmd.Flags().GetBool("audit"); audit {
		recorder := audithook.SlogRecorder(logger.With(slog.String("component", "audit")))
		engOpts = append(engOpts, engine.WithExtension(audithook.New(recorder, audithook.WithLogger(logger))))
	}
	eng, err := engine.Build(cc.Store, engOpts...)
	if err != nil {
		return err
	}
	svc, err := service.New(eng, deps)
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}

	sched := cron.NewScheduler(logger, cron.WithTaskTimeout(cfg.ShutdownTimeout))
	if cfg.Cleanup.Schedule != "" {
		maxAge := cfg.Cleanup.MaxAgeHours
		err := sched.Register("cleanup", cfg.Cleanup.Schedule, func(ctx context.Context) error {
			n, err := svc.Cleanup(ctx, maxAge)
			if err == nil && n > 0 {
				logger.Info("scheduled cleanup removed jobs", slog.Int("count", n))
			}
			return err
		})
		if err != nil {
			return err
		}
	}
	sched.Start()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.New(svc, logger).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("vectorflow listening",
			slog.String("addr", cfg.Server.Addr),
			slog.String("namespace", cfg.Namespace),
			slog.String("store", cfg.Store.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return errors.Join(err,
		srv.Shutdown(shutdownCtx),
		sched.Stop(shutdownCtx),
		eng.Stop(shutdownCtx),
	)
}

func loadSourceFile(path string) (source.Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}
	var items source.Static
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse source file %s: %w", path, err)
	}
	return items, nil
}
