package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs each step attempt at debug level
// and failures at warn level. Retry scheduling is logged by the executor.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, s *Step, next Handler) error {
		logger.Debug("step started",
			slog.String("run_id", s.RunID),
			slog.String("workflow", s.Workflow),
			slog.String("step", s.Name),
			slog.Int("attempt", s.Attempt),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("step attempt failed",
				slog.String("run_id", s.RunID),
				slog.String("step", s.Name),
				slog.Int("attempt", s.Attempt),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("step completed",
				slog.String("run_id", s.RunID),
				slog.String("step", s.Name),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
