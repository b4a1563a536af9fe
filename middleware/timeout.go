package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrTimeout is wrapped by the error returned when an attempt exceeds
// its deadline.
var ErrTimeout = errors.New("step timed out")

// Timeout returns middleware that enforces a per-attempt deadline.
// If the step has a non-zero Timeout, the handler runs under
// context.WithTimeout and the attempt fails once the deadline passes,
// even when the handler ignores its context. A handler that ignores
// cancellation keeps running in the background; its result is dropped.
//
// Place Recover inside Timeout so panics in the handler goroutine are
// converted before they cross it.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, s *Step, next Handler) error {
		if s.Timeout <= 0 {
			return next(ctx)
		}
		logger.Debug("step timeout set",
			slog.String("step", s.Name),
			slog.Duration("timeout", s.Timeout),
		)
		ctx, cancel := context.WithTimeout(ctx, s.Timeout)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- next(ctx) }()

		select {
		case err := <-done:
			if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
				return fmt.Errorf("%w after %v: %w", ErrTimeout, s.Timeout, err)
			}
			return err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w after %v", ErrTimeout, s.Timeout)
			}
			return ctx.Err()
		}
	}
}
