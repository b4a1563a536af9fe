package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/vectorflow"
	"github.com/xraph/vectorflow/backoff"
	"github.com/xraph/vectorflow/middleware"
)

// StepResult is the outcome of a step. Data is meaningful only when
// Success is true and Error only when it is false.
type StepResult[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StepOption configures a single step.
type StepOption func(*stepConfig)

type stepConfig struct {
	retry    *backoff.RetryPolicy
	critical bool
	timeout  time.Duration
}

func newStepConfig(opts []StepOption) stepConfig {
	cfg := stepConfig{critical: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithRetry retries the step per policy. Without it a step runs once.
func WithRetry(p backoff.RetryPolicy) StepOption {
	return func(c *stepConfig) { c.retry = &p }
}

// NoRetry disables retries, overriding an earlier WithRetry.
func NoRetry() StepOption {
	return func(c *stepConfig) { c.retry = nil }
}

// NonCritical makes exhaustion return a failed StepResult instead of
// aborting the run.
func NonCritical() StepOption {
	return WithCritical(false)
}

// WithCritical sets whether exhaustion aborts the run. Steps are
// critical by default.
func WithCritical(critical bool) StepOption {
	return func(c *stepConfig) { c.critical = critical }
}

// WithTimeout bounds each attempt of the step.
func WithTimeout(d time.Duration) StepOption {
	return func(c *stepConfig) { c.timeout = d }
}

// Step executes a named step that returns a typed value.
//
// If a checkpoint exists for (run, name) the cached result is returned
// and fn is not invoked. Otherwise fn runs through the middleware chain
// up to MaxAttempts times, waiting min(BaseDelay*2^(k-1), MaxDelay)
// after the k-th failure and emitting a retry event before each wait.
//
// Once attempts are exhausted, a critical step returns a
// *vectorflow.CriticalStepError and is not checkpointed; a non-critical
// step checkpoints and returns StepResult{Success: false} with a nil
// error. Successful results are checkpointed before Step returns.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Step[T any](w *Workflow, name string, fn func(ctx context.Context) (T, error), opts ...StepOption) (StepResult[T], error) {
	var zero StepResult[T]
	cfg := newStepConfig(opts)

	attempts := 1
	if cfg.retry != nil {
		if err := cfg.retry.Validate(); err != nil {
			return zero, fmt.Errorf("workflow %s step %q: %w", w.run.Name, name, err)
		}
		attempts = cfg.retry.MaxAttempts
	}

	data, err := w.store.GetCheckpoint(w.ctx, w.run.ID, name)
	if err != nil {
		return zero, fmt.Errorf("workflow %s: get checkpoint %q: %w", w.run.Name, name, err)
	}
	if data != nil {
		res, decErr := decodeResult[T](data)
		if decErr != nil {
			return zero, fmt.Errorf("workflow %s: checkpoint %q: %w", w.run.Name, name, decErr)
		}
		w.logger.Debug("returning checkpointed result",
			slog.String("run_id", w.run.ID),
			slog.String("step", name),
		)
		return res, nil
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; ; attempt++ {
		var out T
		info := &middleware.Step{
			RunID:    w.run.ID,
			Workflow: w.run.Name,
			Name:     name,
			Attempt:  attempt,
			Critical: cfg.critical,
			Timeout:  cfg.timeout,
		}
		lastErr = w.mw(w.ctx, info, func(ctx context.Context) error {
			v, fnErr := fn(ctx)
			if fnErr != nil {
				return fnErr
			}
			out = v
			return nil
		})
		if lastErr == nil {
			res := StepResult[T]{Success: true, Data: out}
			if saveErr := saveResult(w, name, res); saveErr != nil {
				return zero, saveErr
			}
			w.emitter.EmitStepCompleted(w.ctx, w.run, name, time.Since(start))
			return res, nil
		}

		// A cancelled run is not a step failure.
		if ctxErr := w.ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("workflow %s step %q: %w", w.run.Name, name, ctxErr)
		}
		if attempt >= attempts {
			break
		}

		delay := cfg.retry.Delay(attempt)
		w.logger.Warn("retrying step",
			slog.String("run_id", w.run.ID),
			slog.String("step", name),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", lastErr.Error()),
		)
		w.emitter.EmitStepRetrying(w.ctx, w.run, name, attempt, lastErr, delay)
		if sleepErr := w.sleep(w.ctx, delay); sleepErr != nil {
			return zero, fmt.Errorf("workflow %s step %q: %w", w.run.Name, name, sleepErr)
		}
	}

	w.emitter.EmitStepFailed(w.ctx, w.run, name, lastErr)
	failed := StepResult[T]{Success: false, Error: lastErr.Error()}
	if cfg.critical {
		return failed, &vectorflow.CriticalStepError{Step: name, Err: lastErr}
	}
	if saveErr := saveResult(w, name, failed); saveErr != nil {
		return zero, saveErr
	}
	return failed, nil
}

// Step executes a named step that produces no value. It returns a
// *vectorflow.CriticalStepError when a critical step is exhausted and
// nil otherwise; use the generic Step to observe non-critical failures.
func (w *Workflow) Step(name string, fn func(ctx context.Context) error, opts ...StepOption) error {
	_, err := Step(w, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}

func saveResult[T any](w *Workflow, name string, res StepResult[T]) error {
	data, err := encodeResult(res)
	if err != nil {
		return fmt.Errorf("workflow %s: encode checkpoint %q: %w", w.run.Name, name, err)
	}
	if saveErr := w.store.SaveCheckpoint(w.ctx, w.run.ID, name, data); saveErr != nil {
		return fmt.Errorf("workflow %s: save checkpoint %q: %w", w.run.Name, name, saveErr)
	}
	return nil
}

// Sleep pauses the workflow for the specified duration. On crash recovery,
// if a checkpoint exists for this sleep step, it is skipped immediately.
// The sleep can be interrupted by context cancellation.
func (w *Workflow) Sleep(name string, d time.Duration) error {
	stepName := "sleep:" + name

	data, err := w.store.GetCheckpoint(w.ctx, w.run.ID, stepName)
	if err != nil {
		return fmt.Errorf("workflow %s: get sleep checkpoint %q: %w", w.run.Name, name, err)
	}
	if data != nil {
		w.logger.Debug("skipping checkpointed sleep",
			slog.String("run_id", w.run.ID),
			slog.String("step", name),
		)
		return nil
	}

	if err := w.sleep(w.ctx, d); err != nil {
		return err
	}

	marker, _ := msgpack.Marshal(true)
	return w.store.SaveCheckpoint(w.ctx, w.run.ID, stepName, marker)
}
