package workflow

import (
	"context"
	"log/slog"
)

// When runs fn as step name only if predicate reports true. The
// predicate is itself a checkpointed step ("<name>:condition"), so it
// may block on I/O and is evaluated once per run. When the predicate is
// false fn never runs and When returns nil, nil; otherwise the step's
// result is forwarded unchanged.
func When[T any](
	w *Workflow,
	name string,
	predicate func(ctx context.Context) (bool, error),
	fn func(ctx context.Context) (T, error),
	opts ...StepOption,
) (*StepResult[T], error) {
	cond, err := Step(w, name+":condition", predicate)
	if err != nil {
		return nil, err
	}
	if !cond.Data {
		w.logger.Debug("condition false, skipping step",
			slog.String("run_id", w.run.ID),
			slog.String("step", name),
		)
		return nil, nil
	}

	res, err := Step(w, name, fn, opts...)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
