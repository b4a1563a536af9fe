package workflow

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task is one member of a parallel step group.
type Task[T any] struct {
	// Name is the step name; it must be unique within the run.
	Name string
	// Fn is the step function.
	Fn func(ctx context.Context) (T, error)
	// Options configure retry, criticality and timeout for this task.
	Options []StepOption
}

// Parallel runs each task as its own Step concurrently and returns the
// results in task order. A critical failure in one task does not cancel
// the others: every task runs to completion, then the first critical
// error (if any) is returned alongside the full result slice.
func Parallel[T any](w *Workflow, tasks ...Task[T]) ([]StepResult[T], error) {
	seen := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		if _, dup := seen[task.Name]; dup {
			return nil, fmt.Errorf("workflow %s: duplicate parallel step %q", w.run.Name, task.Name)
		}
		seen[task.Name] = struct{}{}
	}

	results := make([]StepResult[T], len(tasks))
	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			res, err := Step(w, task.Name, task.Fn, task.Options...)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}
