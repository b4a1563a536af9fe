// Package middleware provides composable middleware for step execution.
// Middleware wraps a single step attempt synchronously and can modify
// execution (recover from panics, enforce deadlines, log, trace, measure).
package middleware

import (
	"context"
	"time"
)

// Handler is the terminal function that executes one step attempt.
type Handler func(ctx context.Context) error

// Step describes the step attempt being executed.
type Step struct {
	// RunID is the workflow run the step belongs to.
	RunID string
	// Workflow is the workflow name.
	Workflow string
	// Name is the step name, unique within the run.
	Name string
	// Attempt is the 1-indexed attempt number.
	Attempt int
	// Critical reports whether exhaustion aborts the run.
	Critical bool
	// Timeout bounds this attempt. Zero means no deadline.
	Timeout time.Duration
}

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the step attempt being executed, and
// the next handler to call. Middleware MUST call next to continue the
// chain (unless short-circuiting on error).
type Middleware func(ctx context.Context, s *Step, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, timeout, recover) executes as:
//
//	logging → timeout → recover → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, s *Step, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, s, prev)
			}
		}
		return h(ctx)
	}
}
