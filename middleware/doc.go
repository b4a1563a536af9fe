// Package middleware provides composable middleware for step attempts.
//
// A [Middleware] wraps one attempt of a workflow step. The step executor
// builds a chain with [Chain] and invokes it once per attempt, so retries
// are visible to every middleware. The first middleware in the slice is
// the outermost wrapper.
//
//	// logging → timeout → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Timeout(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs attempt start, outcome and duration
//   - [Recover] — converts panics (of any value) to [*PanicError]
//   - [Timeout] — fails the attempt once its deadline passes
//   - [Tracing] — wraps the attempt in an OpenTelemetry span
//   - [Metrics] — records attempt duration and outcome counters
package middleware
