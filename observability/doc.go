// Package observability provides the lifecycle metrics extension for
// vectorflow. MetricsExtension implements the job and workflow lifecycle
// hooks and counts job registration, dispatch, completion, failure and
// expiry, plus workflow outcomes and step retries. Counts are kept in
// go-utils counters (see Stats) and exported through OpenTelemetry.
//
// For per-step tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
