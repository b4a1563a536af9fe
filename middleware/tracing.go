package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for vectorflow tracing.
const tracerName = "github.com/xraph/vectorflow"

// Tracing returns middleware that wraps each step attempt in an
// OpenTelemetry span using the global TracerProvider.
//
// Span attributes: vectorflow.run.id, vectorflow.workflow,
// vectorflow.step, vectorflow.attempt, vectorflow.critical.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, s *Step, next Handler) error {
		ctx, span := tracer.Start(ctx, "vectorflow.step.execute",
			trace.WithAttributes(
				attribute.String("vectorflow.run.id", s.RunID),
				attribute.String("vectorflow.workflow", s.Workflow),
				attribute.String("vectorflow.step", s.Name),
				attribute.Int("vectorflow.attempt", s.Attempt),
				attribute.Bool("vectorflow.critical", s.Critical),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
