package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "taskrelay"

// StartRouteSpan starts a span for a task hand-off.
func StartRouteSpan(ctx context.Context, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "route",
		trace.WithAttributes(attribute.String("task.id", taskID)),
	)
}

// StartDispatchSpan starts a span for a protocol call.
func StartDispatchSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("rpc.method", method)),
	)
}

// StartPersistSpan starts a span for a persistence flush.
func StartPersistSpan(ctx context.Context, key string, tasks int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "persist",
		trace.WithAttributes(
			attribute.String("persist.key", key),
			attribute.Int("persist.tasks", tasks),
		),
	)
}
