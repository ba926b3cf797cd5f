package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for gateway spans
const TracerName = "github.com/harun/toolgate"

// StartSpan starts a span on the global tracer provider. Without an installed
// provider the span is a no-op.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	tc := FromContext(ctx)
	if tc.RequestID != "" {
		attrs = append(attrs, attribute.String("toolgate.request_id", tc.RequestID))
	}
	if tc.Transport != "" {
		attrs = append(attrs, attribute.String("toolgate.transport", tc.Transport))
	}

	return otel.Tracer(TracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// TraceID returns the OpenTelemetry trace ID of ctx's span, if it is valid
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
