package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/digigov-voice"

type commandIDKey struct{}

// Tracer returns the tracer for the voice pipeline from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. When ctx carries a command ID it is
// recorded as the "command.id" attribute. The caller must end the span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id := CommandID(ctx); id != "" {
		opts = append(opts, trace.WithAttributes(attribute.String("command.id", id)))
	}
	return Tracer().Start(ctx, name, opts...)
}

// WithCommandID tags ctx with the ID of the command cycle it belongs to. The
// same ID is shown in the command history, so log lines can be matched to
// history entries.
func WithCommandID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, commandIDKey{}, id)
}

// CommandID returns the ID set by [WithCommandID], or "".
func CommandID(ctx context.Context) string {
	id, _ := ctx.Value(commandIDKey{}).(string)
	return id
}

// CorrelationID returns the trace ID of the active span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns the default logger with the command ID and the active
// trace and span IDs from ctx attached. Absent values are omitted.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if id := CommandID(ctx); id != "" {
		attrs = append(attrs, slog.String("command_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
