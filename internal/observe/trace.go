package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/errtable"

// Span attribute keys for per-utterance spans.
const (
	AttrUtteranceID    = attribute.Key("errtable.utterance.id")
	AttrUtteranceIndex = attribute.Key("errtable.utterance.index")
)

type (
	runKey       struct{}
	utteranceKey struct{}
)

type utterance struct {
	id    string
	index int
}

// Tracer returns the errtable tracer from the global [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span. The caller must call span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartUtterance starts the span for extracting the utterance at corpus
// position index and scopes ctx to it, so [Logger] tags every line with the
// utterance. End the span with [EndSpan].
func StartUtterance(ctx context.Context, index int, id string) (context.Context, trace.Span) {
	ctx = WithUtterance(ctx, index, id)
	return StartSpan(ctx, "assemble.utterance",
		trace.WithAttributes(
			AttrUtteranceID.String(id),
			AttrUtteranceIndex.Int(index),
		),
	)
}

// EndSpan records err on span (when non-nil) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// WithRun returns a copy of ctx carrying the run ID.
func WithRun(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runKey{}, runID)
}

// RunID returns the run ID stored by [WithRun], or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runKey{}).(string)
	return id
}

// WithUtterance returns a copy of ctx scoped to the utterance at corpus
// position index.
func WithUtterance(ctx context.Context, index int, id string) context.Context {
	return context.WithValue(ctx, utteranceKey{}, utterance{id: id, index: index})
}

// UtteranceFromContext returns the utterance stored by [WithUtterance].
func UtteranceFromContext(ctx context.Context) (index int, id string, ok bool) {
	u, ok := ctx.Value(utteranceKey{}).(utterance)
	return u.index, u.id, ok
}

// CorrelationID returns the trace ID of the active span in ctx, or "" when
// there is none.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default [slog.Logger] with whatever ctx knows about
// the current work attached: run_id, utterance_id and utterance_index, and
// trace_id and span_id of the active span.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if id := RunID(ctx); id != "" {
		attrs = append(attrs, slog.String("run_id", id))
	}
	if index, id, ok := UtteranceFromContext(ctx); ok {
		attrs = append(attrs,
			slog.String("utterance_id", id),
			slog.Int("utterance_index", index),
		)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	l := slog.Default()
	if len(attrs) > 0 {
		l = l.With(attrs...)
	}
	return l
}
