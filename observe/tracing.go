package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shipq/polyq/router"
)

const tracerName = "github.com/shipq/polyq"

// Tracer turns each execution into a span with a child span per phase.
// Spans are recorded after the fact, so their timestamps are reconstructed
// from the measured durations ending at the time Observe is called.
type Tracer struct {
	tracer trace.Tracer
	now    func() time.Time
}

// NewTracer uses tp, or the global provider when tp is nil.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(tracerName), now: time.Now}
}

func (t *Tracer) Observe(ctx context.Context, m router.Metrics) {
	end := t.now()
	start := end.Add(-m.Total)
	planned := start.Add(m.Plan)

	attrs := []attribute.KeyValue{
		attribute.String("polyq.id", m.ID.String()),
		attribute.String("polyq.backend", m.Backend),
		attribute.String("polyq.intent", string(m.Intent)),
		attribute.String("db.operation", string(m.Kind)),
		attribute.String("db.collection", m.Table),
		attribute.Int("polyq.rows", m.Rows),
	}
	if m.Compiled != nil {
		attrs = append(attrs, attribute.String("db.statement", m.Compiled.String()))
	}

	ctx, span := t.tracer.Start(ctx, "polyq.execute",
		trace.WithTimestamp(start),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))

	_, plan := t.tracer.Start(ctx, "polyq.plan", trace.WithTimestamp(start))
	plan.End(trace.WithTimestamp(planned))

	_, exec := t.tracer.Start(ctx, "polyq.exec", trace.WithTimestamp(planned))
	if m.Err != nil {
		exec.RecordError(m.Err)
		exec.SetStatus(codes.Error, m.Err.Error())
		span.SetStatus(codes.Error, m.Err.Error())
	}
	exec.End(trace.WithTimestamp(planned.Add(m.Exec)))

	span.End(trace.WithTimestamp(end))
}
