// Package observe provides router observers that export execution metrics
// to logs, Prometheus and OpenTelemetry.
package observe

import (
	"context"
	"log/slog"

	"github.com/shipq/polyq/router"
)

// Logger logs one record per execution. Failed executions are logged at
// error level.
type Logger struct {
	logger *slog.Logger

	// Statements adds the compiled statement to each record.
	Statements bool
}

// NewLogger returns a Logger writing to l, or to slog.Default when l is nil.
func NewLogger(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{logger: l}
}

func (o *Logger) Observe(ctx context.Context, m router.Metrics) {
	attrs := []slog.Attr{
		slog.String("id", m.ID.String()),
		slog.String("backend", m.Backend),
		slog.String("kind", string(m.Kind)),
		slog.String("table", m.Table),
		slog.Duration("plan", m.Plan),
		slog.Duration("exec", m.Exec),
		slog.Duration("total", m.Total),
		slog.Int("rows", m.Rows),
	}
	if m.Intent != "" {
		attrs = append(attrs, slog.String("intent", string(m.Intent)))
	}
	if o.Statements && m.Compiled != nil {
		attrs = append(attrs, slog.String("statement", m.Compiled.String()))
	}

	if m.Err != nil {
		attrs = append(attrs, slog.String("error", m.Err.Error()))
		o.logger.LogAttrs(ctx, slog.LevelError, "query_failed", attrs...)
		return
	}
	o.logger.LogAttrs(ctx, slog.LevelInfo, "query_executed", attrs...)
}
