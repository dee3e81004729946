package observe

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shipq/polyq/router"
)

// Prometheus records execution counts, phase durations and returned row
// counts. Collectors are per instance so tests and multiple routers can use
// separate registries.
type Prometheus struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rows       *prometheus.HistogramVec
}

// NewPrometheus creates unregistered collectors.
func NewPrometheus() *Prometheus {
	return &Prometheus{
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polyq_executions_total",
				Help: "Total of executed queries",
			},
			[]string{"backend", "kind", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "polyq_execution_duration_seconds",
				Help: "Duration of query execution by phase",
				// compilation is sub-millisecond; backend round trips rarely exceed a few seconds.
				Buckets: []float64{
					.0001, .0005, .001, .005, .01, .025, .05,
					.1, .25, .5, 1, 2.5, 5, 10,
				},
			},
			[]string{"backend", "kind", "phase"},
		),
		rows: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polyq_execution_rows",
				Help:    "Rows returned per query",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"backend", "kind"},
		),
	}
}

// MustRegister registers the collectors on registry. It panics if metrics
// with the same names are already registered.
func (p *Prometheus) MustRegister(registry prometheus.Registerer) {
	registry.MustRegister(p.executions, p.duration, p.rows)
}

func (p *Prometheus) Observe(_ context.Context, m router.Metrics) {
	status := "ok"
	if m.Err != nil {
		status = "error"
	}
	kind := string(m.Kind)

	p.executions.WithLabelValues(m.Backend, kind, status).Inc()
	p.duration.WithLabelValues(m.Backend, kind, "plan").Observe(m.Plan.Seconds())
	p.duration.WithLabelValues(m.Backend, kind, "exec").Observe(m.Exec.Seconds())
	p.duration.WithLabelValues(m.Backend, kind, "total").Observe(m.Total.Seconds())
	if m.Err == nil {
		p.rows.WithLabelValues(m.Backend, kind).Observe(float64(m.Rows))
	}
}
