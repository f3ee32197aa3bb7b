// Package metrics centralizes the bot's prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the pipeline counters shared across components.
type Metrics struct {
	OpportunitiesFound prometheus.Counter
	AttemptsTotal      prometheus.Counter
	AttemptRejects     *prometheus.CounterVec
	AttemptSuccesses   prometheus.Counter
	AttemptFailures    prometheus.Counter
	ScanLatency        prometheus.Histogram
	SubmitLatency      prometheus.Histogram
}

// New creates the metric set. reg may be nil to skip registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OpportunitiesFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_opportunities_found_total",
			Help: "Profitable round trips discovered by the scanner",
		}),
		AttemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_attempts_total",
			Help: "Execution attempts submitted past all gates",
		}),
		AttemptRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_attempt_rejects_total",
			Help: "Attempts rejected before submission, by gate",
		}, []string{"gate"}),
		AttemptSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_attempt_successes_total",
			Help: "Attempts that settled profitably",
		}),
		AttemptFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "arb_attempt_failures_total",
			Help: "Attempts that failed after submission",
		}),
		ScanLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "arb_scan_latency_seconds",
			Help:    "Latency of one full scan cycle",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		SubmitLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "arb_submit_latency_seconds",
			Help:    "Latency from gate entry to settlement",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}

// CounterValue reads a counter's current value through the client model.
func CounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil || m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}

// Handler exposes the registry over HTTP.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
