package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics exposes per-run and per-message dispatch counters.
type DispatchMetrics struct {
	runs        *prometheus.CounterVec
	messages    *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
	contention  prometheus.Counter
	runDuration *prometheus.HistogramVec
	remaining   prometheus.Gauge
}

// NewDispatchMetrics registers the dispatch metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	m := &DispatchMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_runs_total",
			Help:      "Dispatch runs by mode.",
		}, []string{"mode"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_messages_total",
			Help:      "Delivery attempts by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_rate_limited_total",
			Help:      "Candidates rejected by the rate limiter.",
		}, []string{"mode"}),
		contention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_lease_contention_total",
			Help:      "Candidates skipped because another run held their lease.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_run_duration_seconds",
			Help:      "Duration of dispatch runs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_remaining_estimate",
			Help:      "Eligible messages left after the latest run.",
		}),
	}
	reg.MustRegister(m.runs, m.messages, m.rateLimited, m.contention, m.runDuration, m.remaining)
	return m
}

// ObserveRun records the aggregate outcome of one run.
func (m *DispatchMetrics) ObserveRun(mode string, duration time.Duration, rateLimited, skipped, remaining int) {
	if m == nil || m.runs == nil {
		return
	}
	label := normalizeLabel(mode)
	m.runs.WithLabelValues(label).Inc()
	m.runDuration.WithLabelValues(label).Observe(duration.Seconds())
	m.rateLimited.WithLabelValues(label).Add(float64(rateLimited))
	m.contention.Add(float64(skipped))
	m.remaining.Set(float64(remaining))
}

// IncMessage counts one delivery attempt with the given outcome.
func (m *DispatchMetrics) IncMessage(outcome string) {
	if m == nil || m.messages == nil {
		return
	}
	m.messages.WithLabelValues(normalizeLabel(outcome)).Inc()
}
