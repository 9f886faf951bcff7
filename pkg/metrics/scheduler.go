package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "outbound"

// Job statuses recorded by ObserveJob.
const (
	JobStatusSuccess  = "success"
	JobStatusDegraded = "degraded"
	JobStatusFailure  = "failure"
)

// Tick results recorded by ObserveTick.
const (
	TickRan       = "ran"
	TickSkipped   = "skipped"
	TickLockError = "lock_error"
)

// SchedulerMetrics records ticks of the dispatch worker and the jobs they run.
type SchedulerMetrics struct {
	ticks       *prometheus.CounterVec
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	if reg == nil {
		return &SchedulerMetrics{}
	}
	m := &SchedulerMetrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Scheduler ticks by result (ran, skipped on lock contention, lock_error).",
		}, []string{"result"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job executions by status.",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled jobs in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last run that did not fail.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.ticks, m.runs, m.duration, m.lastSuccess)
	return m
}

// ObserveTick counts one tick with its result.
func (s *SchedulerMetrics) ObserveTick(result string) {
	if s == nil || s.ticks == nil {
		return
	}
	s.ticks.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveJob records one job execution. Degraded runs still move the
// last-success timestamp.
func (s *SchedulerMetrics) ObserveJob(job, status string, duration time.Duration, finishedAt time.Time) {
	if s == nil || s.runs == nil {
		return
	}
	job = normalizeLabel(job)
	s.runs.WithLabelValues(job, normalizeLabel(status)).Inc()
	s.duration.WithLabelValues(job).Observe(duration.Seconds())
	if status != JobStatusFailure {
		s.lastSuccess.WithLabelValues(job).Set(float64(finishedAt.Unix()))
	}
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
