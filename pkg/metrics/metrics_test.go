package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSchedulerMetricsObserveJobAndTicks(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewSchedulerMetrics(reg)
	finished := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	metrics.ObserveJob("outbound-dispatch", JobStatusSuccess, 250*time.Millisecond, finished)
	metrics.ObserveJob("outbound-dispatch", JobStatusDegraded, time.Second, finished.Add(time.Minute))
	metrics.ObserveJob("outbound-dispatch", JobStatusFailure, time.Second, finished.Add(2*time.Minute))
	metrics.ObserveTick(TickRan)
	metrics.ObserveTick(TickSkipped)
	metrics.ObserveTick(TickSkipped)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	for _, status := range []string{JobStatusSuccess, JobStatusDegraded, JobStatusFailure} {
		if got, err := fetchCounterValue(mfs, "outbound_scheduler_job_runs_total", "status", status); err != nil || got != 1 {
			t.Fatalf("expected one %s run, got %f err=%v", status, got, err)
		}
	}
	if got, err := fetchHistogramSum(mfs, "outbound_scheduler_job_duration_seconds", "job", "outbound-dispatch"); err != nil || got != 2.25 {
		t.Fatalf("expected duration sum 2.25, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "outbound_scheduler_ticks_total", "result", TickSkipped); err != nil || got != 2 {
		t.Fatalf("expected two skipped ticks, got %f err=%v", got, err)
	}

	gauge := findMetricFamily(mfs, "outbound_scheduler_job_last_success_timestamp_seconds")
	if gauge == nil {
		t.Fatal("expected last success gauge")
	}
	want := float64(finished.Add(time.Minute).Unix())
	if got := gauge.GetMetric()[0].GetGauge().GetValue(); got != want {
		t.Fatalf("failure must not move last success: got %f want %f", got, want)
	}
}

func TestDispatchMetricsObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewDispatchMetrics(reg)
	metrics.ObserveRun("real", time.Second, 3, 2, 7)
	metrics.IncMessage("SENT")
	metrics.IncMessage("SENT")
	metrics.IncMessage("FAILED")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "outbound_dispatch_runs_total", "mode", "real"); err != nil || got != 1 {
		t.Fatalf("expected one real run, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "outbound_dispatch_rate_limited_total", "mode", "real"); err != nil || got != 3 {
		t.Fatalf("expected 3 rate limited, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "outbound_dispatch_messages_total", "outcome", "SENT"); err != nil || got != 2 {
		t.Fatalf("expected 2 sent, got %f err=%v", got, err)
	}
	gauge := findMetricFamily(mfs, "outbound_dispatch_remaining_estimate")
	if gauge == nil || gauge.GetMetric()[0].GetGauge().GetValue() != 7 {
		t.Fatalf("expected remaining estimate gauge of 7")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var d *DispatchMetrics
	d.ObserveRun("real", time.Second, 1, 1, 1)
	d.IncMessage("SENT")

	s := NewSchedulerMetrics(nil)
	s.ObserveJob("dispatch", JobStatusSuccess, time.Second, time.Now())
	s.ObserveTick(TickSkipped)

	var nilScheduler *SchedulerMetrics
	nilScheduler.ObserveTick(TickRan)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
