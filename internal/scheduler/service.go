package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/outbound-dispatch/pkg/clock"
	"github.com/angelmondragon/outbound-dispatch/pkg/logger"
	"github.com/angelmondragon/outbound-dispatch/pkg/metrics"
)

const defaultInterval = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.SchedulerMetrics
	Clock    clock.Clock
	Interval time.Duration
}

// Service drives the dispatch worker loop. Each tick takes the distributed
// lock, runs every registered job in order and releases the lock. A failing
// job never stops the ones after it.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.SchedulerMetrics
	clock    clock.Clock
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	svc := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		clock:    params.Clock,
		interval: params.Interval,
	}
	if svc.registry == nil {
		svc.registry, _ = NewRegistry()
	}
	if svc.clock == nil {
		svc.clock = clock.Real()
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	return svc, nil
}

// Run ticks immediately and then every interval until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"interval": s.interval.String(),
		"jobs":     s.registry.Names(),
	}), "scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			s.logg.Info(ctx, "scheduler stopped")
			return ctx.Err()
		}
		s.tick(ctx)
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// tick runs one locked pass over the registry and reports what it did.
func (s *Service) tick(ctx context.Context) string {
	tickCtx := s.logg.WithField(ctx, "tick_id", uuid.NewString())

	release, acquired, err := s.lock.TryLock(tickCtx)
	switch {
	case err != nil:
		s.metrics.ObserveTick(metrics.TickLockError)
		s.logg.Error(tickCtx, "scheduler lock unavailable", err)
		return metrics.TickLockError
	case !acquired:
		s.metrics.ObserveTick(metrics.TickSkipped)
		s.logg.Debug(tickCtx, "scheduler lock held elsewhere; tick skipped")
		return metrics.TickSkipped
	}
	defer func() {
		if err := release(context.WithoutCancel(tickCtx)); err != nil {
			s.logg.Error(tickCtx, "scheduler lock release failed", err)
		}
	}()

	s.metrics.ObserveTick(metrics.TickRan)
	for _, job := range s.registry.Jobs() {
		if tickCtx.Err() != nil {
			break
		}
		s.runJob(tickCtx, job)
	}
	return metrics.TickRan
}

func (s *Service) runJob(ctx context.Context, job Job) string {
	name := job.Name()
	jobCtx := s.logg.WithField(ctx, "job", name)

	started := s.clock.Now()
	report, err := job.Run(jobCtx)
	finished := s.clock.Now()

	fields := map[string]any{"duration_ms": finished.Sub(started).Milliseconds()}
	for k, v := range report.Fields {
		fields[k] = v
	}
	jobCtx = s.logg.WithFields(jobCtx, fields)

	status := metrics.JobStatusSuccess
	switch {
	case err != nil:
		status = metrics.JobStatusFailure
		s.logg.Error(jobCtx, "scheduled job failed", err)
	case report.Degraded:
		status = metrics.JobStatusDegraded
		s.logg.Warn(jobCtx, "scheduled job finished degraded")
	default:
		s.logg.Info(jobCtx, "scheduled job finished")
	}
	s.metrics.ObserveJob(name, status, finished.Sub(started), finished)
	return status
}
