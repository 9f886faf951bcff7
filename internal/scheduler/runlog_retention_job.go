package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/outbound-dispatch/pkg/clock"
)

const runLogRetentionDays = 30

type runLogPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type RunLogRetentionJobParams struct {
	Repository runLogPruner
	Retention  int
	Clock      clock.Clock
}

func NewRunLogRetentionJob(params RunLogRetentionJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("run log repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = runLogRetentionDays
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &runLogRetentionJob{
		repo:      params.Repository,
		retention: retention,
		clock:     clk,
	}, nil
}

type runLogRetentionJob struct {
	repo      runLogPruner
	retention int
	clock     clock.Clock
}

func (j *runLogRetentionJob) Name() string { return "run-log-retention" }

func (j *runLogRetentionJob) Run(ctx context.Context) (JobReport, error) {
	cutoff := j.clock.Now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	deleted, err := j.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return JobReport{}, fmt.Errorf("run log retention: %w", err)
	}
	return JobReport{Fields: map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	}}, nil
}
