package scheduler

import (
	"context"
	"fmt"

	"github.com/angelmondragon/outbound-dispatch/internal/dispatch"
	"github.com/angelmondragon/outbound-dispatch/pkg/instance"
)

type dispatchRunner interface {
	Run(ctx context.Context, params dispatch.RunParams) (dispatch.RunResult, error)
}

type DispatchJobParams struct {
	Service dispatchRunner
}

// NewDispatchJob runs one real dispatch per tick, picking up queued rows and
// failed rows whose backoff has elapsed.
func NewDispatchJob(params DispatchJobParams) (Job, error) {
	if params.Service == nil {
		return nil, fmt.Errorf("dispatch service required")
	}
	return &dispatchJob{
		service:     params.Service,
		requestedBy: "scheduler:" + instance.GetID(),
	}, nil
}

type dispatchJob struct {
	service     dispatchRunner
	requestedBy string
}

func (j *dispatchJob) Name() string { return "outbound-dispatch" }

// Run reports the run id and counts so the scheduler log line can be joined
// with the run log. A run that stopped early is degraded, not failed.
func (j *dispatchJob) Run(ctx context.Context) (JobReport, error) {
	result, err := j.service.Run(ctx, dispatch.ScheduledRunParams(j.requestedBy))
	if err != nil {
		return JobReport{}, fmt.Errorf("dispatch run: %w", err)
	}
	report := JobReport{
		Fields: map[string]any{
			"run_id":             result.RunID,
			"processed":          result.Processed,
			"sent":               result.Sent,
			"failed":             result.Failed,
			"rate_limited":       result.RateLimited,
			"remaining_estimate": result.RemainingEstimate,
		},
		Degraded: !result.OK,
	}
	if len(result.Warnings) > 0 {
		report.Fields["warnings"] = result.Warnings
	}
	return report, nil
}
