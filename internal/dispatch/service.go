package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/outbound-dispatch/pkg/clock"
	"github.com/angelmondragon/outbound-dispatch/pkg/config"
	"github.com/angelmondragon/outbound-dispatch/pkg/db"
	"github.com/angelmondragon/outbound-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/outbound-dispatch/pkg/errors"
	"github.com/angelmondragon/outbound-dispatch/pkg/logger"
	"github.com/angelmondragon/outbound-dispatch/pkg/metrics"
	"github.com/angelmondragon/outbound-dispatch/pkg/pagination"
)

const (
	warnChannelNotConfigured = "delivery channel not configured; messages marked sent locally"
	defaultRequestedBy       = "system"
)

// Service exposes dispatch runs and queue introspection.
type Service interface {
	Run(ctx context.Context, params RunParams) (RunResult, error)
	Stats(ctx context.Context) (QueueStats, error)
	RecentRuns(ctx context.Context, limit int, cursor *pagination.Cursor) (RunLogPage, error)
}

type runLogReader interface {
	ListRecent(ctx context.Context, limit int, cursor *pagination.Cursor) (RunLogPage, error)
}

// ServiceParams wires the dispatch collaborators.
type ServiceParams struct {
	Repository Repository
	Resolver   OwnerResolver
	Adapter    *Adapter
	Reporter   *Reporter
	RunLogs    runLogReader
	Config     config.DispatchConfig
	Clock      clock.Clock
	Logger     *logger.Logger
	Metrics    *metrics.DispatchMetrics
	Backoff    *Backoff
}

type service struct {
	repo         Repository
	resolver     OwnerResolver
	selector     *Selector
	leases       *LeaseManager
	orchestrator *Orchestrator
	adapter      *Adapter
	reporter     *Reporter
	runLogs      runLogReader
	cfg          config.DispatchConfig
	clock        clock.Clock
	logg         *logger.Logger
	metrics      *metrics.DispatchMetrics
	newRunID     func() uuid.UUID
}

// NewService builds the dispatch service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("repository required")
	}
	if params.Adapter == nil {
		return nil, fmt.Errorf("adapter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.Real()
	}
	resolver := params.Resolver
	if resolver == nil {
		resolver = noOwnerResolver{}
	}
	backoff := params.Backoff
	if backoff == nil {
		backoff = NewBackoff(clk)
	}
	return &service{
		repo:         params.Repository,
		resolver:     resolver,
		selector:     NewSelector(params.Repository),
		leases:       NewLeaseManager(params.Repository, clk),
		orchestrator: NewOrchestrator(params.Adapter, params.Repository, backoff, clk, params.Logger, params.Metrics),
		adapter:      params.Adapter,
		reporter:     params.Reporter,
		runLogs:      params.RunLogs,
		cfg:          params.Config,
		clock:        clk,
		logg:         params.Logger,
		metrics:      params.Metrics,
		newRunID:     uuid.New,
	}, nil
}

// Run executes one dispatch run. Only invalid params and store failures during
// selection or claiming are returned as errors; everything else is reported in
// the result.
func (s *service) Run(ctx context.Context, params RunParams) (RunResult, error) {
	params, err := s.normalize(params)
	if err != nil {
		return RunResult{}, err
	}

	runID := s.newRunID()
	ctx = s.logg.WithRunID(ctx, runID.String())
	mode := enums.RunModeReal
	if params.DryRun {
		mode = enums.RunModeDryRun
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"mode":         mode.String(),
		"requested_by": params.RequestedBy,
		"batch_size":   params.BatchSize,
		"selection":    params.SelectionMode().String(),
	})

	started := s.clock.Now()
	result := RunResult{
		RunID:             runID.String(),
		DryRun:            params.DryRun,
		ChannelConfigured: s.adapter.Configured(),
		StartedAt:         started,
	}
	s.logg.Info(ctx, "dispatch run started")

	query := CandidateQuery{
		Statuses:   params.SelectionMode().Statuses(),
		MaxRetries: s.cfg.MaxRetries,
		Force:      params.Force,
		Now:        started,
	}
	msgs, err := s.selector.Select(ctx, query, params.BatchSize)
	if err != nil {
		return RunResult{}, storeError(err, "failed to select dispatch candidates")
	}
	candidates, warnings := resolveCandidates(ctx, s.resolver, msgs)
	result.Warnings = append(result.Warnings, warnings...)

	usage, err := LoadUsageWindow(ctx, s.repo, s.resolver, started.Add(-rateWindow))
	if err != nil {
		return RunResult{}, storeError(err, "failed to load rate window")
	}
	limiter := NewRateLimiter(s.cfg.GlobalRatePerMinute, s.cfg.OwnerRatePerMinute, usage)

	if params.DryRun {
		err = s.plan(ctx, query, candidates, limiter, &result)
	} else {
		err = s.execute(ctx, params, query, candidates, limiter, &result)
	}
	if err != nil {
		return RunResult{}, err
	}

	if !result.ChannelConfigured {
		result.Warnings = append(result.Warnings, warnChannelNotConfigured)
	}
	result.FinishedAt = s.clock.Now()

	s.metrics.ObserveRun(mode.String(), result.FinishedAt.Sub(started), result.RateLimited, result.Skipped, result.RemainingEstimate)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"ok":                 result.OK,
		"processed":          result.Processed,
		"sent":               result.Sent,
		"handed_off":         result.HandedOff,
		"failed":             result.Failed,
		"skipped":            result.Skipped,
		"rate_limited":       result.RateLimited,
		"remaining_estimate": result.RemainingEstimate,
		"warnings":           len(result.Warnings),
	}), "dispatch run completed")

	if params.LogRun && s.reporter != nil {
		_ = s.reporter.Report(context.WithoutCancel(ctx), NewRunOutcome(result, runID, params.RequestedBy))
	}
	return result, nil
}

// plan computes what a real run would admit without touching the store.
func (s *service) plan(ctx context.Context, query CandidateQuery, candidates []Candidate, limiter *RateLimiter, result *RunResult) error {
	admitted, rejected := limiter.Allocate(candidates)
	result.OK = true
	result.Processed = len(admitted)
	result.RateLimited = len(rejected)
	result.BreakdownByPriority = priorityBreakdown(admitted)
	result.BreakdownByOwner = topOwners(admitted, topOwnerLimit)

	remaining, err := s.repo.CountEligible(ctx, query)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to count eligible messages")
		result.Warnings = append(result.Warnings, "remaining estimate unavailable")
		return nil
	}
	result.RemainingEstimate = max(int(remaining)-len(admitted), 0)
	return nil
}

// execute claims leases before applying the rate budget, so budget is only
// spent on rows this run actually holds. Rows rejected by the limiter are
// leased until the release below; an overlapping run that selects them in
// that window counts them as lease contention and skips them.
func (s *service) execute(ctx context.Context, params RunParams, query CandidateQuery, candidates []Candidate, limiter *RateLimiter, result *RunResult) error {
	lease, claimed, err := s.leases.Claim(ctx, messageIDs(candidates), s.cfg.LeaseDuration(), query)
	if err != nil {
		return storeError(err, "failed to claim dispatch leases")
	}

	held := make(map[uuid.UUID]struct{}, len(claimed))
	for _, msg := range claimed {
		held[msg.ID] = struct{}{}
	}
	leased := make([]Candidate, 0, len(claimed))
	for _, c := range candidates {
		if _, ok := held[c.Message.ID]; ok {
			leased = append(leased, c)
		}
	}
	if contended := len(candidates) - len(leased); contended > 0 {
		result.Skipped += contended
		result.Warnings = append(result.Warnings, fmt.Sprintf("lease contention: %s skipped", pluralize(contended, "candidate", "candidates")))
	}

	admitted, rejected := limiter.Allocate(leased)
	result.RateLimited = len(rejected)
	if err := s.leases.Release(ctx, messageIDs(rejected)); err != nil {
		s.logg.Error(ctx, "failed to release rate limited leases", err)
		result.Warnings = append(result.Warnings, "rate limited leases not released; they expire at "+lease.ExpiresAt.Format(time.RFC3339))
	}

	exec := s.orchestrator.Execute(ctx, lease.ID, admitted, params.Concurrency)
	s.tally(exec, result)

	result.OK = true
	if len(exec.Unstarted) > 0 {
		result.OK = false
		result.Skipped += len(exec.Unstarted)
		result.Warnings = append(result.Warnings, fmt.Sprintf("run canceled: %s not started", pluralize(len(exec.Unstarted), "message", "messages")))
		if err := s.leases.Release(context.WithoutCancel(ctx), messageIDs(exec.Unstarted)); err != nil {
			s.logg.Error(ctx, "failed to release unstarted leases", err)
		}
	}

	processed := make([]Candidate, 0, len(exec.Results))
	for _, r := range exec.Results {
		processed = append(processed, r.Candidate)
	}
	result.BreakdownByPriority = priorityBreakdown(processed)
	result.BreakdownByOwner = topOwners(processed, topOwnerLimit)

	countCtx := context.WithoutCancel(ctx)
	query.Now = s.clock.Now()
	remaining, err := s.repo.CountEligible(countCtx, query)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to count eligible messages")
		result.Warnings = append(result.Warnings, "remaining estimate unavailable")
		return nil
	}
	result.RemainingEstimate = int(remaining)
	return nil
}

func (s *service) tally(exec Execution, result *RunResult) {
	var lost, writeFailures int
	for _, r := range exec.Results {
		result.Processed++
		switch r.Outcome {
		case enums.DeliverySent:
			result.Sent++
		case enums.DeliveryQueuedForRetry:
			result.Sent++
			result.HandedOff++
		default:
			result.Failed++
		}
		if r.LeaseLost {
			lost++
		}
		if r.WriteErr != nil {
			writeFailures++
		}
	}
	if lost > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("lease lost before outcome recorded: %s", pluralize(lost, "message", "messages")))
	}
	if writeFailures > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("outcome not recorded: %s", pluralize(writeFailures, "state update failed", "state updates failed")))
	}
}

func (s *service) normalize(params RunParams) (RunParams, error) {
	if params.BatchSize == 0 {
		params.BatchSize = s.cfg.BatchSize
	}
	if params.BatchSize < 1 || params.BatchSize > config.MaxBatchSize {
		return params, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("batchSize must be between 1 and %d", config.MaxBatchSize)).
			WithDetails(map[string]any{"field": "batchSize", "value": params.BatchSize})
	}
	if params.Concurrency == 0 {
		params.Concurrency = s.cfg.Concurrency
	}
	if params.Concurrency < 1 || params.Concurrency > config.MaxConcurrency {
		return params, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("concurrency must be between 1 and %d", config.MaxConcurrency)).
			WithDetails(map[string]any{"field": "concurrency", "value": params.Concurrency})
	}
	if params.RequestedBy == "" {
		params.RequestedBy = defaultRequestedBy
	}
	return params, nil
}

func (s *service) Stats(ctx context.Context) (QueueStats, error) {
	stats, err := s.repo.QueueStats(ctx, s.cfg.MaxRetries, s.clock.Now())
	if err != nil {
		return QueueStats{}, storeError(err, "failed to load queue stats")
	}
	return stats, nil
}

func (s *service) RecentRuns(ctx context.Context, limit int, cursor *pagination.Cursor) (RunLogPage, error) {
	if s.runLogs == nil {
		return RunLogPage{}, pkgerrors.New(pkgerrors.CodeNotFound, "run log storage not configured")
	}
	page, err := s.runLogs.ListRecent(ctx, limit, cursor)
	if err != nil {
		return RunLogPage{}, storeError(err, "failed to list run logs")
	}
	return page, nil
}

// storeError marks store failures as dependency errors and flags the ones a
// caller can simply retry.
func storeError(err error, message string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message).
		WithDetails(map[string]any{"transient": db.IsTransient(err)})
}
