package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/outbound-dispatch/pkg/clock"
	"github.com/angelmondragon/outbound-dispatch/pkg/enums"
	"github.com/angelmondragon/outbound-dispatch/pkg/logger"
	"github.com/angelmondragon/outbound-dispatch/pkg/metrics"
)

type stateWriter interface {
	MarkSent(ctx context.Context, id, leaseID uuid.UUID, at time.Time) (bool, error)
	MarkHandedOff(ctx context.Context, id, leaseID uuid.UUID, at, nextAttemptAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, leaseID uuid.UUID, update FailureUpdate) (bool, error)
}

// ItemResult is the outcome of one message in a run.
type ItemResult struct {
	Candidate Candidate
	Outcome   enums.DeliveryOutcome
	// DeliveryErr is the channel failure, if any.
	DeliveryErr error
	// LeaseLost is set when the state update found another lease on the row.
	LeaseLost bool
	// WriteErr is set when the state update itself failed.
	WriteErr error
}

// Execution aggregates the per-item results of a pool run.
type Execution struct {
	Results   []ItemResult
	Unstarted []Candidate
}

// Orchestrator drives a bounded worker pool over a leased batch.
type Orchestrator struct {
	adapter *Adapter
	store   stateWriter
	backoff *Backoff
	clock   clock.Clock
	logg    *logger.Logger
	metrics *metrics.DispatchMetrics
}

func NewOrchestrator(adapter *Adapter, store stateWriter, backoff *Backoff, clk clock.Clock, logg *logger.Logger, m *metrics.DispatchMetrics) *Orchestrator {
	if clk == nil {
		clk = clock.Real()
	}
	if backoff == nil {
		backoff = NewBackoff(clk)
	}
	return &Orchestrator{
		adapter: adapter,
		store:   store,
		backoff: backoff,
		clock:   clk,
		logg:    logg,
		metrics: m,
	}
}

// Execute partitions batch by index modulo the worker count; each worker walks
// its slice sequentially, so no message is seen by two workers. Once ctx is
// canceled workers stop taking new items and report them as unstarted.
func (o *Orchestrator) Execute(ctx context.Context, leaseID uuid.UUID, batch []Candidate, concurrency int) Execution {
	if len(batch) == 0 {
		return Execution{}
	}
	workers := concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(batch) {
		workers = len(batch)
	}

	type workerReport struct {
		results   []ItemResult
		unstarted []Candidate
	}
	reports := make([]workerReport, workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			report := &reports[w]
			for i := w; i < len(batch); i += workers {
				if ctx.Err() != nil {
					report.unstarted = append(report.unstarted, batch[i])
					continue
				}
				report.results = append(report.results, o.process(ctx, leaseID, batch[i]))
			}
			return nil
		})
	}
	_ = g.Wait()

	var exec Execution
	for _, r := range reports {
		exec.Results = append(exec.Results, r.results...)
		exec.Unstarted = append(exec.Unstarted, r.unstarted...)
	}
	return exec
}

func (o *Orchestrator) process(ctx context.Context, leaseID uuid.UUID, c Candidate) ItemResult {
	msg := c.Message
	itemCtx := ctx
	if o.logg != nil {
		itemCtx = o.logg.WithFields(ctx, map[string]any{
			"message_id":  msg.ID.String(),
			"channel":     msg.Channel.String(),
			"retry_count": msg.RetryCount,
		})
	}

	outcome, deliveryErr := o.adapter.Dispatch(itemCtx, msg)
	result := ItemResult{Candidate: c, Outcome: outcome, DeliveryErr: deliveryErr}

	// the attempt already happened; record it even if the run is being canceled
	writeCtx := context.WithoutCancel(itemCtx)
	now := o.clock.Now()

	var (
		applied bool
		err     error
	)
	switch outcome {
	case enums.DeliverySent:
		applied, err = o.store.MarkSent(writeCtx, msg.ID, leaseID, now)
	case enums.DeliveryQueuedForRetry:
		applied, err = o.store.MarkHandedOff(writeCtx, msg.ID, leaseID, now, o.backoff.NextAttempt(msg.RetryCount+1))
	default:
		retryCount := msg.RetryCount + 1
		applied, err = o.store.MarkFailed(writeCtx, msg.ID, leaseID, FailureUpdate{
			RetryCount:    retryCount,
			Error:         truncateError(deliveryErr),
			NextAttemptAt: o.backoff.NextAttempt(retryCount),
			At:            now,
		})
		if o.logg != nil {
			o.logg.Warn(o.logg.WithField(itemCtx, "error", truncateError(deliveryErr)), "delivery attempt failed")
		}
	}

	o.metrics.IncMessage(outcome.String())

	switch {
	case err != nil:
		result.WriteErr = err
		if o.logg != nil {
			o.logg.Error(itemCtx, "failed to record delivery outcome", err)
		}
	case !applied:
		result.LeaseLost = true
		if o.logg != nil {
			o.logg.Warn(itemCtx, "lease no longer held; outcome not recorded")
		}
	}
	return result
}

// truncateError keeps at most maxErrorLength characters. Invalid UTF-8 bytes
// are replaced first so a bad byte never shortens the stored text.
func truncateError(err error) string {
	if err == nil {
		return "delivery failed"
	}
	msg := strings.ToValidUTF8(err.Error(), "\uFFFD")
	if utf8.RuneCountInString(msg) <= maxErrorLength {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:maxErrorLength])
}

func (r ItemResult) String() string {
	return fmt.Sprintf("%s:%s", r.Candidate.Message.ID, r.Outcome)
}
