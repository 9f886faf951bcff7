package dispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/outbound-dispatch/pkg/enums"
	"github.com/angelmondragon/outbound-dispatch/pkg/logger"
)

// RunSink persists one run outcome.
type RunSink interface {
	Name() string
	Record(ctx context.Context, outcome RunOutcome) error
}

// Reporter fans a run outcome out to every configured sink. Sink failures are
// logged and returned combined; they never change the run result.
type Reporter struct {
	sinks []RunSink
	logg  *logger.Logger
}

func NewReporter(logg *logger.Logger, sinks ...RunSink) *Reporter {
	active := make([]RunSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			active = append(active, sink)
		}
	}
	return &Reporter{sinks: active, logg: logg}
}

func (r *Reporter) Report(ctx context.Context, outcome RunOutcome) error {
	if r == nil {
		return nil
	}
	var errs error
	for _, sink := range r.sinks {
		if err := sink.Record(ctx, outcome); err != nil {
			err = fmt.Errorf("%s: %w", sink.Name(), err)
			if r.logg != nil {
				r.logg.Error(r.logg.WithField(ctx, "sink", sink.Name()), "failed to record run outcome", err)
			}
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// NewRunOutcome builds the sink record from a finished result.
func NewRunOutcome(result RunResult, runID uuid.UUID, requestedBy string) RunOutcome {
	mode := enums.RunModeReal
	if result.DryRun {
		mode = enums.RunModeDryRun
	}
	return RunOutcome{
		RunID:               runID,
		Mode:                mode,
		RequestedBy:         requestedBy,
		Processed:           result.Processed,
		Sent:                result.Sent,
		Failed:              result.Failed,
		Skipped:             result.Skipped,
		RateLimited:         result.RateLimited,
		RemainingEstimate:   result.RemainingEstimate,
		BreakdownByPriority: result.BreakdownByPriority,
		BreakdownByOwner:    result.BreakdownByOwner,
		ChannelConfigured:   result.ChannelConfigured,
		Warnings:            result.Warnings,
		StartedAt:           result.StartedAt,
		FinishedAt:          result.FinishedAt,
	}
}

// priorityBreakdown counts candidates per priority; every priority is present.
func priorityBreakdown(candidates []Candidate) map[string]int {
	out := make(map[string]int, len(enums.ValidMessagePriorities))
	for _, p := range enums.ValidMessagePriorities {
		out[p.String()] = 0
	}
	for _, c := range candidates {
		out[c.Message.Priority.String()]++
	}
	return out
}

// topOwners returns the owners with the most candidates, highest first.
// Unowned messages are not listed.
func topOwners(candidates []Candidate, limit int) []OwnerCount {
	counts := map[string]*OwnerCount{}
	for _, c := range candidates {
		if c.Owner == nil || c.Owner.ID == "" {
			continue
		}
		entry, ok := counts[c.Owner.ID]
		if !ok {
			entry = &OwnerCount{OwnerID: c.Owner.ID, OwnerName: c.Owner.Name}
			counts[c.Owner.ID] = entry
		}
		entry.Count++
	}
	out := make([]OwnerCount, 0, len(counts))
	for _, entry := range counts {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].OwnerID < out[j].OwnerID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}
