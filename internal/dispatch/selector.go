package dispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/angelmondragon/outbound-dispatch/pkg/db/models"
)

type candidateSource interface {
	ListCandidates(ctx context.Context, q CandidateQuery) ([]models.OutboundMessage, error)
}

// Selector fetches eligible messages and ranks them for a run.
type Selector struct {
	source candidateSource
}

func NewSelector(source candidateSource) *Selector {
	return &Selector{source: source}
}

// Select returns up to batchSize ranked candidates from a superset of
// supersetFactor*batchSize eligible rows.
func (s *Selector) Select(ctx context.Context, q CandidateQuery, batchSize int) ([]models.OutboundMessage, error) {
	if batchSize <= 0 {
		return nil, nil
	}
	q.Limit = batchSize * supersetFactor
	msgs, err := s.source.ListCandidates(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	RankMessages(msgs)
	if len(msgs) > batchSize {
		msgs = msgs[:batchSize]
	}
	return msgs, nil
}

// RankMessages orders by priority (HIGH first), then next_attempt_at ascending
// with nulls first, then created_at ascending.
func RankMessages(msgs []models.OutboundMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return rankedBefore(msgs[i], msgs[j])
	})
}

func rankedBefore(a, b models.OutboundMessage) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra > rb
	}
	switch {
	case a.NextAttemptAt == nil && b.NextAttemptAt != nil:
		return true
	case a.NextAttemptAt != nil && b.NextAttemptAt == nil:
		return false
	case a.NextAttemptAt != nil && b.NextAttemptAt != nil && !a.NextAttemptAt.Equal(*b.NextAttemptAt):
		return a.NextAttemptAt.Before(*b.NextAttemptAt)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
