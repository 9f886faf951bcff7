package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/outbound-dispatch/pkg/db/models"
	"github.com/angelmondragon/outbound-dispatch/pkg/enums"
)

type fakeCandidateSource struct {
	rows    []models.OutboundMessage
	err     error
	lastQry CandidateQuery
}

func (f *fakeCandidateSource) ListCandidates(_ context.Context, q CandidateQuery) ([]models.OutboundMessage, error) {
	f.lastQry = q
	if f.err != nil {
		return nil, f.err
	}
	rows := append([]models.OutboundMessage(nil), f.rows...)
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func TestRankMessagesOrdersByPriorityThenNextAttemptThenCreatedAt(t *testing.T) {
	low := newMessage(enums.MessagePriorityLow, baseTime)
	mediumLater := newMessage(enums.MessagePriorityMedium, baseTime.Add(time.Minute))
	mediumEarlier := newMessage(enums.MessagePriorityMedium, baseTime)
	highDeferred := newMessage(enums.MessagePriorityHigh, baseTime.Add(-time.Hour), withNextAttempt(baseTime.Add(-time.Minute)))
	highFresh := newMessage(enums.MessagePriorityHigh, baseTime)
	highDeferredEarlier := newMessage(enums.MessagePriorityHigh, baseTime, withNextAttempt(baseTime.Add(-time.Hour)))

	msgs := []models.OutboundMessage{low, mediumLater, highDeferred, mediumEarlier, highFresh, highDeferredEarlier}
	RankMessages(msgs)

	want := []models.OutboundMessage{highFresh, highDeferredEarlier, highDeferred, mediumEarlier, mediumLater, low}
	for i := range want {
		assert.Equal(t, want[i].ID, msgs[i].ID, "position %d", i)
	}
}

func TestSelectorFetchesSupersetAndTruncates(t *testing.T) {
	var rows []models.OutboundMessage
	for i := 0; i < 5; i++ {
		rows = append(rows, newMessage(enums.MessagePriorityLow, baseTime.Add(time.Duration(i)*time.Second)))
	}
	high := newMessage(enums.MessagePriorityHigh, baseTime.Add(time.Hour))
	rows = append(rows, high)

	source := &fakeCandidateSource{rows: rows}
	selected, err := NewSelector(source).Select(context.Background(), CandidateQuery{}, 2)
	require.NoError(t, err)

	assert.Equal(t, 6, source.lastQry.Limit)
	require.Len(t, selected, 2)
	assert.Equal(t, high.ID, selected[0].ID)
	assert.Equal(t, rows[0].ID, selected[1].ID)
}

func TestSelectorPropagatesErrors(t *testing.T) {
	source := &fakeCandidateSource{err: errors.New("connection reset")}
	_, err := NewSelector(source).Select(context.Background(), CandidateQuery{}, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
