package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/outbound-dispatch/pkg/db/dbtest"
	"github.com/angelmondragon/outbound-dispatch/pkg/db/models"
	"github.com/angelmondragon/outbound-dispatch/pkg/enums"
)

func normalQuery(now time.Time) CandidateQuery {
	return CandidateQuery{Statuses: enums.SelectionNormal.Statuses(), MaxRetries: 3, Now: now}
}

func TestRepositoryListCandidatesAppliesEligibility(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	now := baseTime

	eligible := newMessage(enums.MessagePriorityLow, now.Add(-time.Hour))
	due := newMessage(enums.MessagePriorityMedium, now.Add(-time.Hour), withNextAttempt(now.Add(-time.Minute)))
	expiredLease := newMessage(enums.MessagePriorityLow, now.Add(-30*time.Minute), withLease(uuid.New(), now.Add(-time.Second)))
	high := newMessage(enums.MessagePriorityHigh, now.Add(-time.Minute))

	deferred := newMessage(enums.MessagePriorityHigh, now, withNextAttempt(now.Add(time.Minute)))
	leased := newMessage(enums.MessagePriorityHigh, now, withLease(uuid.New(), now.Add(time.Minute)))
	exhausted := newMessage(enums.MessagePriorityHigh, now, withRetryCount(3))
	sent := newMessage(enums.MessagePriorityHigh, now, withStatus(enums.MessageStatusSent))
	failed := newMessage(enums.MessagePriorityHigh, now, withStatus(enums.MessageStatusFailed), withRetryCount(1))

	insertMessages(t, db, eligible, due, expiredLease, high, deferred, leased, exhausted, sent, failed)

	rows, err := repo.ListCandidates(context.Background(), normalQuery(now))
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	assert.Equal(t, []uuid.UUID{high.ID, due.ID, eligible.ID, expiredLease.ID}, ids)

	count, err := repo.CountEligible(context.Background(), normalQuery(now))
	require.NoError(t, err)
	assert.EqualValues(t, 4, count)

	forced := normalQuery(now)
	forced.Force = true
	count, err = repo.CountEligible(context.Background(), forced)
	require.NoError(t, err)
	assert.EqualValues(t, 5, count, "force ignores next_attempt_at")

	retry := CandidateQuery{Statuses: enums.SelectionRetryOnly.Statuses(), MaxRetries: 3, Now: now}
	rows, err = repo.ListCandidates(context.Background(), retry)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, failed.ID, rows[0].ID)
}

func TestRepositoryClaimIsIdempotentAcrossRuns(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	var msgs []models.OutboundMessage
	for i := 0; i < 10; i++ {
		msgs = append(msgs, newMessage(enums.MessagePriorityMedium, baseTime.Add(time.Duration(i)*time.Second)))
	}
	insertMessages(t, db, msgs...)
	ids := messageIDs(candidatesOf(msgs...))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = map[uuid.UUID]uuid.UUID{}
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			leaseID := uuid.New()
			rows, err := repo.ClaimLeases(ctx, ids, leaseID, baseTime.Add(2*time.Minute), normalQuery(baseTime))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, row := range rows {
				_, dup := claimed[row.ID]
				assert.False(t, dup, "message %s claimed twice", row.ID)
				claimed[row.ID] = leaseID
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, len(msgs))

	again, err := repo.ClaimLeases(ctx, ids, uuid.New(), baseTime.Add(2*time.Minute), normalQuery(baseTime.Add(time.Minute)))
	require.NoError(t, err)
	assert.Empty(t, again, "live leases must not be reclaimed")

	afterExpiry, err := repo.ClaimLeases(ctx, ids[:3], uuid.New(), baseTime.Add(5*time.Minute), normalQuery(baseTime.Add(3*time.Minute)))
	require.NoError(t, err)
	assert.Len(t, afterExpiry, 3, "expired leases are claimable")
}

func TestRepositoryStateUpdatesRequireLease(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	leaseID := uuid.New()
	msg := newMessage(enums.MessagePriorityHigh, baseTime, withLease(leaseID, baseTime.Add(time.Minute)))
	insertMessages(t, db, msg)

	ok, err := repo.MarkSent(ctx, msg.ID, uuid.New(), baseTime)
	require.NoError(t, err)
	assert.False(t, ok, "foreign lease must not update the row")

	next := baseTime.Add(2 * time.Minute)
	ok, err = repo.MarkFailed(ctx, msg.ID, leaseID, FailureUpdate{RetryCount: 1, Error: "boom", NextAttemptAt: next, At: baseTime})
	require.NoError(t, err)
	assert.True(t, ok)

	stored := loadMessage(t, db, msg.ID)
	assert.Equal(t, enums.MessageStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.Error)
	assert.Equal(t, "boom", *stored.Error)
	assert.Nil(t, stored.LeaseID)
	assert.Nil(t, stored.LeaseExpiresAt)
	assert.Nil(t, stored.DispatchedAt)
	require.NotNil(t, stored.NextAttemptAt)
	assert.True(t, stored.NextAttemptAt.Equal(next))
}

func TestRepositoryMarkSentAndHandedOff(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	leaseID := uuid.New()
	sent := newMessage(enums.MessagePriorityHigh, baseTime, withLease(leaseID, baseTime.Add(time.Minute)), withNextAttempt(baseTime))
	handed := newMessage(enums.MessagePriorityHigh, baseTime, withLease(leaseID, baseTime.Add(time.Minute)))
	insertMessages(t, db, sent, handed)

	ok, err := repo.MarkSent(ctx, sent.ID, leaseID, baseTime)
	require.NoError(t, err)
	require.True(t, ok)
	next := baseTime.Add(2 * time.Minute)
	ok, err = repo.MarkHandedOff(ctx, handed.ID, leaseID, baseTime, next)
	require.NoError(t, err)
	require.True(t, ok)

	storedSent := loadMessage(t, db, sent.ID)
	assert.Equal(t, enums.MessageStatusSent, storedSent.Status)
	assert.Nil(t, storedSent.NextAttemptAt)
	assert.Nil(t, storedSent.LeaseID)
	require.NotNil(t, storedSent.SentAt)
	require.NotNil(t, storedSent.DispatchedAt)

	storedHanded := loadMessage(t, db, handed.ID)
	assert.Equal(t, enums.MessageStatusQueued, storedHanded.Status)
	assert.Nil(t, storedHanded.SentAt)
	require.NotNil(t, storedHanded.DispatchedAt)
	require.NotNil(t, storedHanded.NextAttemptAt)
	assert.True(t, storedHanded.NextAttemptAt.Equal(next))

	recent, err := repo.ListDispatchedSince(ctx, baseTime.Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestRepositoryQueueStats(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)

	insertMessages(t, db,
		newMessage(enums.MessagePriorityHigh, baseTime),
		newMessage(enums.MessagePriorityHigh, baseTime, withLease(uuid.New(), baseTime.Add(time.Minute))),
		newMessage(enums.MessagePriorityLow, baseTime),
		newMessage(enums.MessagePriorityLow, baseTime, withStatus(enums.MessageStatusFailed), withRetryCount(3)),
		newMessage(enums.MessagePriorityMedium, baseTime, withStatus(enums.MessageStatusSent)),
	)

	stats, err := repo.QueueStats(context.Background(), 3, baseTime)
	require.NoError(t, err)

	assert.EqualValues(t, 3, stats.ByStatus["QUEUED"])
	assert.EqualValues(t, 2, stats.ByStatusPriority["QUEUED"]["HIGH"])
	assert.EqualValues(t, 1, stats.ByStatus["SENT"])
	assert.EqualValues(t, 2, stats.EligibleNow)
	assert.EqualValues(t, 1, stats.Leased)
	assert.EqualValues(t, 1, stats.RetryExhausted)
}
