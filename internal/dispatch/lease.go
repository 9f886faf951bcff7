package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/outbound-dispatch/pkg/clock"
	"github.com/angelmondragon/outbound-dispatch/pkg/db/models"
)

type leaseStore interface {
	ClaimLeases(ctx context.Context, ids []uuid.UUID, leaseID uuid.UUID, expiresAt time.Time, q CandidateQuery) ([]models.OutboundMessage, error)
	ReleaseLeases(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// Lease identifies one claim over a set of messages.
type Lease struct {
	ID        uuid.UUID
	ExpiresAt time.Time
}

// LeaseManager claims and releases time-boxed exclusive leases on messages.
type LeaseManager struct {
	store    leaseStore
	clock    clock.Clock
	newToken func() uuid.UUID
}

func NewLeaseManager(store leaseStore, clk clock.Clock) *LeaseManager {
	if clk == nil {
		clk = clock.Real()
	}
	return &LeaseManager{store: store, clock: clk, newToken: uuid.New}
}

// Claim assigns a fresh lease to every id that is still eligible and not
// leased by another run. Rows lost to contention are silently skipped.
func (m *LeaseManager) Claim(ctx context.Context, ids []uuid.UUID, duration time.Duration, q CandidateQuery) (Lease, []models.OutboundMessage, error) {
	now := m.clock.Now()
	lease := Lease{ID: m.newToken(), ExpiresAt: now.Add(duration)}
	if len(ids) == 0 {
		return lease, nil, nil
	}
	q.Now = now
	claimed, err := m.store.ClaimLeases(ctx, ids, lease.ID, lease.ExpiresAt, q)
	if err != nil {
		return Lease{}, nil, fmt.Errorf("claim leases: %w", err)
	}
	return lease, claimed, nil
}

// Release clears lease fields on ids regardless of which run holds them.
func (m *LeaseManager) Release(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := m.store.ReleaseLeases(ctx, ids); err != nil {
		return fmt.Errorf("release %d leases: %w", len(ids), err)
	}
	return nil
}
