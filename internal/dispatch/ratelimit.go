package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/outbound-dispatch/pkg/db/models"
)

// UsageWindow is dispatch usage observed in the trailing rate window.
type UsageWindow struct {
	Global   int
	PerOwner map[string]int
}

type dispatchHistory interface {
	ListDispatchedSince(ctx context.Context, since time.Time) ([]models.OutboundMessage, error)
}

// LoadUsageWindow counts messages dispatched since the window start and
// attributes them to owners. Owner lookup failures leave a message unattributed.
func LoadUsageWindow(ctx context.Context, history dispatchHistory, resolver OwnerResolver, since time.Time) (UsageWindow, error) {
	recent, err := history.ListDispatchedSince(ctx, since)
	if err != nil {
		return UsageWindow{}, fmt.Errorf("list dispatched since %s: %w", since.Format(time.RFC3339), err)
	}
	window := UsageWindow{Global: len(recent), PerOwner: map[string]int{}}
	if resolver == nil {
		return window, nil
	}
	for _, msg := range recent {
		owner, err := resolver.Resolve(ctx, msg)
		if err != nil || owner == nil {
			continue
		}
		window.PerOwner[owner.ID]++
	}
	return window, nil
}

// RateLimiter admits candidates against global and per-owner budgets.
// Budgets are computed once per run and decremented in memory.
type RateLimiter struct {
	globalRemaining int
	ownerLimit      int
	ownerUsed       map[string]int
}

func NewRateLimiter(globalLimit, ownerLimit int, usage UsageWindow) *RateLimiter {
	remaining := globalLimit - usage.Global
	if remaining < 0 {
		remaining = 0
	}
	if ownerLimit < 0 {
		ownerLimit = 0
	}
	used := make(map[string]int, len(usage.PerOwner))
	for owner, count := range usage.PerOwner {
		used[owner] = count
	}
	return &RateLimiter{
		globalRemaining: remaining,
		ownerLimit:      ownerLimit,
		ownerUsed:       used,
	}
}

// Admit consumes budget for one dispatch. An empty ownerID skips the owner check.
func (l *RateLimiter) Admit(ownerID string) bool {
	if l.globalRemaining <= 0 {
		return false
	}
	if ownerID != "" && l.ownerUsed[ownerID] >= l.ownerLimit {
		return false
	}
	l.globalRemaining--
	if ownerID != "" {
		l.ownerUsed[ownerID]++
	}
	return true
}

// GlobalRemaining reports the budget left for this run.
func (l *RateLimiter) GlobalRemaining() int {
	return l.globalRemaining
}

// Allocate walks candidates in order and splits them into admitted and rejected.
func (l *RateLimiter) Allocate(candidates []Candidate) (admitted, rejected []Candidate) {
	for _, c := range candidates {
		if l.Admit(c.OwnerID()) {
			admitted = append(admitted, c)
			continue
		}
		rejected = append(rejected, c)
	}
	return admitted, rejected
}
