package dispatch

import (
	"context"

	"github.com/angelmondragon/outbound-dispatch/internal/owners"
	"github.com/angelmondragon/outbound-dispatch/pkg/db/models"
)

// OwnerResolver attributes a message to the staff member whose per-owner
// budget it consumes. A nil Info means the message has no owner.
type OwnerResolver interface {
	Resolve(ctx context.Context, msg models.OutboundMessage) (*owners.Info, error)
}

type noOwnerResolver struct{}

func (noOwnerResolver) Resolve(context.Context, models.OutboundMessage) (*owners.Info, error) {
	return nil, nil
}

// resolveCandidates pairs each message with its owner. Lookup failures are
// reported as warnings and the message is treated as unowned.
func resolveCandidates(ctx context.Context, resolver OwnerResolver, msgs []models.OutboundMessage) ([]Candidate, []string) {
	candidates := make([]Candidate, 0, len(msgs))
	var warnings []string
	failed := 0
	for _, msg := range msgs {
		owner, err := resolver.Resolve(ctx, msg)
		if err != nil {
			failed++
			owner = nil
		}
		candidates = append(candidates, Candidate{Message: msg, Owner: owner})
	}
	if failed > 0 {
		warnings = append(warnings, pluralize(failed, "owner lookup failed", "owner lookups failed")+"; treated as unowned")
	}
	return candidates, warnings
}
