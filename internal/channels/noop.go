package channels

import (
	"context"

	"github.com/angelmondragon/outbound-dispatch/internal/dispatch"
)

// Noop accepts nothing; the adapter marks messages sent locally when it is selected.
type Noop struct{}

func (Noop) Name() string     { return "noop" }
func (Noop) Configured() bool { return false }

func (Noop) Deliver(context.Context, dispatch.Envelope) error {
	return nil
}
