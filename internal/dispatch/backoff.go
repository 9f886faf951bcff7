package dispatch

import (
	"math/rand/v2"
	"time"

	"github.com/angelmondragon/outbound-dispatch/pkg/clock"
)

// DefaultBackoffSteps is indexed by retryCount-1; the last step repeats.
var DefaultBackoffSteps = []time.Duration{2 * time.Minute, 10 * time.Minute, time.Hour}

// DefaultJitter is the multiplicative jitter ratio applied to each step.
const DefaultJitter = 0.2

// Backoff computes the next eligible attempt time for a retry count.
type Backoff struct {
	clock     clock.Clock
	steps     []time.Duration
	jitter    float64
	randFloat func() float64
}

// NewBackoff returns a Backoff with the default step table and ±20% jitter.
func NewBackoff(clk clock.Clock) *Backoff {
	if clk == nil {
		clk = clock.Real()
	}
	return &Backoff{
		clock:     clk,
		steps:     DefaultBackoffSteps,
		jitter:    DefaultJitter,
		randFloat: rand.Float64,
	}
}

// Delay returns the jittered delay for retryCount. Counts below 1 use the first step.
func (b *Backoff) Delay(retryCount int) time.Duration {
	idx := retryCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(b.steps)-1 {
		idx = len(b.steps) - 1
	}
	step := b.steps[idx]
	// factor is uniform in [1-jitter, 1+jitter)
	factor := 1 + b.jitter*(2*b.randFloat()-1)
	return time.Duration(float64(step) * factor)
}

// NextAttempt returns now plus the jittered delay for retryCount.
func (b *Backoff) NextAttempt(retryCount int) time.Time {
	return b.clock.Now().Add(b.Delay(retryCount))
}
