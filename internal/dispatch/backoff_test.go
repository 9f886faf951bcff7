package dispatch

import (
	"testing"
	"time"

	"github.com/angelmondragon/outbound-dispatch/pkg/clock"
)

func TestBackoffDelayWithinJitterBounds(t *testing.T) {
	b := NewBackoff(clock.NewFixed(baseTime))

	cases := []struct {
		retryCount int
		min, max   time.Duration
	}{
		{retryCount: 0, min: 96 * time.Second, max: 144 * time.Second},
		{retryCount: 1, min: 96 * time.Second, max: 144 * time.Second},
		{retryCount: 2, min: 8 * time.Minute, max: 12 * time.Minute},
		{retryCount: 3, min: 48 * time.Minute, max: 72 * time.Minute},
		{retryCount: 5, min: 48 * time.Minute, max: 72 * time.Minute},
	}
	for _, tc := range cases {
		for i := 0; i < 200; i++ {
			got := b.Delay(tc.retryCount)
			if got < tc.min-time.Millisecond || got > tc.max {
				t.Fatalf("retry %d: delay %v outside [%v, %v]", tc.retryCount, got, tc.min, tc.max)
			}
		}
	}
}

func TestBackoffJitterExtremes(t *testing.T) {
	b := NewBackoff(clock.NewFixed(baseTime))

	b.randFloat = func() float64 { return 0 }
	if got := b.Delay(1); (got - 96*time.Second).Abs() > time.Millisecond {
		t.Fatalf("expected lower bound 96s, got %v", got)
	}
	b.randFloat = func() float64 { return 0.5 }
	if got := b.Delay(2); got != 10*time.Minute {
		t.Fatalf("expected unjittered 10m, got %v", got)
	}
}

func TestBackoffNextAttemptUsesClock(t *testing.T) {
	clk := clock.NewFixed(baseTime)
	b := NewBackoff(clk)
	b.randFloat = func() float64 { return 0.5 }

	if got := b.NextAttempt(1); !got.Equal(baseTime.Add(2 * time.Minute)) {
		t.Fatalf("unexpected next attempt %v", got)
	}
	clk.Advance(time.Hour)
	if got := b.NextAttempt(3); !got.Equal(baseTime.Add(2 * time.Hour)) {
		t.Fatalf("unexpected next attempt after advance %v", got)
	}
}
