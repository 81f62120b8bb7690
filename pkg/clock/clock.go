// Package clock abstracts wall-clock reads and blocking waits so that retry
// backoff and rate-limit cooldowns can be simulated in tests.
package clock

import (
	"context"
	"time"
)

// Clock is the time source used by the executor, the throttle and the store.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for d or until ctx is done, whichever comes first.
	// Non-positive durations return immediately.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall-clock implementation.
type Real struct{}

// New returns the wall clock.
func New() Clock {
	return Real{}
}

// Now implements Clock.
func (Real) Now() time.Time {
	return time.Now()
}

// Sleep implements Clock.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
