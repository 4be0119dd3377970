// ABOUTME: Cancellable countdown token gating the start of a talk session
// ABOUTME: One explicit value owns the timer so every teardown path can reach it

package talk

import (
	"context"
	"sync"
	"time"
)

// Countdown is a single-use cancellable timer. Cancellation is reachable from
// Cancel, Stop, and teardown paths alike, and is safe to invoke multiple
// times and before Wait begins.
type Countdown struct {
	duration time.Duration
	cancel   chan struct{}
	once     sync.Once
}

func newCountdown(duration time.Duration) *Countdown {
	return &Countdown{
		duration: duration,
		cancel:   make(chan struct{}),
	}
}

// Cancel aborts the countdown. Safe to call multiple times, from any
// goroutine, and before or after Wait.
func (c *Countdown) Cancel() {
	c.once.Do(func() { close(c.cancel) })
}

// Wait blocks for the countdown duration. Returns true when the countdown
// ran to completion, false when it was cancelled. A context error aborts the
// wait and is returned.
func (c *Countdown) Wait(ctx context.Context) (bool, error) {
	timer := time.NewTimer(c.duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true, nil
	case <-c.cancel:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
