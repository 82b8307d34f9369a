package client

import (
	"context"
	"time"
)

// Backoff computes reconnect delays: exponential growth from Initial
// by Factor, capped at Max, giving up after MaxAttempts.
type Backoff struct {
	Initial     time.Duration
	Factor      float64
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff reconnects after 2s, doubling up to 30s, for at most
// ten attempts. A successful connection resets the sequence.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:     2 * time.Second,
		Factor:      2,
		Max:         30 * time.Second,
		MaxAttempts: 10,
	}
}

// Delay returns the wait before attempt n (1-based), or false when the
// attempt budget is exhausted.
func (b Backoff) Delay(attempt int) (time.Duration, bool) {
	if b.MaxAttempts > 0 && attempt > b.MaxAttempts {
		return 0, false
	}

	d := b.Initial
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * b.Factor)
		if d >= b.Max {
			return b.Max, true
		}
	}
	if d > b.Max {
		d = b.Max
	}
	return d, true
}

// Wait sleeps for the attempt's delay. It returns false when the
// budget is exhausted or the context is cancelled.
func (b Backoff) Wait(ctx context.Context, attempt int) bool {
	d, ok := b.Delay(attempt)
	if !ok {
		return false
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
