package pipeline

import (
	"context"
	"math"
	"time"
)

// BackoffPolicy is an explicit bounded exponential backoff: the delay before
// attempt n+1 doubles from InitialInterval, capped at MaxInterval, for at
// most MaxAttempts attempts. Source clients and the publisher each carry
// their own policy; the two retry domains are never shared.
type BackoffPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Delay returns the wait before the next attempt. attempt is 1-based (the
// attempt that just failed).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.InitialInterval) * math.Pow(2, float64(attempt-1)))
	if p.MaxInterval > 0 && d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

// SleepWithContext waits for d or until ctx is done, whichever comes first.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
