package invoker

import (
	"context"
	"time"
)

// Backoff returns min(initial*2^attempt, max) scaled by 1 + 0.1*jitter,
// where jitter lies in [-1, 1].
func Backoff(attempt int, initial, max time.Duration, jitter float64) time.Duration {
	d := initial
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d + time.Duration(float64(d)*0.1*jitter)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
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
