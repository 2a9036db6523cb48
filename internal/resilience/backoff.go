package resilience

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff returns base*2^(attempt-1), spread by ±jitter (a fraction of the
// delay). Attempts start at 1.
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		attempt = 16
	}
	d := base << (attempt - 1)
	if jitter <= 0 {
		return d
	}
	if jitter > 1 {
		jitter = 1
	}
	spread := float64(d) * jitter
	return d + time.Duration((rand.Float64()*2-1)*spread)
}

// Sleep waits d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
