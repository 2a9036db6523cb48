package ratelimit

import (
	"context"
	"sync"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// MemoryLimiter is a fixed-window limiter kept in process memory, used when
// no Redis is configured. Limits are per process.
type MemoryLimiter struct {
	store limiter.Store
	mu    sync.Mutex
	byCfg map[limiter.Rate]*limiter.Limiter
}

// NewMemoryLimiter creates an in-memory limiter.
func NewMemoryLimiter(prefix string) *MemoryLimiter {
	return &MemoryLimiter{
		store: memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix, CleanUpInterval: time.Minute}),
		byCfg: make(map[limiter.Rate]*limiter.Limiter),
	}
}

func (m *MemoryLimiter) limiterFor(window time.Duration, max int) *limiter.Limiter {
	rate := limiter.Rate{Period: window, Limit: int64(max)}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byCfg[rate]
	if !ok {
		l = limiter.New(m.store, rate)
		m.byCfg[rate] = l
	}
	return l
}

// Allow implements Allower.
func (m *MemoryLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	lctx, err := m.limiterFor(window, max).Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !lctx.Reached, int(lctx.Remaining), time.Unix(lctx.Reset, 0), nil
}
