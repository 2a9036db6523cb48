package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

// ErrNotAcquired is returned when the lock could not be taken within MaxWait.
var ErrNotAcquired = errors.New("lock: not acquired")

// compare-and-delete so an expired holder never frees a successor's lock
var unlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker serialises work on a key across processes with SET NX PX.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	// MaxWait bounds Acquire. Zero waits until ctx is done.
	MaxWait time.Duration
}

// Key namespaces a lock key, e.g. Key("order", id) = "lock:order:<id>".
func Key(parts ...string) string {
	return "lock:" + strings.Join(parts, ":")
}

// Release frees a lock taken by Acquire.
type Release func(context.Context) error

// Acquire polls until key is taken or MaxWait/ctx expires. The lock lapses
// after ttl even if Release is never called.
func (l Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	if l.R == nil {
		return nil, errors.New("lock: redis client not configured")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	poll := l.RetryBackoff
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	waitCtx := ctx
	if l.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.MaxWait)
		defer cancel()
	}

	token := xid.New().String()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func(ctx context.Context) error {
				return unlock.Run(ctx, l.R, []string{key}, token).Err()
			}, nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrNotAcquired
		case <-ticker.C:
		}
	}
}

// WithLock runs fn while holding key. The lock is released even when fn
// fails or ctx is cancelled.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	release, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() { _ = release(context.WithoutCancel(ctx)) }()
	return fn(ctx)
}
