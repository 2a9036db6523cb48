package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pay/internal/order"
)

func newRedisStore(t *testing.T) *order.RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return order.NewRedisStore(client, time.Second, 0)
}

func TestRedisStore(t *testing.T) {
	storeContract(t, func(t *testing.T) order.Store { return newRedisStore(t) })
}

func TestRedisStoreConcurrentPaid(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	require.NoError(t, s.Create(ctx, order.Order{ID: "order_abc"}))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := transition(ctx, s, "order_abc", order.StatusPaid, "pay_xyz")
			require.NoError(t, err)
			if changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, changes)
}
