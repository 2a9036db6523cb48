package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-pay/internal/lock"
)

// RedisStore keeps orders as JSON documents. Transitions are serialised per
// order id through a redis lock.
type RedisStore struct {
	R       *redis.Client
	Locker  lock.Locker
	LockTTL time.Duration
	// TTL expires order documents; zero keeps them forever.
	TTL     time.Duration
	Prefix  string
	nowFunc func() time.Time
}

// NewRedisStore wires a store on the given client.
func NewRedisStore(client *redis.Client, lockTTL, ttl time.Duration) *RedisStore {
	return &RedisStore{
		R:       client,
		Locker:  lock.Locker{R: client, RetryBackoff: 20 * time.Millisecond, MaxWait: 2 * lockTTL},
		LockTTL: lockTTL,
		TTL:     ttl,
		Prefix:  "order:",
		nowFunc: time.Now,
	}
}

func (s *RedisStore) key(id string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "order:"
	}
	return prefix + id
}

func (s *RedisStore) now() time.Time {
	if s.nowFunc == nil {
		return time.Now().UTC()
	}
	return s.nowFunc().UTC()
}

func (s *RedisStore) Create(ctx context.Context, o Order) error {
	now := s.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	if o.Status == "" {
		o.Status = StatusCreated
	}
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("order: encode: %w", err)
	}
	ok, err := s.R.SetNX(ctx, s.key(o.ID), data, s.TTL).Result()
	if err != nil {
		return fmt.Errorf("order: create: %w", err)
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Order, error) {
	data, err := s.R.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("order: get: %w", err)
	}
	var o Order
	if err := json.Unmarshal(data, &o); err != nil {
		return Order{}, fmt.Errorf("order: decode: %w", err)
	}
	return o, nil
}

func (s *RedisStore) Transition(ctx context.Context, id string, target Status, paymentID string) (Change, error) {
	if err := validate(id, target); err != nil {
		return Change{}, err
	}
	var result Change
	err := s.Locker.WithLock(ctx, lock.Key("order", id), s.LockTTL, func(ctx context.Context) error {
		current, err := s.Get(ctx, id)
		now := s.now()
		switch {
		case errors.Is(err, ErrNotFound):
			result = Change{Order: seed(id, target, paymentID, now), Changed: true}
			return s.put(ctx, result.Order)
		case err != nil:
			return err
		}
		next, moved, mutated := apply(current, target, paymentID, now)
		result = Change{Order: next, From: current.Status, Changed: moved}
		if !mutated {
			return nil
		}
		return s.put(ctx, next)
	})
	if err != nil {
		return Change{}, err
	}
	return result, nil
}

func (s *RedisStore) put(ctx context.Context, o Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("order: encode: %w", err)
	}
	if err := s.R.Set(ctx, s.key(o.ID), data, s.TTL).Err(); err != nil {
		return fmt.Errorf("order: save: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.R.Ping(ctx).Err()
}
