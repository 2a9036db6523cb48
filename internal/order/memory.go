package order

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps orders in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	orders  map[string]Order
	nowFunc func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]Order), nowFunc: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return ErrConflict
	}
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	if o.Status == "" {
		o.Status = StatusCreated
	}
	s.orders[o.ID] = o
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, target Status, paymentID string) (Change, error) {
	if err := validate(id, target); err != nil {
		return Change{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFunc().UTC()
	current, ok := s.orders[id]
	if !ok {
		o := seed(id, target, paymentID, now)
		s.orders[id] = o
		return Change{Order: o, Changed: true}, nil
	}
	next, changed, mutated := apply(current, target, paymentID, now)
	if mutated {
		s.orders[id] = next
	}
	return Change{Order: next, From: current.Status, Changed: changed}, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
