package order

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusCreated              Status = "created"
	StatusAwaitingVerification Status = "awaiting_verification"
	StatusPaid                 Status = "paid"
	StatusFailed               Status = "failed"
)

var (
	// ErrNotFound is returned when an order does not exist in the store.
	ErrNotFound = errors.New("order: not found")
	// ErrConflict is returned when an order id is already taken or a
	// concurrent writer kept winning the update race.
	ErrConflict = errors.New("order: conflict")
	// ErrInvalidStatus is returned for transitions to an unknown status.
	ErrInvalidStatus = errors.New("order: invalid status")
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusAwaitingVerification, StatusPaid, StatusFailed:
		return true
	}
	return false
}

// Order is the payable intent created through the gateway.
type Order struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Receipt   string    `json:"receipt"`
	Status    Status    `json:"status"`
	PaymentID string    `json:"paymentId,omitempty"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists orders. Transition must be atomic per order id.
type Store interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	// Transition moves the order towards target following Next. Unknown orders
	// are recorded with the target status.
	Transition(ctx context.Context, id string, target Status, paymentID string) (Change, error)
	Ping(ctx context.Context) error
}

// Change is the outcome of a Transition. From is the status read inside the
// same atomic step and is empty when the order was unknown.
type Change struct {
	Order   Order
	From    Status
	Changed bool
}

// Next applies the transition policy. It returns the resulting status and
// whether it differs from current.
//
//	paid is terminal
//	any non-paid status may become paid
//	created and awaiting_verification may become failed
//	created may become awaiting_verification
//
// Everything else, including repeating the current status, is a no-op.
func Next(current, target Status) (Status, bool) {
	if current == target || current == StatusPaid {
		return current, false
	}
	switch target {
	case StatusPaid:
		return StatusPaid, true
	case StatusFailed:
		if current == StatusCreated || current == StatusAwaitingVerification {
			return StatusFailed, true
		}
	case StatusAwaitingVerification:
		if current == StatusCreated {
			return StatusAwaitingVerification, true
		}
	}
	return current, false
}

// apply computes the stored record after a transition request. mutated is
// true when the record needs writing, changed only when the status moved.
func apply(o Order, target Status, paymentID string, now time.Time) (out Order, changed, mutated bool) {
	out = o
	next, changed := Next(o.Status, target)
	if changed {
		out.Status = next
		mutated = true
	}
	if paymentID != "" && paymentID != o.PaymentID && o.Status != StatusPaid {
		out.PaymentID = paymentID
		out.Attempts++
		mutated = true
	}
	if mutated {
		out.UpdatedAt = now
	}
	return out, changed, mutated
}

// seed builds the record for a transition that targets an unknown order.
func seed(id string, target Status, paymentID string, now time.Time) Order {
	o := Order{
		ID:        id,
		Status:    target,
		PaymentID: paymentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if paymentID != "" {
		o.Attempts = 1
	}
	return o
}

func validate(id string, target Status) error {
	if id == "" {
		return errors.New("order: id is required")
	}
	if !target.Valid() {
		return ErrInvalidStatus
	}
	return nil
}
