package fulfilment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pay/internal/events"
	"github.com/noah-isme/toko-pay/internal/resilience"
)

// Task types handled by the worker.
const (
	TypeOrderPaid     = "order:paid"
	TypePaymentFailed = "payment:failed"
)

// Queue is the asynq queue fulfilment tasks are placed on.
const Queue = "payments"

// Enqueuer is the part of *asynq.Client the notifier uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier turns settled payment events into background tasks.
//
// The paid transition happens once, so a task that never reaches the queue
// is not enqueued again by a later confirmation. Enqueue is retried
// EnqueueAttempts times with backoff before the error is returned.
type Notifier struct {
	Client          Enqueuer
	MaxRetry        int
	Retention       time.Duration
	EnqueueAttempts int
	EnqueueBackoff  time.Duration
}

var taskTypes = map[string]string{
	events.TopicOrderPaid:     TypeOrderPaid,
	events.TopicPaymentFailed: TypePaymentFailed,
}

// Notify implements events.Notifier. Other topics are ignored.
func (n Notifier) Notify(ctx context.Context, ev events.Event) error {
	typ, ok := taskTypes[ev.Topic]
	if !ok || n.Client == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("fulfilment: encode event: %w", err)
	}
	maxRetry := n.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 10
	}
	opts := []asynq.Option{
		asynq.Queue(Queue),
		asynq.MaxRetry(maxRetry),
		// one task per order and topic; a repeated paid event is a no-op
		asynq.TaskID(typ + ":" + ev.AggregateID),
	}
	if n.Retention > 0 {
		opts = append(opts, asynq.Retention(n.Retention))
	}
	attempts := n.EnqueueAttempts
	if attempts <= 0 {
		attempts = 3
	}
	base := n.EnqueueBackoff
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	task := asynq.NewTask(typ, payload)
	attempt := 1
	for ; ; attempt++ {
		_, err = n.Client.EnqueueContext(ctx, task, opts...)
		if err == nil || errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		if attempt >= attempts {
			break
		}
		if sleepErr := resilience.Sleep(ctx, resilience.Backoff(base, attempt, 0.2)); sleepErr != nil {
			break
		}
	}
	return fmt.Errorf("fulfilment: enqueue %s after %d attempts: %w", typ, attempt, err)
}

// Hook is the downstream action run for a settled order (ship, email, grant access).
type Hook func(ctx context.Context, ev events.Event) error

// Handler processes fulfilment tasks.
type Handler struct {
	Logger zerolog.Logger
	OnPaid Hook
	OnFail Hook
}

// Register wires the handler into an asynq mux.
func (h Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeOrderPaid, h.ProcessTask)
	mux.HandleFunc(TypePaymentFailed, h.ProcessTask)
}

// ProcessTask implements asynq.Handler.
func (h Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var ev events.Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		// malformed payloads will never succeed
		return fmt.Errorf("fulfilment: decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	logger := h.Logger.With().Str("task", t.Type()).Str("order_id", ev.AggregateID).Str("event_id", ev.ID.String()).Logger()

	var hook Hook
	switch t.Type() {
	case TypeOrderPaid:
		hook = h.OnPaid
	case TypePaymentFailed:
		hook = h.OnFail
	default:
		return fmt.Errorf("fulfilment: unexpected task %q: %w", t.Type(), asynq.SkipRetry)
	}
	if hook != nil {
		if err := hook(logger.WithContext(ctx), ev); err != nil {
			logger.Warn().Err(err).Msg("fulfilment hook failed")
			return err
		}
	}
	logger.Info().RawJSON("payload", ev.Payload).Msg("fulfilment task processed")
	return nil
}
