package fulfilment_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pay/internal/events"
	"github.com/noah-isme/toko-pay/internal/fulfilment"
)

type fakeClient struct {
	tasks []*asynq.Task
	err   error
	// failures is how many calls fail with err before the client recovers.
	failures int
	calls    int
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.calls++
	if f.err != nil && (f.failures == 0 || f.calls <= f.failures) {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: fulfilment.Queue}, nil
}

func TestNotifierEnqueuesSettledEvents(t *testing.T) {
	client := &fakeClient{}
	bus := events.NewBus(fulfilment.Notifier{Client: client})
	ctx := context.Background()

	_, err := bus.Emit(ctx, events.TopicOrderCreated, "order_abc", nil)
	require.NoError(t, err)
	_, err = bus.Emit(ctx, events.TopicOrderPaid, "order_abc", map[string]string{"paymentId": "pay_xyz"})
	require.NoError(t, err)
	_, err = bus.Emit(ctx, events.TopicPaymentFailed, "order_def", nil)
	require.NoError(t, err)

	require.Len(t, client.tasks, 2)
	require.Equal(t, fulfilment.TypeOrderPaid, client.tasks[0].Type())
	require.Equal(t, fulfilment.TypePaymentFailed, client.tasks[1].Type())

	var ev events.Event
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &ev))
	require.Equal(t, "order_abc", ev.AggregateID)
	require.JSONEq(t, `{"paymentId":"pay_xyz"}`, string(ev.Payload))
}

func TestNotifierTreatsDuplicateTaskAsDone(t *testing.T) {
	n := fulfilment.Notifier{Client: &fakeClient{err: asynq.ErrTaskIDConflict}}
	require.NoError(t, n.Notify(context.Background(), events.Event{Topic: events.TopicOrderPaid, AggregateID: "order_abc"}))

	n = fulfilment.Notifier{Client: &fakeClient{err: errors.New("redis down")}}
	require.Error(t, n.Notify(context.Background(), events.Event{Topic: events.TopicOrderPaid, AggregateID: "order_abc"}))
}

func TestNotifierRetriesTransientEnqueueFailure(t *testing.T) {
	ev := events.Event{Topic: events.TopicOrderPaid, AggregateID: "order_abc"}

	client := &fakeClient{err: errors.New("redis blip"), failures: 2}
	n := fulfilment.Notifier{Client: client, EnqueueAttempts: 3, EnqueueBackoff: time.Millisecond}
	require.NoError(t, n.Notify(context.Background(), ev))
	require.Equal(t, 3, client.calls)
	require.Len(t, client.tasks, 1)

	client = &fakeClient{err: errors.New("redis down")}
	n = fulfilment.Notifier{Client: client, EnqueueAttempts: 3, EnqueueBackoff: time.Millisecond}
	err := n.Notify(context.Background(), ev)
	require.ErrorContains(t, err, "after 3 attempts")
	require.Equal(t, 3, client.calls)
	require.Empty(t, client.tasks)
}

func TestNotifierStopsRetryingWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &fakeClient{err: errors.New("redis down")}
	n := fulfilment.Notifier{Client: client, EnqueueAttempts: 5, EnqueueBackoff: time.Second}
	require.Error(t, n.Notify(ctx, events.Event{Topic: events.TopicOrderPaid, AggregateID: "order_abc"}))
	require.Equal(t, 1, client.calls)
}

func TestHandlerProcessTask(t *testing.T) {
	var got []string
	h := fulfilment.Handler{
		Logger: zerolog.Nop(),
		OnPaid: func(_ context.Context, ev events.Event) error {
			got = append(got, ev.AggregateID)
			return nil
		},
	}
	payload, err := json.Marshal(events.Event{Topic: events.TopicOrderPaid, AggregateID: "order_abc", Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), asynq.NewTask(fulfilment.TypeOrderPaid, payload)))
	require.Equal(t, []string{"order_abc"}, got)

	// no hook configured for failures: logged and acknowledged
	require.NoError(t, h.ProcessTask(context.Background(), asynq.NewTask(fulfilment.TypePaymentFailed, payload)))
}

func TestHandlerSkipsRetryOnBadPayload(t *testing.T) {
	h := fulfilment.Handler{Logger: zerolog.Nop()}
	err := h.ProcessTask(context.Background(), asynq.NewTask(fulfilment.TypeOrderPaid, []byte("nope")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlerPropagatesHookError(t *testing.T) {
	h := fulfilment.Handler{Logger: zerolog.Nop(), OnPaid: func(context.Context, events.Event) error { return errors.New("warehouse down") }}
	payload, _ := json.Marshal(events.Event{Topic: events.TopicOrderPaid, AggregateID: "order_abc", Payload: json.RawMessage(`{}`)})
	err := h.ProcessTask(context.Background(), asynq.NewTask(fulfilment.TypeOrderPaid, payload))
	require.ErrorContains(t, err, "warehouse down")
}

func TestRegister(t *testing.T) {
	mux := asynq.NewServeMux()
	fulfilment.Handler{Logger: zerolog.Nop()}.Register(mux)
	payload, _ := json.Marshal(events.Event{Topic: events.TopicOrderPaid, AggregateID: "order_abc", Payload: json.RawMessage(`{}`)})
	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(fulfilment.TypeOrderPaid, payload)))
}
