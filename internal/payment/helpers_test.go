package payment_test

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pay/internal/events"
	"github.com/noah-isme/toko-pay/internal/order"
	"github.com/noah-isme/toko-pay/internal/payment"
)

const (
	testKeySecret     = "test_key_secret"
	testWebhookSecret = "test_webhook_secret"
)

type stubGateway struct {
	mu    sync.Mutex
	id    string
	err   error
	calls []payment.OrderRequest
}

func (g *stubGateway) Name() string { return "stub" }

func (g *stubGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (payment.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return payment.GatewayOrder{}, g.err
	}
	return payment.GatewayOrder{ID: g.id, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

func (g *stubGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type recordingNotifier struct {
	mu     sync.Mutex
	topics []string
}

func (n *recordingNotifier) Notify(_ context.Context, ev events.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.topics = append(n.topics, ev.Topic)
	return nil
}

func (n *recordingNotifier) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.topics...)
}

// failingStore wraps a store and fails selected operations.
type failingStore struct {
	order.Store
	failCreate     bool
	failTransition bool
}

var errStoreDown = errors.New("store down")

func (s failingStore) Create(ctx context.Context, o order.Order) error {
	if s.failCreate {
		return errStoreDown
	}
	return s.Store.Create(ctx, o)
}

func (s failingStore) Transition(ctx context.Context, id string, target order.Status, paymentID string) (order.Change, error) {
	if s.failTransition {
		return order.Change{}, errStoreDown
	}
	return s.Store.Transition(ctx, id, target, paymentID)
}

type fixture struct {
	svc      *payment.Service
	store    *order.MemoryStore
	gateway  *stubGateway
	notifier *recordingNotifier
}

func newFixture() fixture {
	store := order.NewMemoryStore()
	gw := &stubGateway{id: "order_abc"}
	notifier := &recordingNotifier{}
	return fixture{
		svc: &payment.Service{
			Store:           store,
			Gateway:         gw,
			Events:          events.NewBus(notifier),
			KeySecret:       testKeySecret,
			DefaultCurrency: "INR",
			Logger:          zerolog.Nop(),
		},
		store:    store,
		gateway:  gw,
		notifier: notifier,
	}
}
