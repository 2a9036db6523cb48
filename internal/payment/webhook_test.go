package payment_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pay/internal/common"
	"github.com/noah-isme/toko-pay/internal/events"
	"github.com/noah-isme/toko-pay/internal/order"
	"github.com/noah-isme/toko-pay/internal/payment"
)

func eventBody(event, orderID, paymentID string) []byte {
	return []byte(`{"entity":"event","event":"` + event + `","payload":{"payment":{"entity":{"id":"` + paymentID + `","order_id":"` + orderID + `","status":"captured"}}}}`)
}

func deliver(t *testing.T, h payment.Webhook, body []byte, sig, eventID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set(payment.SignatureHeader, sig)
	}
	if eventID != "" {
		req.Header.Set(payment.EventIDHeader, eventID)
	}
	rr := httptest.NewRecorder()
	common.CaptureRawBody(1<<20)(http.HandlerFunc(h.Handle)).ServeHTTP(rr, req)
	return rr
}

func newReplayGuard(t *testing.T) (payment.RedisReplayGuard, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return payment.RedisReplayGuard{R: client}, mr
}

func TestEventTarget(t *testing.T) {
	cases := map[string]order.Status{
		"payment.authorized": order.StatusAwaitingVerification,
		"payment.captured":   order.StatusPaid,
		"order.paid":         order.StatusPaid,
		"payment.failed":     order.StatusFailed,
	}
	for event, want := range cases {
		got, ok := payment.EventTarget(event)
		require.True(t, ok, event)
		require.Equal(t, want, got, event)
	}
	_, ok := payment.EventTarget("refund.created")
	require.False(t, ok)
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	f := newFixture()
	h := payment.Webhook{Svc: f.svc, Secret: testWebhookSecret}
	body := eventBody("payment.captured", "order_abc", "pay_xyz")

	rr := deliver(t, h, body, payment.SignWebhook(body, "wrong"), "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = deliver(t, h, body, "", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = deliver(t, h, body, payment.SignWebhook(body, testKeySecret), "")
	require.Equal(t, http.StatusBadRequest, rr.Code, "the API key secret must not validate webhooks")

	_, err := f.store.Get(context.Background(), "order_abc")
	require.ErrorIs(t, err, order.ErrNotFound, "payload untouched")
}

func TestWebhookSignatureCheckedBeforeParsing(t *testing.T) {
	f := newFixture()
	h := payment.Webhook{Svc: f.svc, Secret: testWebhookSecret}
	rr := deliver(t, h, []byte(`not json`), "deadbeef", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "INVALID_SIGNATURE")

	body := []byte(`not json`)
	rr = deliver(t, h, body, payment.SignWebhook(body, testWebhookSecret), "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "INVALID_PAYLOAD")
}

func TestWebhookMarksOrderPaidWithoutVerifyCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.store.Create(ctx, order.Order{ID: "order_abc", Amount: 49900, Currency: "INR"}))
	h := payment.Webhook{Svc: f.svc, Secret: testWebhookSecret}

	body := eventBody("payment.captured", "order_abc", "pay_xyz")
	rr := deliver(t, h, body, payment.SignWebhook(body, testWebhookSecret), "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"received":true}`, rr.Body.String())

	o, err := f.store.Get(ctx, "order_abc")
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, o.Status)
	require.Equal(t, []string{events.TopicOrderPaid}, f.notifier.seen())
}

func TestWebhookAndCheckoutCommute(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.store.Create(ctx, order.Order{ID: "order_abc"}))
	h := payment.Webhook{Svc: f.svc, Secret: testWebhookSecret}

	body := eventBody("order.paid", "order_abc", "pay_xyz")
	rr := deliver(t, h, body, payment.SignWebhook(body, testWebhookSecret), "")
	require.Equal(t, http.StatusOK, rr.Code)

	verified, err := f.svc.ConfirmCheckout(ctx, "order_abc", "pay_xyz", payment.SignCheckout("order_abc", "pay_xyz", testKeySecret))
	require.NoError(t, err)
	require.True(t, verified)

	o, _ := f.store.Get(ctx, "order_abc")
	require.Equal(t, order.StatusPaid, o.Status)
	require.Equal(t, []string{events.TopicOrderPaid}, f.notifier.seen())
}

func TestWebhookLateFailureDoesNotDowngrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	h := payment.Webhook{Svc: f.svc, Secret: testWebhookSecret}

	captured := eventBody("payment.captured", "order_abc", "pay_xyz")
	require.Equal(t, http.StatusOK, deliver(t, h, captured, payment.SignWebhook(captured, testWebhookSecret), "").Code)
	failed := eventBody("payment.failed", "order_abc", "pay_other")
	require.Equal(t, http.StatusOK, deliver(t, h, failed, payment.SignWebhook(failed, testWebhookSecret), "").Code)
	authorized := eventBody("payment.authorized", "order_abc", "pay_xyz")
	require.Equal(t, http.StatusOK, deliver(t, h, authorized, payment.SignWebhook(authorized, testWebhookSecret), "").Code)

	o, err := f.store.Get(ctx, "order_abc")
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, o.Status)
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.store.Create(ctx, order.Order{ID: "order_abc"}))
	h := payment.Webhook{Svc: f.svc, Secret: testWebhookSecret}

	body := eventBody("refund.processed", "order_abc", "pay_xyz")
	rr := deliver(t, h, body, payment.SignWebhook(body, testWebhookSecret), "")
	require.Equal(t, http.StatusOK, rr.Code)
	o, _ := f.store.Get(ctx, "order_abc")
	require.Equal(t, order.StatusCreated, o.Status)
}

func TestWebhookReplayIsAcknowledged(t *testing.T) {
	f := newFixture()
	guard, _ := newReplayGuard(t)
	h := payment.Webhook{Svc: f.svc, Secret: testWebhookSecret, Replay: guard, ReplayTTL: time.Hour}

	body := eventBody("payment.authorized", "order_abc", "pay_xyz")
	sig := payment.SignWebhook(body, testWebhookSecret)
	rr := deliver(t, h, body, sig, "evt_1")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"received":true}`, rr.Body.String())

	rr = deliver(t, h, body, sig, "evt_1")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"received":true,"duplicate":true}`, rr.Body.String())
	require.Equal(t, []string{events.TopicPaymentAuthorized}, f.notifier.seen())
}

func TestWebhookUnparseableBodyKeepsNoReplayKey(t *testing.T) {
	f := newFixture()
	guard, mr := newReplayGuard(t)
	h := payment.Webhook{Svc: f.svc, Secret: testWebhookSecret, Replay: guard, ReplayTTL: time.Hour}

	body := []byte(`{"payload":{}}`)
	sig := payment.SignWebhook(body, testWebhookSecret)
	for range 2 {
		rr := deliver(t, h, body, sig, "evt_1")
		require.Equal(t, http.StatusBadRequest, rr.Code)
		require.Contains(t, rr.Body.String(), "INVALID_PAYLOAD")
	}
	require.Empty(t, mr.Keys())
}

func TestWebhookStoreFailureReleasesReplayKey(t *testing.T) {
	f := newFixture()
	guard, mr := newReplayGuard(t)
	f.svc.Store = failingStore{Store: f.store, failTransition: true}
	h := payment.Webhook{Svc: f.svc, Secret: testWebhookSecret, Replay: guard, ReplayTTL: time.Hour}

	body := eventBody("payment.captured", "order_abc", "pay_xyz")
	sig := payment.SignWebhook(body, testWebhookSecret)
	rr := deliver(t, h, body, sig, "")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Empty(t, mr.Keys(), "retry must be processed")

	f.svc.Store = f.store
	rr = deliver(t, h, body, sig, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"received":true}`, rr.Body.String())
}
