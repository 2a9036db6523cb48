package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pay/internal/order"
	"github.com/noah-isme/toko-pay/internal/payment"
)

func postJSON(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestCreateOrderHandler(t *testing.T) {
	f := newFixture()
	h := &payment.Handler{Svc: f.svc, KeyID: "rzp_test_key"}

	rr := postJSON(h.CreateOrder, "/api/create-order", `{"amount":49900,"currency":"INR"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Order struct {
			ID       string `json:"id"`
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			Status   string `json:"status"`
		} `json:"order"`
		KeyID string `json:"keyId"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "order_abc", resp.Order.ID)
	require.EqualValues(t, 49900, resp.Order.Amount)
	require.Equal(t, "created", resp.Order.Status)
	require.Equal(t, "rzp_test_key", resp.KeyID)
}

func TestCreateOrderHandlerRejectsBadAmounts(t *testing.T) {
	for _, body := range []string{`{}`, `{"amount":0}`, `{"amount":-5}`, `{"amount":499.5}`, `{"amount":"abc"}`, `not json`} {
		f := newFixture()
		h := &payment.Handler{Svc: f.svc}
		rr := postJSON(h.CreateOrder, "/api/create-order", body)
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
		require.Contains(t, rr.Body.String(), "VALIDATION_ERROR", body)
		require.Zero(t, f.gateway.callCount(), body)
	}
}

func TestCreateOrderHandlerGatewayDown(t *testing.T) {
	f := newFixture()
	f.gateway.err = &payment.RejectedError{StatusCode: 500}
	h := &payment.Handler{Svc: f.svc}
	rr := postJSON(h.CreateOrder, "/api/create-order", `{"amount":100}`)
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Contains(t, rr.Body.String(), "GATEWAY_ERROR")
}

func TestVerifyPaymentMissingFields(t *testing.T) {
	bodies := []string{
		`{"razorpay_payment_id":"pay_xyz","razorpay_signature":"sig"}`,
		`{"razorpay_order_id":"order_abc","razorpay_signature":"sig"}`,
		`{"razorpay_order_id":"order_abc","razorpay_payment_id":"pay_xyz"}`,
		`{"razorpay_order_id":" ","razorpay_payment_id":"pay_xyz","razorpay_signature":"sig"}`,
	}
	for _, body := range bodies {
		f := newFixture()
		require.NoError(t, f.store.Create(context.Background(), order.Order{ID: "order_abc"}))
		h := &payment.Handler{Svc: f.svc}
		rr := postJSON(h.VerifyPayment, "/api/verify-payment", body)
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
		require.Contains(t, rr.Body.String(), "missing required fields")

		o, err := f.store.Get(context.Background(), "order_abc")
		require.NoError(t, err)
		require.Equal(t, order.StatusCreated, o.Status, "no mutation on invalid request")
	}
}

func TestEndToEndCheckoutVerification(t *testing.T) {
	f := newFixture()
	h := &payment.Handler{Svc: f.svc}

	rr := postJSON(h.CreateOrder, "/api/create-order", `{"amount":49900,"currency":"INR"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"id":"order_abc"`)

	sig := payment.SignCheckout("order_abc", "pay_xyz", testKeySecret)

	tampered := []byte(sig)
	tampered[0] ^= 0x01
	rr = postJSON(h.VerifyPayment, "/api/verify-payment",
		`{"razorpay_order_id":"order_abc","razorpay_payment_id":"pay_xyz","razorpay_signature":"`+string(tampered)+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"success":true,"verified":false}`, rr.Body.String())

	rr = postJSON(h.VerifyPayment, "/api/verify-payment",
		`{"razorpay_order_id":"order_abc","razorpay_payment_id":"pay_xyz","razorpay_signature":"`+sig+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"success":true,"verified":true}`, rr.Body.String())

	o, err := f.store.Get(context.Background(), "order_abc")
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, o.Status)
	require.Equal(t, "pay_xyz", o.PaymentID)
}

func TestVerifyPaymentStoreFailureIsOpaque(t *testing.T) {
	f := newFixture()
	f.svc.Store = failingStore{Store: f.store, failTransition: true}
	h := &payment.Handler{Svc: f.svc}
	sig := payment.SignCheckout("order_abc", "pay_xyz", testKeySecret)
	rr := postJSON(h.VerifyPayment, "/api/verify-payment",
		`{"razorpay_order_id":"order_abc","razorpay_payment_id":"pay_xyz","razorpay_signature":"`+sig+`"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "store down")
	require.Contains(t, rr.Body.String(), "internal error")
}
