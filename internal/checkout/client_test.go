package checkout_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pay/internal/checkout"
	"github.com/noah-isme/toko-pay/internal/order"
	"github.com/noah-isme/toko-pay/internal/payment"
)

const keySecret = "sandbox_key_secret"

func newPaymentAPI(t *testing.T) (*httptest.Server, *order.MemoryStore) {
	t.Helper()
	store := order.NewMemoryStore()
	svc := &payment.Service{
		Store:           store,
		Gateway:         payment.Sandbox{},
		KeySecret:       keySecret,
		DefaultCurrency: "INR",
		Logger:          zerolog.Nop(),
	}
	h := &payment.Handler{Svc: svc, KeyID: "rzp_test_sandbox"}
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/create-order", h.CreateOrder)
		r.Post("/verify-payment", h.VerifyPayment)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func TestInitiatorAgainstServer(t *testing.T) {
	srv, store := newPaymentAPI(t)
	client := checkout.NewClient(srv.URL+"/api", 0)

	cases := []struct {
		mode     checkout.Mode
		verified bool
		status   order.Status
		outcome  checkout.OutcomeKind
	}{
		{checkout.ModeSucceed, true, order.StatusPaid, checkout.OutcomeCompleted},
		{checkout.ModeTamper, false, order.StatusCreated, checkout.OutcomeCompleted},
		{checkout.ModeDismiss, false, order.StatusCreated, checkout.OutcomeDismissed},
		{checkout.ModeFail, false, order.StatusCreated, checkout.OutcomeFailed},
	}
	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			in := checkout.Initiator{API: client, Checkout: checkout.Simulator{KeySecret: keySecret, Mode: tc.mode}}
			res, err := in.Pay(context.Background(), 49900, "INR")
			require.NoError(t, err)
			require.Equal(t, tc.verified, res.Verified)
			require.Equal(t, tc.outcome, res.Outcome)

			o, err := store.Get(context.Background(), res.OrderID)
			require.NoError(t, err)
			require.Equal(t, tc.status, o.Status)
		})
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	srv, _ := newPaymentAPI(t)
	client := checkout.NewClient(srv.URL+"/api", 0)

	_, _, err := client.CreateOrder(context.Background(), 0, "INR")
	var apiErr *checkout.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "VALIDATION_ERROR", apiErr.Code)

	_, err = client.VerifyPayment(context.Background(), checkout.SignedResponse{OrderID: "order_abc"})
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "missing required fields", apiErr.Message)
}

func TestClientCreateOrderReturnsKey(t *testing.T) {
	srv, _ := newPaymentAPI(t)
	client := checkout.NewClient(srv.URL+"/api", 0)
	o, key, err := client.CreateOrder(context.Background(), 49900, "INR")
	require.NoError(t, err)
	require.Equal(t, "rzp_test_sandbox", key)
	require.EqualValues(t, 49900, o.Amount)
	require.Equal(t, "created", o.Status)
}

func TestSimulatorRequiresOrder(t *testing.T) {
	_, err := checkout.Simulator{}.Open(context.Background(), checkout.Session{})
	require.Error(t, err)
}
