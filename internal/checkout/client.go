package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// CreatedOrder is the order returned by the payment API.
type CreatedOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// SignedResponse is the triple the hosted checkout hands back on success. It
// is forwarded to the server verbatim.
type SignedResponse struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// APIError is a non-2xx answer from the payment API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payment api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("payment api: %s (%d)", e.Message, e.StatusCode)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls the payment API endpoints.
type Client struct {
	http *resty.Client
}

// NewClient builds a client rooted at baseURL, e.g. http://localhost:5000/api.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// CreateOrder opens an order for amount in currency. The returned key id is
// the public gateway key the hosted checkout needs.
func (c *Client) CreateOrder(ctx context.Context, amount int64, currency string) (CreatedOrder, string, error) {
	var (
		out struct {
			Order CreatedOrder `json:"order"`
			KeyID string       `json:"keyId"`
		}
		apiErr errorEnvelope
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"amount": amount, "currency": currency}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/create-order")
	if err != nil {
		return CreatedOrder{}, "", fmt.Errorf("create order: %w", err)
	}
	if resp.IsError() {
		return CreatedOrder{}, "", &APIError{StatusCode: resp.StatusCode(), Code: apiErr.Error.Code, Message: apiErr.Error.Message}
	}
	if out.Order.ID == "" {
		return CreatedOrder{}, "", errors.New("create order: response missing order id")
	}
	return out.Order, out.KeyID, nil
}

// VerifyPayment forwards the signed triple and returns the server's decision.
func (c *Client) VerifyPayment(ctx context.Context, signed SignedResponse) (bool, error) {
	var (
		out struct {
			Success  bool `json:"success"`
			Verified bool `json:"verified"`
		}
		apiErr errorEnvelope
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(signed).
		SetResult(&out).
		SetError(&apiErr).
		Post("/verify-payment")
	if err != nil {
		return false, fmt.Errorf("verify payment: %w", err)
	}
	if resp.IsError() {
		return false, &APIError{StatusCode: resp.StatusCode(), Code: apiErr.Error.Code, Message: apiErr.Error.Message}
	}
	return out.Success && out.Verified, nil
}
