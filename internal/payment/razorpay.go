package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/noah-isme/toko-pay/internal/resilience"
)

const defaultRazorpayBaseURL = "https://api.razorpay.com"

// maxGatewayResponse caps how much of a gateway response is read.
const maxGatewayResponse = 1 << 20

// Razorpay calls the Razorpay Orders REST API over a resilient HTTP client.
type Razorpay struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	HTTP      *resilience.HTTPClient
}

// Name implements Gateway.
func (Razorpay) Name() string { return "razorpay" }

type razorpayOrderBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder implements Gateway.
func (g Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if g.HTTP == nil {
		return GatewayOrder{}, errors.New("razorpay: http client not configured")
	}
	payload, err := json.Marshal(razorpayOrderBody{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: encode order: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint("/v1/orders"), bytes.NewReader(payload))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: build request: %w", err)
	}
	httpReq.SetBasicAuth(g.KeyID, g.KeySecret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := g.HTTP.Do(ctx, httpReq)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: create order: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponse))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rejected := &RejectedError{StatusCode: resp.StatusCode}
		var eb razorpayErrorBody
		if json.Unmarshal(body, &eb) == nil {
			rejected.Code = eb.Error.Code
			rejected.Description = eb.Error.Description
		}
		return GatewayOrder{}, rejected
	}
	var order GatewayOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: decode order: %w", err)
	}
	if order.ID == "" {
		return GatewayOrder{}, errors.New("razorpay: response missing order id")
	}
	return order, nil
}

func (g Razorpay) endpoint(path string) string {
	base := strings.TrimRight(strings.TrimSpace(g.BaseURL), "/")
	if base == "" {
		base = defaultRazorpayBaseURL
	}
	return base + path
}
