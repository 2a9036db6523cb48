package payment

import (
	"context"
	"errors"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

// orderCreator is the slice of the SDK's order resource the driver needs.
type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpaySDK creates orders through the official razorpay-go client.
type RazorpaySDK struct {
	orders orderCreator
}

// NewRazorpaySDK builds the SDK driver.
func NewRazorpaySDK(keyID, keySecret string) *RazorpaySDK {
	client := razorpay.NewClient(keyID, keySecret)
	return &RazorpaySDK{orders: client.Order}
}

// Name implements Gateway.
func (*RazorpaySDK) Name() string { return "razorpay-sdk" }

// CreateOrder implements Gateway. The SDK call is blocking and ignores
// contexts, so it runs in its own goroutine and ctx bounds the wait.
func (g *RazorpaySDK) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if g == nil || g.orders == nil {
		return GatewayOrder{}, errors.New("razorpay sdk: client not configured")
	}
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
	}
	if req.Receipt != "" {
		data["receipt"] = req.Receipt
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	type result struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := g.orders.Create(data, nil)
		done <- result{body: body, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return GatewayOrder{}, fmt.Errorf("razorpay sdk: create order: %w", ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay sdk: create order: %w", res.err)
	}
	return orderFromMap(res.body)
}

func orderFromMap(body map[string]interface{}) (GatewayOrder, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return GatewayOrder{}, errors.New("razorpay sdk: response missing order id")
	}
	order := GatewayOrder{ID: id}
	order.Currency, _ = body["currency"].(string)
	order.Receipt, _ = body["receipt"].(string)
	order.Status, _ = body["status"].(string)
	switch v := body["amount"].(type) {
	case float64:
		order.Amount = int64(v)
	case int64:
		order.Amount = v
	case int:
		order.Amount = int64(v)
	}
	return order, nil
}
