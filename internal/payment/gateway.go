package payment

import (
	"context"
	"errors"
)

// OrderRequest is what the service asks the gateway to create.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// GatewayOrder is the gateway's view of a created order.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway abstracts the remote payment provider.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error)
}

// ErrGatewayRejected marks a 4xx answer from the gateway: the request itself
// was refused, retrying it unchanged will not help.
var ErrGatewayRejected = errors.New("payment: gateway rejected request")

// RejectedError carries the gateway's explanation for a refused request.
type RejectedError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *RejectedError) Error() string {
	if e.Description != "" {
		return "payment: gateway rejected request: " + e.Description
	}
	return ErrGatewayRejected.Error()
}

// Is matches ErrGatewayRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrGatewayRejected
}
