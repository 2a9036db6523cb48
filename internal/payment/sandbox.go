package payment

import (
	"context"

	"github.com/rs/xid"
)

// Sandbox issues local order ids without calling any gateway.
type Sandbox struct{}

// Name implements Gateway.
func (Sandbox) Name() string { return "sandbox" }

// CreateOrder implements Gateway.
func (Sandbox) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if err := ctx.Err(); err != nil {
		return GatewayOrder{}, err
	}
	return GatewayOrder{
		ID:       "order_" + xid.New().String(),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}
