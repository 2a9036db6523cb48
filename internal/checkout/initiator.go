package checkout

import (
	"context"
	"errors"
	"fmt"
)

// Status messages reported while paying.
const (
	StatusCreatingOrder   = "Creating order..."
	StatusOpening         = "Opening checkout..."
	StatusVerifying       = "Verifying payment..."
	StatusVerified        = "Payment verified"
	StatusNotVerified     = "Payment could not be verified"
	StatusCheckoutClosed  = "Checkout closed"
	statusPaymentFailedFx = "Payment failed: %s"
)

// OutcomeKind is the terminal state of a hosted checkout.
type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota + 1
	OutcomeDismissed
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeDismissed:
		return "dismissed"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the single result of a hosted checkout session.
type Outcome struct {
	Kind     OutcomeKind
	Response SignedResponse
	// Reason describes a failure reported by the gateway.
	Reason string
}

// Session is what the hosted checkout is opened with.
type Session struct {
	KeyID    string
	OrderID  string
	Amount   int64
	Currency string
}

// HostedCheckout opens the gateway's checkout UI. The returned channel yields
// exactly one Outcome.
type HostedCheckout interface {
	Open(ctx context.Context, s Session) (<-chan Outcome, error)
}

// API is the server surface the initiator calls.
type API interface {
	CreateOrder(ctx context.Context, amount int64, currency string) (CreatedOrder, string, error)
	VerifyPayment(ctx context.Context, signed SignedResponse) (bool, error)
}

// Result is the local view of a payment attempt.
type Result struct {
	OrderID   string
	PaymentID string
	Outcome   OutcomeKind
	Verified  bool
	Status    string
}

// Initiator runs the buyer side of the flow: create, open checkout, forward.
type Initiator struct {
	API      API
	Checkout HostedCheckout
	// OnStatus receives progress messages. Optional.
	OnStatus func(string)
}

// ErrNoOutcome is returned when the checkout closes its channel without a result.
var ErrNoOutcome = errors.New("checkout: session ended without an outcome")

// Pay creates an order, waits for the hosted checkout's single outcome and,
// when it completed, forwards the signed triple once. Success is only ever the
// server's verified flag.
func (i *Initiator) Pay(ctx context.Context, amount int64, currency string) (Result, error) {
	if i.API == nil || i.Checkout == nil {
		return Result{}, errors.New("checkout: initiator not configured")
	}
	i.status(StatusCreatingOrder)
	created, keyID, err := i.API.CreateOrder(ctx, amount, currency)
	if err != nil {
		i.status("Could not create order")
		return Result{}, err
	}
	res := Result{OrderID: created.ID}

	i.status(StatusOpening)
	outcomes, err := i.Checkout.Open(ctx, Session{KeyID: keyID, OrderID: created.ID, Amount: created.Amount, Currency: created.Currency})
	if err != nil {
		return res, fmt.Errorf("open checkout: %w", err)
	}

	var out Outcome
	select {
	case <-ctx.Done():
		return res, ctx.Err()
	case o, ok := <-outcomes:
		if !ok {
			return res, ErrNoOutcome
		}
		out = o
	}
	res.Outcome = out.Kind

	switch out.Kind {
	case OutcomeDismissed:
		res.Status = StatusCheckoutClosed
		i.status(res.Status)
		return res, nil
	case OutcomeFailed:
		reason := out.Reason
		if reason == "" {
			reason = "unknown error"
		}
		res.Status = fmt.Sprintf(statusPaymentFailedFx, reason)
		i.status(res.Status)
		return res, nil
	case OutcomeCompleted:
	default:
		return res, fmt.Errorf("checkout: unexpected outcome %v", out.Kind)
	}

	res.PaymentID = out.Response.PaymentID
	i.status(StatusVerifying)
	verified, err := i.API.VerifyPayment(ctx, out.Response)
	if err != nil {
		res.Status = "Verification request failed"
		i.status(res.Status)
		return res, err
	}
	res.Verified = verified
	res.Status = StatusNotVerified
	if verified {
		res.Status = StatusVerified
	}
	i.status(res.Status)
	return res, nil
}

func (i *Initiator) status(msg string) {
	if i.OnStatus != nil {
		i.OnStatus(msg)
	}
}
