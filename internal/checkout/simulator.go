package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/rs/xid"

	"github.com/noah-isme/toko-pay/internal/payment"
)

// Mode selects what a simulated checkout does.
type Mode string

const (
	ModeSucceed Mode = "succeed"
	ModeDismiss Mode = "dismiss"
	ModeFail    Mode = "fail"
	// ModeTamper completes with a corrupted signature.
	ModeTamper Mode = "tamper"
)

// Simulator stands in for the hosted checkout in sandbox mode. It signs
// completions with the API key secret the way the gateway does.
type Simulator struct {
	KeySecret     string
	Mode          Mode
	FailureReason string
	Delay         time.Duration
}

// Open implements HostedCheckout.
func (s Simulator) Open(ctx context.Context, sess Session) (<-chan Outcome, error) {
	if sess.OrderID == "" {
		return nil, errors.New("simulator: order id is required")
	}
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		if s.Delay > 0 {
			t := time.NewTimer(s.Delay)
			defer t.Stop()
			select {
			case <-ctx.Done():
				out <- Outcome{Kind: OutcomeDismissed}
				return
			case <-t.C:
			}
		}
		out <- s.outcome(sess)
	}()
	return out, nil
}

func (s Simulator) outcome(sess Session) Outcome {
	switch s.Mode {
	case ModeDismiss:
		return Outcome{Kind: OutcomeDismissed}
	case ModeFail:
		reason := s.FailureReason
		if reason == "" {
			reason = "Payment declined by issuer"
		}
		return Outcome{Kind: OutcomeFailed, Reason: reason}
	}
	paymentID := "pay_" + xid.New().String()
	sig := payment.SignCheckout(sess.OrderID, paymentID, s.KeySecret)
	if s.Mode == ModeTamper {
		b := []byte(sig)
		b[len(b)-1] ^= 0x01
		sig = string(b)
	}
	return Outcome{
		Kind:     OutcomeCompleted,
		Response: SignedResponse{OrderID: sess.OrderID, PaymentID: paymentID, Signature: sig},
	}
}
