package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/noah-isme/toko-pay/internal/checkout"
	"github.com/noah-isme/toko-pay/internal/obs"
)

// checkout drives one sandbox payment against a running API: it creates an
// order, lets the simulator play the hosted checkout and forwards the result
// for verification.
func main() {
	_ = godotenv.Load()

	var (
		baseURL  = flag.String("api", "http://localhost:5000/api", "payment API base URL")
		amount   = flag.Int64("amount", 49900, "amount in the smallest currency unit")
		currency = flag.String("currency", "INR", "ISO 4217 currency code")
		mode     = flag.String("mode", string(checkout.ModeSucceed), "simulated outcome: succeed, dismiss, fail or tamper")
		reason   = flag.String("reason", "card declined", "failure reason for -mode=fail")
		timeout  = flag.Duration("timeout", 30*time.Second, "overall timeout")
	)
	flag.Parse()

	logger := obs.NewLogger("console", os.Getenv("OBS_LOG_LEVEL")).With().Str("component", "checkout").Logger()

	secret := os.Getenv("RAZORPAY_KEY_SECRET")
	if secret == "" {
		logger.Fatal().Msg("RAZORPAY_KEY_SECRET is required to sign simulated payments")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	initiator := &checkout.Initiator{
		API: checkout.NewClient(*baseURL, *timeout),
		Checkout: checkout.Simulator{
			KeySecret:     secret,
			Mode:          checkout.Mode(*mode),
			FailureReason: *reason,
			Delay:         200 * time.Millisecond,
		},
		OnStatus: func(msg string) { logger.Info().Msg(msg) },
	}

	res, err := initiator.Pay(ctx, *amount, *currency)
	if err != nil {
		logger.Error().Err(err).Str("order_id", res.OrderID).Msg("checkout failed")
		os.Exit(1)
	}
	logger.Info().
		Str("order_id", res.OrderID).
		Str("payment_id", res.PaymentID).
		Str("outcome", res.Outcome.String()).
		Bool("verified", res.Verified).
		Msg(res.Status)
	if res.Outcome == checkout.OutcomeCompleted && !res.Verified {
		os.Exit(2)
	}
}
