package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-pay/internal/common"
	"github.com/noah-isme/toko-pay/internal/obs"
	"github.com/noah-isme/toko-pay/internal/order"
)

// Webhook headers sent by the gateway.
const (
	SignatureHeader = "X-Razorpay-Signature"
	EventIDHeader   = "X-Razorpay-Event-Id"
)

// ReplayGuard remembers webhook deliveries that were already processed.
type ReplayGuard interface {
	// FirstSeen records key and reports whether it was new.
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// RedisReplayGuard implements ReplayGuard with SETNX.
type RedisReplayGuard struct {
	R      *redis.Client
	Prefix string
}

func (g RedisReplayGuard) key(k string) string {
	prefix := g.Prefix
	if prefix == "" {
		prefix = "wh:razorpay:"
	}
	return prefix + k
}

// FirstSeen implements ReplayGuard.
func (g RedisReplayGuard) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.R.SetNX(ctx, g.key(key), "1", ttl).Result()
}

// Forget implements ReplayGuard.
func (g RedisReplayGuard) Forget(ctx context.Context, key string) error {
	return g.R.Del(ctx, g.key(key)).Err()
}

// Webhook receives gateway events. The signature is checked against the raw
// bytes before anything else looks at the payload.
type Webhook struct {
	Svc       *Service
	Secret    string
	Replay    ReplayGuard
	ReplayTTL time.Duration
	BodyLimit int64
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Status           string `json:"status"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

func (e webhookEvent) orderID() string {
	if e.Payload.Payment != nil && e.Payload.Payment.Entity.OrderID != "" {
		return e.Payload.Payment.Entity.OrderID
	}
	if e.Payload.Order != nil {
		return e.Payload.Order.Entity.ID
	}
	return ""
}

func (e webhookEvent) paymentID() string {
	if e.Payload.Payment != nil {
		return e.Payload.Payment.Entity.ID
	}
	return ""
}

// EventTarget maps a gateway event name to the order status it drives.
// ok is false for events that are acknowledged without any state change.
func EventTarget(event string) (order.Status, bool) {
	switch event {
	case "payment.authorized":
		return order.StatusAwaitingVerification, true
	case "payment.captured", "order.paid":
		return order.StatusPaid, true
	case "payment.failed":
		return order.StatusFailed, true
	}
	return "", false
}

// Handle processes one webhook delivery.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("payment.Webhook").Start(r.Context(), "PaymentWebhook.Handle")
	defer span.End()
	logger := zerolog.Ctx(ctx)

	if h.Svc == nil || h.Secret == "" {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, ok := common.RawBodyFromContext(ctx)
	if !ok {
		var err error
		body, err = common.ReadRaw(r.Body, h.BodyLimit)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
			return
		}
	}

	signature := strings.TrimSpace(r.Header.Get(SignatureHeader))
	if !VerifyWebhookSignature(body, signature, h.Secret) {
		countWebhook("unknown", "invalid_signature")
		h.Svc.countVerification(SourceWebhook, "mismatch")
		span.SetAttributes(attribute.Bool("payment.verified", false))
		logger.Warn().Int("bytes", len(body)).Bool("signature_present", signature != "").Msg("webhook signature rejected")
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	h.Svc.countVerification(SourceWebhook, "verified")
	span.SetAttributes(attribute.Bool("payment.verified", true))

	// parse before claiming the replay key so a rejected body is not
	// acknowledged as a duplicate on redelivery
	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil || strings.TrimSpace(ev.Event) == "" {
		countWebhook("unknown", "invalid_payload")
		common.JSONError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "webhook payload is not a valid event", nil)
		return
	}

	replayKey := strings.TrimSpace(r.Header.Get(EventIDHeader))
	if replayKey == "" {
		replayKey = common.Fingerprint(string(body))
	}
	guarded := false
	if h.Replay != nil && h.ReplayTTL > 0 {
		first, err := h.Replay.FirstSeen(ctx, replayKey, h.ReplayTTL)
		switch {
		case err != nil:
			// Transitions are idempotent, so process without the guard.
			logger.Warn().Err(err).Msg("webhook replay guard unavailable")
		case !first:
			countWebhook(ev.Event, "duplicate")
			logger.Info().Str("replay_key", replayKey).Msg("duplicate webhook acknowledged")
			common.JSON(w, http.StatusOK, map[string]bool{"received": true, "duplicate": true})
			return
		default:
			guarded = true
		}
	}

	span.SetAttributes(attribute.String("payment.webhook.event", ev.Event))
	evLogger := logger.With().Str("event", ev.Event).Str("order_id", ev.orderID()).Str("payment_id", ev.paymentID()).Logger()

	target, handled := EventTarget(ev.Event)
	if !handled {
		countWebhook(ev.Event, "ignored")
		evLogger.Info().Msg("webhook event acknowledged")
		common.JSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	orderID := ev.orderID()
	if orderID == "" {
		countWebhook(ev.Event, "missing_order")
		evLogger.Warn().Msg("webhook event carries no order id")
		common.JSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if target == order.StatusFailed && ev.Payload.Payment != nil && ev.Payload.Payment.Entity.ErrorDescription != "" {
		evLogger.Info().Str("reason", ev.Payload.Payment.Entity.ErrorDescription).Msg("payment failed at gateway")
	}

	if _, err := h.Svc.Transition(evLogger.WithContext(ctx), orderID, target, ev.paymentID(), SourceWebhook); err != nil {
		countWebhook(ev.Event, "error")
		if guarded {
			// Let the gateway's retry through.
			if ferr := h.Replay.Forget(context.WithoutCancel(ctx), replayKey); ferr != nil {
				evLogger.Warn().Err(ferr).Msg("release webhook replay key")
			}
		}
		common.WriteError(w, err)
		return
	}
	countWebhook(ev.Event, "processed")
	common.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

func countWebhook(event, result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(event, result).Inc()
	}
}
