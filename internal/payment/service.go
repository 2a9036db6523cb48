package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-pay/internal/common"
	"github.com/noah-isme/toko-pay/internal/events"
	"github.com/noah-isme/toko-pay/internal/obs"
	"github.com/noah-isme/toko-pay/internal/order"
)

// Confirmation sources, used as metric and event labels.
const (
	SourceCheckout = "checkout"
	SourceWebhook  = "webhook"
)

// CreateOrderInput is a validated request to open an order.
type CreateOrderInput struct {
	Amount   int64  `validate:"gt=0"`
	Currency string `validate:"omitempty,iso4217"`
	Receipt  string `validate:"omitempty,max=40"`
	// Notes are forwarded to the gateway as order notes (at most 15).
	Notes map[string]string `validate:"max=15,dive,keys,min=1,max=256,endkeys,max=256"`
}

// Service coordinates gateway order creation and order confirmation.
type Service struct {
	Store           order.Store
	Gateway         Gateway
	Events          *events.Bus
	Validate        *validator.Validate
	KeySecret       string
	DefaultCurrency string
	Logger          zerolog.Logger
	Reporter        obs.ErrorReporter
	nowFunc         func() time.Time
}

// CreateOrder validates the input, opens the order at the gateway and records
// it locally as created.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (order.Order, error) {
	if s == nil || s.Gateway == nil || s.Store == nil {
		return order.Order{}, common.Internal("payment service not configured", nil)
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateOrder")
	defer span.End()

	gatewayName := s.Gateway.Name()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.gateway", gatewayName),
			attribute.String("payment.order.result", result),
		)
		if obs.OrderCreateTotal != nil {
			obs.OrderCreateTotal.WithLabelValues(gatewayName, result).Inc()
		}
	}()

	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = s.defaultCurrency()
	}
	in.Receipt = strings.TrimSpace(in.Receipt)
	if in.Receipt == "" {
		in.Receipt = "rcpt_" + strconv.FormatInt(s.now().UnixMilli(), 10)
	}
	if err := s.validator().Struct(in); err != nil {
		result = "invalid"
		return order.Order{}, validationError(err)
	}

	start := time.Now()
	created, err := s.Gateway.CreateOrder(ctx, OrderRequest{Amount: in.Amount, Currency: in.Currency, Receipt: in.Receipt, Notes: in.Notes})
	if obs.GatewayLatency != nil {
		obs.GatewayLatency.WithLabelValues(gatewayName, "create_order").Observe(obs.DurationMillis(time.Since(start)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway create order")
		s.log(ctx).Warn().Err(err).Str("gateway", gatewayName).Int64("amount", in.Amount).Str("currency", in.Currency).Msg("gateway order creation failed")
		return order.Order{}, common.Gateway("create order", err)
	}
	result = "success"
	span.SetAttributes(attribute.String("order.id", created.ID))

	o := order.Order{
		ID:       created.ID,
		Amount:   created.Amount,
		Currency: created.Currency,
		Receipt:  created.Receipt,
		Status:   order.StatusCreated,
	}
	if o.Amount == 0 {
		o.Amount = in.Amount
	}
	if o.Currency == "" {
		o.Currency = in.Currency
	}
	if o.Receipt == "" {
		o.Receipt = in.Receipt
	}
	if err := s.Store.Create(ctx, o); err != nil {
		// The gateway order exists either way; the webhook will record it if we could not.
		s.log(ctx).Error().Err(err).Str("order_id", o.ID).Msg("record created order")
		s.report(ctx, fmt.Errorf("record created order %s: %w", o.ID, err))
	}
	s.emit(ctx, events.TopicOrderCreated, o.ID, map[string]any{
		"orderId":  o.ID,
		"amount":   o.Amount,
		"currency": o.Currency,
		"receipt":  o.Receipt,
	})
	return o, nil
}

// ConfirmCheckout verifies the signed triple returned by the hosted checkout
// and marks the order paid when it matches. A mismatch returns false with no
// error and no state change.
func (s *Service) ConfirmCheckout(ctx context.Context, orderID, paymentID, signature string) (bool, error) {
	if s == nil || s.Store == nil {
		return false, common.Internal("payment service not configured", nil)
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.ConfirmCheckout")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("payment.id", paymentID))

	if s.KeySecret == "" {
		return false, common.Internal("verify checkout signature", errors.New("api key secret not configured"))
	}
	if !VerifyCheckoutSignature(orderID, paymentID, signature, s.KeySecret) {
		s.countVerification(SourceCheckout, "mismatch")
		span.SetAttributes(attribute.Bool("payment.verified", false))
		s.log(ctx).Warn().Str("order_id", orderID).Str("payment_id", paymentID).Msg("checkout signature mismatch")
		return false, nil
	}
	s.countVerification(SourceCheckout, "verified")
	span.SetAttributes(attribute.Bool("payment.verified", true))
	if _, err := s.Transition(ctx, orderID, order.StatusPaid, paymentID, SourceCheckout); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition")
		return false, err
	}
	return true, nil
}

// Transition applies a status change from an authenticated source and
// publishes the matching domain event when the status actually moves.
func (s *Service) Transition(ctx context.Context, orderID string, target order.Status, paymentID, source string) (order.Order, error) {
	ch, err := s.Store.Transition(ctx, orderID, target, paymentID)
	if err != nil {
		s.log(ctx).Error().Err(err).Str("order_id", orderID).Str("target", string(target)).Str("source", source).Msg("order transition failed")
		s.report(ctx, err)
		return order.Order{}, common.Internal("update order", err)
	}
	o := ch.Order
	if !ch.Changed {
		s.log(ctx).Debug().Str("order_id", orderID).Str("status", string(o.Status)).Str("target", string(target)).Str("source", source).Msg("order transition ignored")
		return o, nil
	}
	from := string(ch.From)
	if from == "" {
		from = "unknown"
	}
	if obs.OrderTransitionTotal != nil {
		obs.OrderTransitionTotal.WithLabelValues(from, string(o.Status), source).Inc()
	}
	s.log(ctx).Info().Str("order_id", orderID).Str("from", from).Str("to", string(o.Status)).Str("source", source).Msg("order transitioned")

	payload := map[string]any{
		"orderId":   o.ID,
		"paymentId": o.PaymentID,
		"status":    string(o.Status),
		"source":    source,
	}
	switch o.Status {
	case order.StatusPaid:
		s.emit(ctx, events.TopicOrderPaid, o.ID, payload)
	case order.StatusFailed:
		s.emit(ctx, events.TopicPaymentFailed, o.ID, payload)
	case order.StatusAwaitingVerification:
		s.emit(ctx, events.TopicPaymentAuthorized, o.ID, payload)
	}
	return o, nil
}

func (s *Service) countVerification(path, result string) {
	if obs.PaymentVerificationTotal != nil {
		obs.PaymentVerificationTotal.WithLabelValues(path, result).Inc()
	}
}

func (s *Service) emit(ctx context.Context, topic, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.log(ctx).Warn().Err(err).Str("topic", topic).Str("order_id", aggregateID).Msg("emit domain event")
	}
}

func (s *Service) report(ctx context.Context, err error) {
	if s.Reporter != nil {
		s.Reporter.Report(ctx, err)
	}
}

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.Logger
}

func (s *Service) validator() *validator.Validate {
	if s.Validate == nil {
		s.Validate = validator.New()
	}
	return s.Validate
}

func (s *Service) defaultCurrency() string {
	if c := strings.ToUpper(strings.TrimSpace(s.DefaultCurrency)); c != "" {
		return c
	}
	return "INR"
}

func (s *Service) now() time.Time {
	if s.nowFunc == nil {
		return time.Now()
	}
	return s.nowFunc()
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return common.Validation("invalid order request")
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[strings.ToLower(fe.Field())] = fe.Tag()
	}
	first := verrs[0]
	var msg string
	field := strings.ToLower(first.Field())
	if strings.HasPrefix(field, "notes") {
		field = "notes"
	}
	switch field {
	case "amount":
		msg = "amount must be a positive integer in the smallest currency unit"
	case "currency":
		msg = "currency must be an ISO 4217 code"
	case "receipt":
		msg = "receipt must be at most 40 characters"
	case "notes":
		msg = "notes allow at most 15 entries of up to 256 characters"
	default:
		msg = "invalid order request"
	}
	appErr := common.Validation(msg)
	appErr.Details = fields
	return appErr
}
