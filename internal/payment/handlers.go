package payment

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pay/internal/common"
	"github.com/noah-isme/toko-pay/internal/order"
)

// Handler exposes the JSON payment endpoints.
type Handler struct {
	Svc *Service
	// KeyID is the public gateway key handed to the hosted checkout.
	KeyID string
}

type createOrderReq struct {
	Amount   *json.Number      `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

type orderResp struct {
	ID       string       `json:"id"`
	Amount   int64        `json:"amount"`
	Currency string       `json:"currency"`
	Receipt  string       `json:"receipt"`
	Status   order.Status `json:"status"`
}

type createOrderResp struct {
	Order orderResp `json:"order"`
	KeyID string    `json:"keyId,omitempty"`
}

// CreateOrder opens a gateway order for the requested amount.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteError(w, common.Validation("invalid JSON body"))
		return
	}
	if req.Amount == nil {
		common.WriteError(w, common.Validation("amount is required"))
		return
	}
	amount, err := req.Amount.Int64()
	if err != nil || amount <= 0 {
		common.WriteError(w, common.Validation("amount must be a positive integer in the smallest currency unit"))
		return
	}
	o, err := h.Svc.CreateOrder(r.Context(), CreateOrderInput{
		Amount:   amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, createOrderResp{
		Order: orderResp{
			ID:       o.ID,
			Amount:   o.Amount,
			Currency: o.Currency,
			Receipt:  o.Receipt,
			Status:   o.Status,
		},
		KeyID: h.KeyID,
	})
}

type verifyPaymentReq struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

type verifyPaymentResp struct {
	Success  bool `json:"success"`
	Verified bool `json:"verified"`
}

// VerifyPayment checks the signed checkout response. A well-formed request
// always answers 200; verified carries the authenticity decision.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	var req verifyPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteError(w, common.Validation("invalid JSON body"))
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	req.Signature = strings.TrimSpace(req.Signature)
	if missing := missingFields(req); len(missing) > 0 {
		appErr := common.Validation("missing required fields")
		appErr.Details = map[string][]string{"missing": missing}
		common.WriteError(w, appErr)
		return
	}
	verified, err := h.Svc.ConfirmCheckout(r.Context(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("order_id", req.OrderID).Msg("verify payment")
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, verifyPaymentResp{Success: true, Verified: verified})
}

func missingFields(req verifyPaymentReq) []string {
	var missing []string
	if req.OrderID == "" {
		missing = append(missing, "razorpay_order_id")
	}
	if req.PaymentID == "" {
		missing = append(missing, "razorpay_payment_id")
	}
	if req.Signature == "" {
		missing = append(missing, "razorpay_signature")
	}
	return missing
}
