package order

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pay/internal/common"
)

// Handler exposes read-only order endpoints. Status changes never go through here.
type Handler struct {
	Store Store
}

// Get returns the current state of an order so a client can poll for the
// webhook-driven outcome after checkout.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "order id is required", nil)
		return
	}
	o, err := h.Store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("order_id", id).Msg("load order")
		common.WriteError(w, common.Internal("load order", err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"id":       o.ID,
		"amount":   o.Amount,
		"currency": o.Currency,
		"receipt":  o.Receipt,
		"status":   o.Status,
		"paid":     o.Status == StatusPaid,
	})
}
