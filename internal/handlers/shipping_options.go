package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/neonnoe/storefront-api/internal/platform/httpx"
	"github.com/neonnoe/storefront-api/internal/services"
)

// ShippingOptionHandlers exposes cart-scoped shipping option selection.
type ShippingOptionHandlers struct {
	options services.ShippingOptionService
	logger  *zap.Logger
}

// NewShippingOptionHandlers constructs the shipping option endpoint handlers.
func NewShippingOptionHandlers(options services.ShippingOptionService, logger *zap.Logger) *ShippingOptionHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShippingOptionHandlers{
		options: options,
		logger:  logger,
	}
}

type pricedOptionPayload struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	ProfileID string         `json:"profile_id,omitempty"`
	Amount    *int64         `json:"amount"`
	Data      map[string]any `json:"data,omitempty"`
}

type shippingOptionsResponse struct {
	ShippingOptions []pricedOptionPayload `json:"shipping_options"`
}

// GetShippingOptions handles GET /store/shipping-options.
func (h *ShippingOptionHandlers) GetShippingOptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.options == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_options_unavailable", "shipping option service unavailable", http.StatusServiceUnavailable))
		return
	}

	cartID := strings.TrimSpace(r.URL.Query().Get("cart_id"))
	if cartID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cart_id is required", http.StatusBadRequest))
		return
	}

	selected, err := h.options.SelectForCart(ctx, cartID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCartIDRequired):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cart_id is required", http.StatusBadRequest))
		case errors.Is(err, services.ErrCartNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
		default:
			h.logger.Error("shipping option selection failed",
				zap.String("cartId", cartID),
				zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to list shipping options", http.StatusInternalServerError))
		}
		return
	}

	response := shippingOptionsResponse{ShippingOptions: make([]pricedOptionPayload, 0, len(selected))}
	for _, option := range selected {
		response.ShippingOptions = append(response.ShippingOptions, pricedOptionPayload{
			ID:        option.ID,
			Name:      option.Name,
			ProfileID: option.ProfileID,
			Amount:    option.Amount,
			Data:      option.Data,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}
