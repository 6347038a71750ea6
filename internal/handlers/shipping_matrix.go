package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	domain "github.com/neonnoe/storefront-api/internal/domain"
	"github.com/neonnoe/storefront-api/internal/platform/httpx"
	"github.com/neonnoe/storefront-api/internal/services"
)

const revalidateHeader = "x-revalidate-shipping-matrix"

// ShippingMatrixHandlers exposes the cached shipping matrix to storefront clients.
type ShippingMatrixHandlers struct {
	matrix  services.ShippingMatrixService
	limiter RateLimiter
	logger  *zap.Logger
}

// NewShippingMatrixHandlers constructs the shipping matrix endpoint handlers.
// The limiter, when non-nil, throttles forced revalidation per client.
func NewShippingMatrixHandlers(matrix services.ShippingMatrixService, limiter RateLimiter, logger *zap.Logger) *ShippingMatrixHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShippingMatrixHandlers{
		matrix:  matrix,
		limiter: limiter,
		logger:  logger,
	}
}

type shippingPricePayload struct {
	Amount       int64  `json:"amount"`
	CurrencyCode string `json:"currency_code"`
	RegionID     string `json:"region_id,omitempty"`
}

type shippingOptionPayload struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	PriceType    string                 `json:"price_type"`
	IncludesTax  bool                   `json:"includes_tax"`
	ProfileID    *string                `json:"profile_id"`
	Amount       *int64                 `json:"amount"`
	CurrencyCode *string                `json:"currency_code"`
	Prices       []shippingPricePayload `json:"prices"`
	VATRate      *float64               `json:"vat_rate,omitempty"`
	GrossAmount  *int64                 `json:"gross_amount,omitempty"`
}

type shippingZonePayload struct {
	ZoneID    string                  `json:"zone_id"`
	ZoneName  string                  `json:"zone_name"`
	Countries []string                `json:"countries"`
	Options   []shippingOptionPayload `json:"options"`
}

type shippingMatrixResponse struct {
	Zones []shippingZonePayload `json:"zones"`
}

// matrixErrorResponse is the error shape storefront clients already parse for
// this endpoint; it predates the canonical envelope and must stay stable.
type matrixErrorResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// GetShippingMatrix handles GET /store/shipping-matrix.
func (h *ShippingMatrixHandlers) GetShippingMatrix(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.matrix == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_matrix_unavailable", "shipping matrix service unavailable", http.StatusServiceUnavailable))
		return
	}

	force := strings.EqualFold(strings.TrimSpace(r.Header.Get(revalidateHeader)), "true")
	if force && h.limiter != nil && !h.limiter.Allow(r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many revalidation requests", http.StatusTooManyRequests))
		return
	}

	query := services.MatrixQuery{
		ForceRevalidate: force,
		ZoneID:          strings.TrimSpace(r.URL.Query().Get("zone_id")),
		Country:         strings.TrimSpace(r.URL.Query().Get("country")),
	}

	matrix, err := h.matrix.GetMatrix(ctx, query)
	if err != nil {
		h.logger.Error("shipping matrix rebuild failed",
			zap.String("country", query.Country),
			zap.Bool("force", force),
			zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(matrixErrorResponse{
			Message: "internal_error",
			Detail:  err.Error(),
		})
		return
	}

	response := shippingMatrixResponse{Zones: make([]shippingZonePayload, 0, len(matrix.Zones))}
	for _, zone := range matrix.Zones {
		response.Zones = append(response.Zones, zonePayload(zone))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func zonePayload(zone domain.ServiceZone) shippingZonePayload {
	payload := shippingZonePayload{
		ZoneID:    zone.ID,
		ZoneName:  zone.Name,
		Countries: zone.Countries,
		Options:   make([]shippingOptionPayload, 0, len(zone.Options)),
	}
	if payload.Countries == nil {
		payload.Countries = []string{}
	}
	for _, option := range zone.Options {
		prices := make([]shippingPricePayload, 0, len(option.Prices))
		for _, price := range option.Prices {
			prices = append(prices, shippingPricePayload{
				Amount:       price.Amount,
				CurrencyCode: price.CurrencyCode,
				RegionID:     price.RegionID,
			})
		}
		payload.Options = append(payload.Options, shippingOptionPayload{
			ID:           option.ID,
			Name:         option.Name,
			PriceType:    string(option.PriceType),
			IncludesTax:  option.IncludesTax,
			ProfileID:    option.ProfileID,
			Amount:       option.Amount,
			CurrencyCode: option.CurrencyCode,
			Prices:       prices,
			VATRate:      option.VATRate,
			GrossAmount:  option.GrossAmount,
		})
	}
	return payload
}
