package services

import (
	"context"
	"time"

	domain "github.com/neonnoe/storefront-api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	ServiceZone          = domain.ServiceZone
	ShippingOption       = domain.ShippingOption
	ShippingPrice        = domain.ShippingPrice
	ShippingMatrix       = domain.ShippingMatrix
	TaxRegion            = domain.TaxRegion
	TaxRate              = domain.TaxRate
	CalculatedPrice      = domain.CalculatedPrice
	Order                = domain.Order
	OrderAddress         = domain.OrderAddress
	Fulfillment          = domain.Fulfillment
	Cart                 = domain.Cart
	PricedShippingOption = domain.PricedShippingOption
	SystemHealthReport   = domain.SystemHealthReport
)

// MatrixQuery captures the request parameters influencing a shipping matrix read.
type MatrixQuery struct {
	// ForceRevalidate bypasses cache freshness and rebuilds the entry.
	ForceRevalidate bool
	// ZoneID narrows the response to a single zone. Applied per request, never cached.
	ZoneID string
	// Country narrows zones to those covering the country and enables VAT
	// enrichment. Case-insensitive; part of the cache key.
	Country string
}

// ShippingMatrixService answers which shipping zones, options and prices are
// visible to a storefront request, backed by a read-through TTL cache.
type ShippingMatrixService interface {
	GetMatrix(ctx context.Context, query MatrixQuery) (ShippingMatrix, error)
}

// FulfillmentPricingService calculates authoritative option prices for a region
// context. Consumed during matrix enrichment; never implemented by this core.
type FulfillmentPricingService interface {
	CalculatePrices(ctx context.Context, optionIDs []string, regionID string) ([]CalculatedPrice, error)
}

// PricedOptionLister lists shipping options priced for a specific cart. The
// production adapter delegates to the fulfillment pricing workflow.
type PricedOptionLister interface {
	ListForCart(ctx context.Context, cartID string) ([]PricedShippingOption, error)
}

// ShippingOptionService selects the shipping option presented for a cart.
type ShippingOptionService interface {
	// SelectForCart returns zero or one option: the most expensive option
	// matching the product-type driven name priority, with fallbacks.
	SelectForCart(ctx context.Context, cartID string) ([]PricedShippingOption, error)
}

// OrderNotificationService reacts to order lifecycle events by sending
// transactional email and triggering automation webhooks.
type OrderNotificationService interface {
	HandleOrderPlaced(ctx context.Context, orderID string) error
	HandleShipmentCreated(ctx context.Context, fulfillmentID string, noNotification bool) error
}

// WebhookNotifier delivers JSON event payloads to an external automation
// endpoint. Implementations must treat delivery as best effort.
type WebhookNotifier interface {
	Notify(ctx context.Context, event string, payload map[string]any) error
}

// EventPublisher emits integration events onto the internal event bus.
type EventPublisher interface {
	PublishNotificationSent(ctx context.Context, event NotificationSentEvent) (string, error)
}

// NotificationSentEvent records a delivered order notification for downstream consumers.
type NotificationSentEvent struct {
	NotificationID string    `json:"notification_id"`
	OrderID        string    `json:"order_id"`
	Template       string    `json:"template"`
	Recipient      string    `json:"recipient"`
	SentAt         time.Time `json:"sent_at"`
}

// LabelURLResolver turns a stored shipping label path into a fetchable URL.
type LabelURLResolver interface {
	ResolveLabelURL(ctx context.Context, path string) (string, error)
}

// SystemService exposes operational utilities for health endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
