package domain

import "time"

// OrderAddress carries the subset of address fields included in notification
// payloads and automation webhooks.
type OrderAddress struct {
	FirstName   string
	LastName    string
	Company     string
	Address1    string
	Address2    string
	City        string
	PostalCode  string
	Province    string
	CountryCode string
	Phone       string
}

// OrderItem is a purchased line item on an order.
type OrderItem struct {
	ID           string
	Title        string
	VariantTitle string
	SKU          string
	Quantity     int
	UnitPrice    int64
	Total        int64
	Thumbnail    string
}

// OrderTotals aggregates the monetary summary of an order in minor units.
type OrderTotals struct {
	Subtotal         int64
	ShippingSubtotal int64
	ShippingTaxTotal int64
	ShippingTotal    int64
	TaxTotal         int64
	DiscountTotal    int64
	Total            int64
}

// Order is the storefront view of a placed order used for confirmation and
// shipment notifications.
type Order struct {
	ID                string
	DisplayID         int64
	Email             string
	CurrencyCode      string
	Items             []OrderItem
	Totals            OrderTotals
	ShippingAddress   *OrderAddress
	BillingAddress    *OrderAddress
	PaymentStatus     string
	FulfillmentStatus string
	CreatedAt         time.Time
}

// FulfillmentLabel carries carrier tracking data attached to a fulfillment.
type FulfillmentLabel struct {
	ID             string
	TrackingNumber string
	TrackingURL    string
	LabelPath      string
}

// Fulfillment is a shipment record created for an order.
type Fulfillment struct {
	ID        string
	OrderID   string
	Labels    []FulfillmentLabel
	Metadata  map[string]any
	ShippedAt *time.Time
	CreatedAt time.Time
}

// CartItem is the minimal line-item view needed for shipping option selection.
type CartItem struct {
	ID        string
	ProductID string
	Quantity  int
}

// Cart is the minimal cart view needed for shipping option selection.
type Cart struct {
	ID    string
	Items []CartItem
}

// PricedShippingOption is a shipping option with its cart-contextual price, as
// returned by the fulfillment pricing workflow.
type PricedShippingOption struct {
	ID        string
	Name      string
	ProfileID string
	Amount    *int64
	Data      map[string]any
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
