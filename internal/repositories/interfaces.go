package repositories

import (
	"context"

	domain "github.com/neonnoe/storefront-api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ServiceZoneRepository reads the denormalized shipping configuration: service
// zones with their nested geo-zones, shipping options, and option prices.
type ServiceZoneRepository interface {
	ListZones(ctx context.Context) ([]domain.ServiceZone, error)
}

// TaxRegionRepository reads tax regions with nested rates and override rules.
type TaxRegionRepository interface {
	// ListByCountry returns the tax regions registered for the given country
	// code. Lookups are performed against the lowercased code.
	ListByCountry(ctx context.Context, countryCode string) ([]domain.TaxRegion, error)
}

// OrderRepository reads placed orders for notification and webhook payloads.
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// ListRecent returns the most recently created orders, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.Order, error)
}

// FulfillmentRepository reads fulfillment records created for shipments.
type FulfillmentRepository interface {
	FindByID(ctx context.Context, fulfillmentID string) (domain.Fulfillment, error)
}

// CartRepository reads carts for shipping option selection.
type CartRepository interface {
	GetCart(ctx context.Context, cartID string) (domain.Cart, error)
}

// ProductRepository resolves product type values for a batch of product ids.
type ProductRepository interface {
	// ListTypes returns a map from product id to its type value. Products
	// without a type are omitted from the result.
	ListTypes(ctx context.Context, productIDs []string) (map[string]string, error)
}

// HealthRepository aggregates dependency probes into a health report.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// IsNotFound reports whether err carries repository not-found semantics.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	if err == nil {
		return false
	}
	if ok := asRepositoryError(err, &repoErr); ok {
		return repoErr.IsNotFound()
	}
	return false
}

// IsUnavailable reports whether err carries transient-outage semantics.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	if err == nil {
		return false
	}
	if ok := asRepositoryError(err, &repoErr); ok {
		return repoErr.IsUnavailable()
	}
	return false
}

func asRepositoryError(err error, target *RepositoryError) bool {
	for err != nil {
		if repoErr, ok := err.(RepositoryError); ok {
			*target = repoErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
