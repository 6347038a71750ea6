package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/neonnoe/storefront-api/internal/domain"
	pfirestore "github.com/neonnoe/storefront-api/internal/platform/firestore"
	"github.com/neonnoe/storefront-api/internal/repositories"
)

const serviceZoneCollection = "service_zones"

// ServiceZoneRepository reads the denormalized shipping configuration from Firestore.
type ServiceZoneRepository struct {
	base *pfirestore.BaseRepository[serviceZoneDocument]
}

// NewServiceZoneRepository constructs a Firestore-backed service zone repository.
func NewServiceZoneRepository(provider *pfirestore.Provider) (*ServiceZoneRepository, error) {
	if provider == nil {
		return nil, errors.New("service zone repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[serviceZoneDocument](provider, serviceZoneCollection, nil, nil)
	return &ServiceZoneRepository{base: base}, nil
}

// ListZones returns every service zone with its nested options and prices, in
// stored (name ascending) order.
func (r *ServiceZoneRepository) ListZones(ctx context.Context) ([]domain.ServiceZone, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("service zone repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	zones := make([]domain.ServiceZone, 0, len(docs))
	for _, doc := range docs {
		zones = append(zones, zoneFromDocument(doc.ID, doc.Data))
	}
	return zones, nil
}

func zoneFromDocument(id string, doc serviceZoneDocument) domain.ServiceZone {
	zone := domain.ServiceZone{
		ID:   id,
		Name: strings.TrimSpace(doc.Name),
	}
	if len(doc.Countries) > 0 {
		zone.Countries = make([]string, 0, len(doc.Countries))
		for _, country := range doc.Countries {
			trimmed := strings.TrimSpace(country)
			if trimmed == "" {
				continue
			}
			zone.Countries = append(zone.Countries, trimmed)
		}
	}
	if len(doc.Options) > 0 {
		zone.Options = make([]domain.ShippingOption, 0, len(doc.Options))
		for _, opt := range doc.Options {
			zone.Options = append(zone.Options, optionFromDocument(opt))
		}
	}
	return zone
}

func optionFromDocument(doc serviceZoneOptionDocument) domain.ShippingOption {
	option := domain.ShippingOption{
		ID:          strings.TrimSpace(doc.ID),
		Name:        strings.TrimSpace(doc.Name),
		PriceType:   domain.PriceType(strings.TrimSpace(doc.PriceType)),
		IncludesTax: doc.IncludesTax,
	}
	if trimmed := strings.TrimSpace(doc.ProfileID); trimmed != "" {
		option.ProfileID = &trimmed
	}
	if len(doc.Prices) > 0 {
		option.Prices = make([]domain.ShippingPrice, 0, len(doc.Prices))
		for _, price := range doc.Prices {
			option.Prices = append(option.Prices, domain.ShippingPrice{
				Amount:       price.Amount,
				CurrencyCode: strings.TrimSpace(price.CurrencyCode),
				RegionID:     strings.TrimSpace(price.RegionID),
			})
		}
	}
	return option
}

type serviceZoneDocument struct {
	Name      string                      `firestore:"name"`
	Countries []string                    `firestore:"countries,omitempty"`
	Options   []serviceZoneOptionDocument `firestore:"options,omitempty"`
}

type serviceZoneOptionDocument struct {
	ID          string                     `firestore:"id"`
	Name        string                     `firestore:"name"`
	PriceType   string                     `firestore:"priceType"`
	IncludesTax bool                       `firestore:"includesTax"`
	ProfileID   string                     `firestore:"profileId,omitempty"`
	Prices      []serviceZonePriceDocument `firestore:"prices,omitempty"`
}

type serviceZonePriceDocument struct {
	Amount       int64  `firestore:"amount"`
	CurrencyCode string `firestore:"currencyCode"`
	RegionID     string `firestore:"regionId,omitempty"`
}

var _ repositories.ServiceZoneRepository = (*ServiceZoneRepository)(nil)
