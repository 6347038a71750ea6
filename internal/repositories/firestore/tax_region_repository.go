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

const taxRegionCollection = "tax_regions"

// TaxRegionRepository reads tax regions with nested rates from Firestore.
type TaxRegionRepository struct {
	base *pfirestore.BaseRepository[taxRegionDocument]
}

// NewTaxRegionRepository constructs a Firestore-backed tax region repository.
func NewTaxRegionRepository(provider *pfirestore.Provider) (*TaxRegionRepository, error) {
	if provider == nil {
		return nil, errors.New("tax region repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[taxRegionDocument](provider, taxRegionCollection, nil, nil)
	return &TaxRegionRepository{base: base}, nil
}

// ListByCountry returns the tax regions registered for the given country code.
// Region documents store the code lowercased, so the lookup lowercases first.
func (r *TaxRegionRepository) ListByCountry(ctx context.Context, countryCode string) ([]domain.TaxRegion, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("tax region repository not initialised")
	}
	code := strings.ToLower(strings.TrimSpace(countryCode))
	if code == "" {
		return nil, errors.New("tax region repository: country code is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("countryCode", "==", code)
	})
	if err != nil {
		return nil, err
	}

	regions := make([]domain.TaxRegion, 0, len(docs))
	for _, doc := range docs {
		regions = append(regions, taxRegionFromDocument(doc.ID, doc.Data))
	}
	return regions, nil
}

func taxRegionFromDocument(id string, doc taxRegionDocument) domain.TaxRegion {
	region := domain.TaxRegion{
		ID:          id,
		CountryCode: strings.ToLower(strings.TrimSpace(doc.CountryCode)),
		DefaultRate: doc.DefaultRate,
	}
	if len(doc.Rates) > 0 {
		region.Rates = make([]domain.TaxRate, 0, len(doc.Rates))
		for _, rate := range doc.Rates {
			region.Rates = append(region.Rates, taxRateFromDocument(rate))
		}
	}
	return region
}

func taxRateFromDocument(doc taxRateDocument) domain.TaxRate {
	rate := domain.TaxRate{
		ID:   strings.TrimSpace(doc.ID),
		Name: strings.TrimSpace(doc.Name),
		Rate: doc.Rate,
	}
	if len(doc.Rules) > 0 {
		rate.Rules = make([]domain.TaxRateRule, 0, len(doc.Rules))
		for _, rule := range doc.Rules {
			rate.Rules = append(rate.Rules, domain.TaxRateRule{
				ReferenceType: strings.TrimSpace(rule.ReferenceType),
				ReferenceID:   strings.TrimSpace(rule.ReferenceID),
			})
		}
	}
	return rate
}

type taxRegionDocument struct {
	CountryCode string            `firestore:"countryCode"`
	DefaultRate *float64          `firestore:"defaultRate,omitempty"`
	Rates       []taxRateDocument `firestore:"rates,omitempty"`
}

type taxRateDocument struct {
	ID    string                `firestore:"id"`
	Name  string                `firestore:"name,omitempty"`
	Rate  *float64              `firestore:"rate,omitempty"`
	Rules []taxRateRuleDocument `firestore:"rules,omitempty"`
}

type taxRateRuleDocument struct {
	ReferenceType string `firestore:"referenceType"`
	ReferenceID   string `firestore:"referenceId"`
}

var _ repositories.TaxRegionRepository = (*TaxRegionRepository)(nil)
