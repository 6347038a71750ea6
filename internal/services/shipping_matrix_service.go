package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/currency"

	domain "github.com/neonnoe/storefront-api/internal/domain"
	"github.com/neonnoe/storefront-api/internal/repositories"
)

const (
	// DefaultMatrixTTL bounds how long a materialized matrix is served before
	// it is rebuilt from the upstream zone data.
	DefaultMatrixTTL = 300 * time.Second

	matrixKeyPrefix = "matrix:"
	matrixKeyAll    = "ALL"

	// legacyPriceTypeFlat is the historic sentinel still present on older
	// shipping option records.
	legacyPriceTypeFlat = "flat"
)

// ShippingMatrixDeps bundles collaborators for the matrix service.
type ShippingMatrixDeps struct {
	Zones      repositories.ServiceZoneRepository
	TaxRegions repositories.TaxRegionRepository
	// Pricing is optional; when nil, region-scoped prices are served raw.
	Pricing FulfillmentPricingService
	TTL     time.Duration
	Clock   func() time.Time
	Logger  *zap.Logger
}

type shippingMatrixService struct {
	zones      repositories.ServiceZoneRepository
	taxRegions repositories.TaxRegionRepository
	pricing    FulfillmentPricingService
	logger     *zap.Logger
	cache      *matrixCache
}

var _ ShippingMatrixService = (*shippingMatrixService)(nil)

// NewShippingMatrixService constructs the read-through shipping matrix service.
func NewShippingMatrixService(deps ShippingMatrixDeps) (ShippingMatrixService, error) {
	if deps.Zones == nil {
		return nil, errors.New("shipping matrix service: zone repository is required")
	}

	ttl := deps.TTL
	if ttl <= 0 {
		ttl = DefaultMatrixTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &shippingMatrixService{
		zones:      deps.Zones,
		taxRegions: deps.TaxRegions,
		pricing:    deps.Pricing,
		logger:     logger,
		cache:      newMatrixCache(ttl, func() time.Time { return clock().UTC() }),
	}, nil
}

// GetMatrix serves the zone/option/price aggregate for the request, rebuilding
// the cached entry when it is stale or revalidation is forced. The returned
// matrix never aliases cached state.
func (s *shippingMatrixService) GetMatrix(ctx context.Context, query MatrixQuery) (ShippingMatrix, error) {
	if ctx == nil {
		return ShippingMatrix{}, errors.New("shipping matrix service: context is required")
	}

	country := strings.ToUpper(strings.TrimSpace(query.Country))
	key := matrixCacheKey(country)

	var base ShippingMatrix
	var ok bool
	if !query.ForceRevalidate {
		base, ok = s.cache.Get(key)
	}
	if !ok {
		rebuilt, err := s.rebuild(ctx, country)
		if err != nil {
			return ShippingMatrix{}, err
		}
		s.cache.Put(key, rebuilt)
		base = rebuilt
	}

	payload := base.Clone()
	if zoneID := strings.TrimSpace(query.ZoneID); zoneID != "" {
		filtered := payload.Zones[:0]
		for _, zone := range payload.Zones {
			if zone.ID == zoneID {
				filtered = append(filtered, zone)
			}
		}
		payload.Zones = filtered
	}
	return payload, nil
}

// rebuild materializes the matrix for one cache key. Country is already
// uppercased; empty means the unscoped "ALL" variant.
func (s *shippingMatrixService) rebuild(ctx context.Context, country string) (ShippingMatrix, error) {
	zones, err := s.zones.ListZones(ctx)
	if err != nil {
		return ShippingMatrix{}, fmt.Errorf("shipping matrix: list zones: %w", err)
	}

	matrix := ShippingMatrix{Zones: make([]domain.ServiceZone, 0, len(zones))}
	for _, zone := range zones {
		normalized := zone.Clone()
		normalized.Countries = normalizeCountries(zone.Countries)
		for i, option := range normalized.Options {
			normalized.Options[i] = normalizeOption(option)
		}
		matrix.Zones = append(matrix.Zones, normalized)
	}

	if country != "" {
		matrix = s.narrowToCountry(ctx, matrix, country)
	}

	s.enrichCalculatedPrices(ctx, &matrix)

	return matrix, nil
}

// normalizeOption deduplicates prices per currency (first occurrence wins),
// flattens the option amount from the first surviving price, and maps the
// legacy "flat" price type onto "flat_rate".
func normalizeOption(option domain.ShippingOption) domain.ShippingOption {
	seen := make(map[string]struct{}, len(option.Prices))
	prices := make([]domain.ShippingPrice, 0, len(option.Prices))
	for _, price := range option.Prices {
		code := canonicalCurrency(price.CurrencyCode)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		price.CurrencyCode = code
		prices = append(prices, price)
	}
	option.Prices = prices

	option.Amount = nil
	option.CurrencyCode = nil
	if len(prices) > 0 {
		amount := prices[0].Amount
		code := prices[0].CurrencyCode
		option.Amount = &amount
		option.CurrencyCode = &code
	}

	if string(option.PriceType) == legacyPriceTypeFlat {
		option.PriceType = domain.PriceTypeFlatRate
	}
	return option
}

// narrowToCountry keeps zones covering the country, rewrites their country set
// to the singleton filter value, and resolves VAT for every surviving option.
func (s *shippingMatrixService) narrowToCountry(ctx context.Context, matrix ShippingMatrix, country string) ShippingMatrix {
	narrowed := ShippingMatrix{Zones: make([]domain.ServiceZone, 0, len(matrix.Zones))}
	for _, zone := range matrix.Zones {
		if !containsString(zone.Countries, country) {
			continue
		}
		zone.Countries = []string{country}
		narrowed.Zones = append(narrowed.Zones, zone)
	}
	if len(narrowed.Zones) == 0 {
		return narrowed
	}

	regions := s.loadTaxRegions(ctx, country)
	for zi := range narrowed.Zones {
		for oi := range narrowed.Zones[zi].Options {
			option := &narrowed.Zones[zi].Options[oi]
			option.VATRate = resolveVATRate(regions, option.ID)
			option.GrossAmount = grossAmount(option.Amount, option.VATRate, option.IncludesTax)
		}
	}
	return narrowed
}

func (s *shippingMatrixService) loadTaxRegions(ctx context.Context, country string) []domain.TaxRegion {
	if s.taxRegions == nil {
		return nil
	}
	regions, err := s.taxRegions.ListByCountry(ctx, strings.ToLower(country))
	if err != nil {
		s.logger.Warn("shipping matrix: tax region lookup failed, serving matrix without VAT",
			zap.String("country", country),
			zap.Error(err))
		return nil
	}
	return regions
}

// resolveVATRate prefers a rate explicitly overridden for the shipping option,
// then the first region default, then nil.
func resolveVATRate(regions []domain.TaxRegion, optionID string) *float64 {
	for _, region := range regions {
		for _, rate := range region.Rates {
			if rate.Rate == nil {
				continue
			}
			for _, rule := range rate.Rules {
				if rule.ReferenceType == domain.TaxRateRuleReferenceShippingOption && rule.ReferenceID == optionID {
					value := *rate.Rate
					return &value
				}
			}
		}
	}
	for _, region := range regions {
		if region.DefaultRate != nil {
			value := *region.DefaultRate
			return &value
		}
	}
	return nil
}

// grossAmount computes the tax-inclusive amount for tax-exclusive options.
// Options that already include tax report no separate gross amount.
func grossAmount(amount *int64, rate *float64, includesTax bool) *int64 {
	if includesTax || amount == nil || rate == nil {
		return nil
	}
	gross := int64(math.Round(float64(*amount) * (1 + *rate/100)))
	return &gross
}

// enrichCalculatedPrices asks the pricing collaborator for authoritative
// amounts wherever prices are region-scoped, overwriting the raw entries in
// place. Failures degrade to raw amounts and are logged, never propagated.
func (s *shippingMatrixService) enrichCalculatedPrices(ctx context.Context, matrix *ShippingMatrix) {
	if s.pricing == nil {
		return
	}

	optionsByRegion := make(map[string][]string)
	for _, zone := range matrix.Zones {
		for _, option := range zone.Options {
			for _, price := range option.Prices {
				if price.RegionID == "" {
					continue
				}
				if !containsString(optionsByRegion[price.RegionID], option.ID) {
					optionsByRegion[price.RegionID] = append(optionsByRegion[price.RegionID], option.ID)
				}
			}
		}
	}
	if len(optionsByRegion) == 0 {
		return
	}

	regionIDs := make([]string, 0, len(optionsByRegion))
	for regionID := range optionsByRegion {
		regionIDs = append(regionIDs, regionID)
	}
	sort.Strings(regionIDs)

	for _, regionID := range regionIDs {
		calculated, err := s.pricing.CalculatePrices(ctx, optionsByRegion[regionID], regionID)
		if err != nil {
			s.logger.Warn("shipping matrix: price calculation failed, serving raw amounts",
				zap.String("region_id", regionID),
				zap.Strings("option_ids", optionsByRegion[regionID]),
				zap.Error(err))
			continue
		}

		byOption := make(map[string]domain.CalculatedPrice, len(calculated))
		for _, price := range calculated {
			byOption[price.ID] = price
		}

		for zi := range matrix.Zones {
			for oi := range matrix.Zones[zi].Options {
				option := &matrix.Zones[zi].Options[oi]
				priced, ok := byOption[option.ID]
				if !ok {
					continue
				}
				for pi := range option.Prices {
					if option.Prices[pi].RegionID != regionID {
						continue
					}
					option.Prices[pi].Amount = priced.Amount
					option.Prices[pi].CurrencyCode = canonicalCurrency(priced.CurrencyCode)
				}
				// Keep the flattened amount in sync with the first price.
				if len(option.Prices) > 0 {
					amount := option.Prices[0].Amount
					code := option.Prices[0].CurrencyCode
					option.Amount = &amount
					option.CurrencyCode = &code
					option.GrossAmount = grossAmount(option.Amount, option.VATRate, option.IncludesTax)
				}
			}
		}
	}
}

// canonicalCurrency uppercases the code, preferring the ISO 4217 canonical
// form when the code is recognised. Empty codes are rejected.
func canonicalCurrency(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return ""
	}
	if unit, err := currency.ParseISO(trimmed); err == nil {
		return unit.String()
	}
	return strings.ToUpper(trimmed)
}

func normalizeCountries(countries []string) []string {
	out := make([]string, 0, len(countries))
	for _, country := range countries {
		trimmed := strings.ToUpper(strings.TrimSpace(country))
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func matrixCacheKey(country string) string {
	if country == "" {
		return matrixKeyPrefix + matrixKeyAll
	}
	return matrixKeyPrefix + country
}

// matrixCache stores materialized matrices per cache key with absolute expiry.
// Entries are immutable once stored; writers replace entries wholesale and
// readers clone before returning. Concurrent misses on the same key may
// rebuild redundantly; rebuilds are idempotent so last writer wins.
type matrixCache struct {
	ttl time.Duration
	now func() time.Time
	mu  sync.RWMutex
	m   map[string]matrixCacheEntry
}

type matrixCacheEntry struct {
	matrix  ShippingMatrix
	expires time.Time
}

func newMatrixCache(ttl time.Duration, now func() time.Time) *matrixCache {
	return &matrixCache{
		ttl: ttl,
		now: now,
		m:   make(map[string]matrixCacheEntry),
	}
}

func (c *matrixCache) Get(key string) (ShippingMatrix, bool) {
	c.mu.RLock()
	entry, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return ShippingMatrix{}, false
	}
	if !c.now().Before(entry.expires) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return ShippingMatrix{}, false
	}
	return entry.matrix, true
}

func (c *matrixCache) Put(key string, matrix ShippingMatrix) {
	c.mu.Lock()
	c.m[key] = matrixCacheEntry{matrix: matrix, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
