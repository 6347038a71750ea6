package domain

// PriceType enumerates the supported pricing modes for shipping options.
type PriceType string

const (
	// PriceTypeFlatRate marks options with a fixed, currency-keyed price list.
	PriceTypeFlatRate PriceType = "flat_rate"
	// PriceTypeCalculated marks options whose price is computed per region by the
	// fulfillment pricing engine.
	PriceTypeCalculated PriceType = "calculated"
)

// ShippingPrice is one monetary amount for a shipping option. Amounts are
// integer minor currency units; currency codes are uppercased ISO 4217.
// RegionID is set when the price is region-scoped rather than flat.
type ShippingPrice struct {
	Amount       int64
	CurrencyCode string
	RegionID     string
}

// ShippingOption is a purchasable shipping method attached to a service zone.
// Amount/CurrencyCode mirror the first surviving entry of Prices after
// per-currency deduplication, or nil when the option has no prices. VATRate and
// GrossAmount are populated only for country-scoped matrix reads.
type ShippingOption struct {
	ID           string
	Name         string
	PriceType    PriceType
	IncludesTax  bool
	ProfileID    *string
	Amount       *int64
	CurrencyCode *string
	Prices       []ShippingPrice
	VATRate      *float64
	GrossAmount  *int64
}

// Clone returns a deep copy of the option.
func (o ShippingOption) Clone() ShippingOption {
	out := o
	out.ProfileID = cloneStringPtr(o.ProfileID)
	out.Amount = cloneInt64Ptr(o.Amount)
	out.CurrencyCode = cloneStringPtr(o.CurrencyCode)
	out.VATRate = cloneFloat64Ptr(o.VATRate)
	out.GrossAmount = cloneInt64Ptr(o.GrossAmount)
	if o.Prices != nil {
		out.Prices = make([]ShippingPrice, len(o.Prices))
		copy(out.Prices, o.Prices)
	}
	return out
}

// ServiceZone groups countries that share a set of shipping options.
type ServiceZone struct {
	ID        string
	Name      string
	Countries []string
	Options   []ShippingOption
}

// Clone returns a deep copy of the zone.
func (z ServiceZone) Clone() ServiceZone {
	out := z
	if z.Countries != nil {
		out.Countries = make([]string, len(z.Countries))
		copy(out.Countries, z.Countries)
	}
	if z.Options != nil {
		out.Options = make([]ShippingOption, len(z.Options))
		for i, opt := range z.Options {
			out.Options[i] = opt.Clone()
		}
	}
	return out
}

// ShippingMatrix is the materialized zone/option/price aggregate served to
// storefront clients.
type ShippingMatrix struct {
	Zones []ServiceZone
}

// Clone returns a deep copy of the matrix. Cached matrices are immutable once
// stored; every read works on a clone so request-scoped filtering and VAT
// injection never touch shared state.
func (m ShippingMatrix) Clone() ShippingMatrix {
	out := ShippingMatrix{}
	if m.Zones != nil {
		out.Zones = make([]ServiceZone, len(m.Zones))
		for i, zone := range m.Zones {
			out.Zones[i] = zone.Clone()
		}
	}
	return out
}

// TaxRateRuleReferenceShippingOption is the reference type used when a tax rate
// is overridden for one specific shipping option.
const TaxRateRuleReferenceShippingOption = "shipping_option"

// TaxRateRule scopes a tax rate override to a referenced entity.
type TaxRateRule struct {
	ReferenceType string
	ReferenceID   string
}

// TaxRate is a percentage rate inside a tax region, optionally constrained to
// specific shipping options through rules.
type TaxRate struct {
	ID    string
	Name  string
	Rate  *float64
	Rules []TaxRateRule
}

// TaxRegion holds the rates applicable to one country. CountryCode is stored
// lowercased, matching the upstream tax module convention.
type TaxRegion struct {
	ID          string
	CountryCode string
	DefaultRate *float64
	Rates       []TaxRate
}

// CalculatedPrice is the pricing engine's answer for one shipping option under
// a region context.
type CalculatedPrice struct {
	ID           string
	Amount       int64
	CurrencyCode string
}

func cloneInt64Ptr(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneFloat64Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
