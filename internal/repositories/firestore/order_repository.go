package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/neonnoe/storefront-api/internal/domain"
	pfirestore "github.com/neonnoe/storefront-api/internal/platform/firestore"
	"github.com/neonnoe/storefront-api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository reads placed orders from Firestore.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

// FindByID loads a single order by its document ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return orderFromDocument(doc.ID, doc.Data), nil
}

// ListRecent returns the most recently created orders, newest first.
func (r *OrderRepository) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	if limit <= 0 {
		limit = 1
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, orderFromDocument(doc.ID, doc.Data))
	}
	return orders, nil
}

func orderFromDocument(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:           id,
		DisplayID:    doc.DisplayID,
		Email:        strings.TrimSpace(doc.Email),
		CurrencyCode: strings.ToUpper(strings.TrimSpace(doc.CurrencyCode)),
		Totals: domain.OrderTotals{
			Subtotal:         doc.Totals.Subtotal,
			ShippingSubtotal: doc.Totals.ShippingSubtotal,
			ShippingTaxTotal: doc.Totals.ShippingTaxTotal,
			ShippingTotal:    doc.Totals.ShippingTotal,
			TaxTotal:         doc.Totals.TaxTotal,
			DiscountTotal:    doc.Totals.DiscountTotal,
			Total:            doc.Totals.Total,
		},
		PaymentStatus:     strings.TrimSpace(doc.PaymentStatus),
		FulfillmentStatus: strings.TrimSpace(doc.FulfillmentStatus),
		CreatedAt:         doc.CreatedAt,
	}
	if len(doc.Items) > 0 {
		order.Items = make([]domain.OrderItem, 0, len(doc.Items))
		for _, item := range doc.Items {
			order.Items = append(order.Items, domain.OrderItem{
				ID:           strings.TrimSpace(item.ID),
				Title:        item.Title,
				VariantTitle: item.VariantTitle,
				SKU:          strings.TrimSpace(item.SKU),
				Quantity:     item.Quantity,
				UnitPrice:    item.UnitPrice,
				Total:        item.Total,
				Thumbnail:    strings.TrimSpace(item.Thumbnail),
			})
		}
	}
	order.ShippingAddress = addressFromDocument(doc.ShippingAddress)
	order.BillingAddress = addressFromDocument(doc.BillingAddress)
	return order
}

func addressFromDocument(doc *orderAddressDocument) *domain.OrderAddress {
	if doc == nil {
		return nil
	}
	return &domain.OrderAddress{
		FirstName:   doc.FirstName,
		LastName:    doc.LastName,
		Company:     doc.Company,
		Address1:    doc.Address1,
		Address2:    doc.Address2,
		City:        doc.City,
		PostalCode:  doc.PostalCode,
		Province:    doc.Province,
		CountryCode: strings.ToLower(strings.TrimSpace(doc.CountryCode)),
		Phone:       doc.Phone,
	}
}

type orderDocument struct {
	DisplayID         int64                 `firestore:"displayId"`
	Email             string                `firestore:"email,omitempty"`
	CurrencyCode      string                `firestore:"currencyCode"`
	Items             []orderItemDocument   `firestore:"items,omitempty"`
	Totals            orderTotalsDocument   `firestore:"totals"`
	ShippingAddress   *orderAddressDocument `firestore:"shippingAddress,omitempty"`
	BillingAddress    *orderAddressDocument `firestore:"billingAddress,omitempty"`
	PaymentStatus     string                `firestore:"paymentStatus,omitempty"`
	FulfillmentStatus string                `firestore:"fulfillmentStatus,omitempty"`
	CreatedAt         time.Time             `firestore:"createdAt"`
}

type orderItemDocument struct {
	ID           string `firestore:"id"`
	Title        string `firestore:"title"`
	VariantTitle string `firestore:"variantTitle,omitempty"`
	SKU          string `firestore:"sku,omitempty"`
	Quantity     int    `firestore:"quantity"`
	UnitPrice    int64  `firestore:"unitPrice"`
	Total        int64  `firestore:"total"`
	Thumbnail    string `firestore:"thumbnail,omitempty"`
}

type orderTotalsDocument struct {
	Subtotal         int64 `firestore:"subtotal"`
	ShippingSubtotal int64 `firestore:"shippingSubtotal"`
	ShippingTaxTotal int64 `firestore:"shippingTaxTotal"`
	ShippingTotal    int64 `firestore:"shippingTotal"`
	TaxTotal         int64 `firestore:"taxTotal"`
	DiscountTotal    int64 `firestore:"discountTotal"`
	Total            int64 `firestore:"total"`
}

type orderAddressDocument struct {
	FirstName   string `firestore:"firstName,omitempty"`
	LastName    string `firestore:"lastName,omitempty"`
	Company     string `firestore:"company,omitempty"`
	Address1    string `firestore:"address1,omitempty"`
	Address2    string `firestore:"address2,omitempty"`
	City        string `firestore:"city,omitempty"`
	PostalCode  string `firestore:"postalCode,omitempty"`
	Province    string `firestore:"province,omitempty"`
	CountryCode string `firestore:"countryCode,omitempty"`
	Phone       string `firestore:"phone,omitempty"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
