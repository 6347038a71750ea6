package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/neonnoe/storefront-api/internal/domain"
	pfirestore "github.com/neonnoe/storefront-api/internal/platform/firestore"
	"github.com/neonnoe/storefront-api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository reads cart headers and line items from Firestore.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

// GetCart loads the cart with its line items for shipping option selection.
func (r *CartRepository) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(cartID)
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		ID:    doc.ID,
		Items: []domain.CartItem{},
	}
	for _, item := range doc.Data.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        strings.TrimSpace(item.ID),
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}
	return cart, nil
}

type cartDocument struct {
	Items []cartItemDocument `firestore:"items,omitempty"`
}

type cartItemDocument struct {
	ID        string `firestore:"id"`
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"quantity"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
