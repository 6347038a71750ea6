package firestore

import (
	"context"
	"errors"
	"strings"

	pfirestore "github.com/neonnoe/storefront-api/internal/platform/firestore"
	"github.com/neonnoe/storefront-api/internal/repositories"
)

const productCollection = "products"

// ProductRepository resolves product attributes from Firestore.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{base: base}, nil
}

// ListTypes returns a map from product id to its type value. Unknown products
// and products without a type are omitted.
func (r *ProductRepository) ListTypes(ctx context.Context, productIDs []string) (map[string]string, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}

	types := make(map[string]string, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, productID := range productIDs {
		id := strings.TrimSpace(productID)
		if id == "" {
			continue
		}
		if _, done := seen[id]; done {
			continue
		}
		seen[id] = struct{}{}

		doc, err := r.base.Get(ctx, id)
		if err != nil {
			if repositories.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if value := strings.TrimSpace(doc.Data.Type); value != "" {
			types[id] = value
		}
	}
	return types, nil
}

type productDocument struct {
	Type string `firestore:"type,omitempty"`
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
