package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/neonnoe/storefront-api/internal/domain"
)

type stubCartRepository struct {
	getFunc func(ctx context.Context, cartID string) (domain.Cart, error)
}

func (s *stubCartRepository) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	if s.getFunc == nil {
		return domain.Cart{}, nil
	}
	return s.getFunc(ctx, cartID)
}

type stubProductRepository struct {
	typesFunc func(ctx context.Context, productIDs []string) (map[string]string, error)
}

func (s *stubProductRepository) ListTypes(ctx context.Context, productIDs []string) (map[string]string, error) {
	if s.typesFunc == nil {
		return nil, nil
	}
	return s.typesFunc(ctx, productIDs)
}

type stubOptionLister struct {
	listFunc func(ctx context.Context, cartID string) ([]domain.PricedShippingOption, error)
}

func (s *stubOptionLister) ListForCart(ctx context.Context, cartID string) ([]domain.PricedShippingOption, error) {
	if s.listFunc == nil {
		return nil, nil
	}
	return s.listFunc(ctx, cartID)
}

type repositoryErrorStub struct {
	notFound bool
}

func (e *repositoryErrorStub) Error() string       { return "repository error" }
func (e *repositoryErrorStub) IsNotFound() bool    { return e.notFound }
func (e *repositoryErrorStub) IsConflict() bool    { return false }
func (e *repositoryErrorStub) IsUnavailable() bool { return false }

func int64Ptr(v int64) *int64 {
	return &v
}

func cartWithProducts(ids ...string) domain.Cart {
	cart := domain.Cart{ID: "cart_01"}
	for i, id := range ids {
		cart.Items = append(cart.Items, domain.CartItem{ID: "item_" + id, ProductID: id, Quantity: i + 1})
	}
	return cart
}

func pricedOptions() []domain.PricedShippingOption {
	return []domain.PricedShippingOption{
		{ID: "so_bass", Name: "Electric Bass", Amount: int64Ptr(4500)},
		{ID: "so_guitar", Name: "Electric Guitar", Amount: int64Ptr(3500)},
		{ID: "so_merch", Name: "Merchandise", Amount: int64Ptr(900)},
		{ID: "so_default", Name: "Default Shipping Profile", Amount: int64Ptr(1200)},
		{ID: "so_standard", Name: "Standard Shipping", Amount: int64Ptr(1000)},
	}
}

func newOptionServiceForTest(t *testing.T, deps ShippingOptionDeps) ShippingOptionService {
	t.Helper()
	service, err := NewShippingOptionService(deps)
	if err != nil {
		t.Fatalf("unexpected error constructing option service: %v", err)
	}
	return service
}

func TestSelectForCartRequiresCartID(t *testing.T) {
	service := newOptionServiceForTest(t, ShippingOptionDeps{
		Carts:   &stubCartRepository{},
		Options: &stubOptionLister{},
	})

	if _, err := service.SelectForCart(context.Background(), "  "); !errors.Is(err, ErrCartIDRequired) {
		t.Fatalf("expected ErrCartIDRequired, got %v", err)
	}
}

func TestSelectForCartMapsMissingCart(t *testing.T) {
	carts := &stubCartRepository{getFunc: func(context.Context, string) (domain.Cart, error) {
		return domain.Cart{}, &repositoryErrorStub{notFound: true}
	}}
	service := newOptionServiceForTest(t, ShippingOptionDeps{Carts: carts, Options: &stubOptionLister{}})

	if _, err := service.SelectForCart(context.Background(), "cart_missing"); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}

func TestSelectForCartEmptyCartReturnsNoOptions(t *testing.T) {
	carts := &stubCartRepository{getFunc: func(context.Context, string) (domain.Cart, error) {
		return domain.Cart{ID: "cart_01"}, nil
	}}
	listerCalled := false
	lister := &stubOptionLister{listFunc: func(context.Context, string) ([]domain.PricedShippingOption, error) {
		listerCalled = true
		return pricedOptions(), nil
	}}
	service := newOptionServiceForTest(t, ShippingOptionDeps{Carts: carts, Options: lister})

	options, err := service.SelectForCart(context.Background(), "cart_01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(options) != 0 {
		t.Fatalf("expected no options for empty cart, got %d", len(options))
	}
	if listerCalled {
		t.Fatalf("expected no pricing call for empty cart")
	}
}

func TestSelectForCartPrioritizesProductTypes(t *testing.T) {
	carts := &stubCartRepository{getFunc: func(context.Context, string) (domain.Cart, error) {
		return cartWithProducts("prod_merch", "prod_guitar"), nil
	}}
	products := &stubProductRepository{typesFunc: func(_ context.Context, ids []string) (map[string]string, error) {
		if len(ids) != 2 {
			t.Fatalf("expected batch lookup of 2 products, got %v", ids)
		}
		return map[string]string{
			"prod_merch":  "Merchandise",
			"prod_guitar": "Electric Guitar",
		}, nil
	}}
	service := newOptionServiceForTest(t, ShippingOptionDeps{
		Carts:    carts,
		Products: products,
		Options: &stubOptionLister{listFunc: func(context.Context, string) ([]domain.PricedShippingOption, error) {
			return pricedOptions(), nil
		}},
	})

	options, err := service.SelectForCart(context.Background(), "cart_01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(options) != 1 {
		t.Fatalf("expected exactly one option, got %d", len(options))
	}
	// Electric Guitar outranks Merchandise in the priority list.
	if options[0].ID != "so_guitar" {
		t.Fatalf("expected guitar option, got %q", options[0].ID)
	}
}

func TestSelectForCartFallsBackThroughDefaults(t *testing.T) {
	carts := &stubCartRepository{getFunc: func(context.Context, string) (domain.Cart, error) {
		return cartWithProducts("prod_unknown"), nil
	}}
	products := &stubProductRepository{typesFunc: func(context.Context, []string) (map[string]string, error) {
		return map[string]string{}, nil
	}}

	available := []domain.PricedShippingOption{
		{ID: "so_standard", Name: "Standard Shipping", Amount: int64Ptr(1000)},
		{ID: "so_exotic", Name: "Freight", Amount: int64Ptr(9000)},
	}
	service := newOptionServiceForTest(t, ShippingOptionDeps{
		Carts:    carts,
		Products: products,
		Options: &stubOptionLister{listFunc: func(context.Context, string) ([]domain.PricedShippingOption, error) {
			return available, nil
		}},
	})

	options, err := service.SelectForCart(context.Background(), "cart_01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// "Default Shipping Profile" is absent, so "Standard Shipping" matches
	// before the all-options fallback would have picked the freight option.
	if len(options) != 1 || options[0].ID != "so_standard" {
		t.Fatalf("expected standard shipping fallback, got %+v", options)
	}
}

func TestSelectForCartPicksMostExpensiveWhenNoNameMatches(t *testing.T) {
	carts := &stubCartRepository{getFunc: func(context.Context, string) (domain.Cart, error) {
		return cartWithProducts("prod_unknown"), nil
	}}
	available := []domain.PricedShippingOption{
		{ID: "so_cheap", Name: "Economy", Amount: int64Ptr(500)},
		{ID: "so_unpriced", Name: "Courier"},
		{ID: "so_dear", Name: "Overnight", Amount: int64Ptr(2500)},
	}
	service := newOptionServiceForTest(t, ShippingOptionDeps{
		Carts: carts,
		Options: &stubOptionLister{listFunc: func(context.Context, string) ([]domain.PricedShippingOption, error) {
			return available, nil
		}},
	})

	options, err := service.SelectForCart(context.Background(), "cart_01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(options) != 1 || options[0].ID != "so_dear" {
		t.Fatalf("expected most expensive option, got %+v", options)
	}
}

func TestSelectForCartSurvivesProductTypeLookupFailure(t *testing.T) {
	carts := &stubCartRepository{getFunc: func(context.Context, string) (domain.Cart, error) {
		return cartWithProducts("prod_bass"), nil
	}}
	products := &stubProductRepository{typesFunc: func(context.Context, []string) (map[string]string, error) {
		return nil, errors.New("product module unavailable")
	}}
	service := newOptionServiceForTest(t, ShippingOptionDeps{
		Carts:    carts,
		Products: products,
		Options: &stubOptionLister{listFunc: func(context.Context, string) ([]domain.PricedShippingOption, error) {
			return pricedOptions(), nil
		}},
	})

	options, err := service.SelectForCart(context.Background(), "cart_01")
	if err != nil {
		t.Fatalf("expected graceful degradation, got %v", err)
	}
	// Without type information the default profile fallback applies.
	if len(options) != 1 || options[0].ID != "so_default" {
		t.Fatalf("expected default profile option, got %+v", options)
	}
}
