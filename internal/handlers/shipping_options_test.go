package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/neonnoe/storefront-api/internal/services"
)

type stubOptionService struct {
	selectFunc func(ctx context.Context, cartID string) ([]services.PricedShippingOption, error)
}

func (s *stubOptionService) SelectForCart(ctx context.Context, cartID string) ([]services.PricedShippingOption, error) {
	if s.selectFunc == nil {
		return nil, nil
	}
	return s.selectFunc(ctx, cartID)
}

func TestGetShippingOptionsRequiresCartID(t *testing.T) {
	handlers := NewShippingOptionHandlers(&stubOptionService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/store/shipping-options", nil)
	rr := httptest.NewRecorder()

	handlers.GetShippingOptions(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body["error"] != "invalid_request" {
		t.Fatalf("expected invalid_request error, got %v", body["error"])
	}
}

func TestGetShippingOptionsMapsMissingCart(t *testing.T) {
	svc := &stubOptionService{selectFunc: func(context.Context, string) ([]services.PricedShippingOption, error) {
		return nil, services.ErrCartNotFound
	}}
	handlers := NewShippingOptionHandlers(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/store/shipping-options?cart_id=cart_missing", nil)
	rr := httptest.NewRecorder()

	handlers.GetShippingOptions(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestGetShippingOptionsReturnsSelection(t *testing.T) {
	svc := &stubOptionService{selectFunc: func(_ context.Context, cartID string) ([]services.PricedShippingOption, error) {
		if cartID != "cart_01" {
			t.Fatalf("unexpected cart id %q", cartID)
		}
		return []services.PricedShippingOption{
			{ID: "so_01", Name: "Standard Shipping", ProfileID: "sp_01", Amount: int64PtrHandler(1190)},
		}, nil
	}}
	handlers := NewShippingOptionHandlers(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/store/shipping-options?cart_id=cart_01", nil)
	rr := httptest.NewRecorder()

	handlers.GetShippingOptions(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body struct {
		ShippingOptions []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Amount *int64 `json:"amount"`
		} `json:"shipping_options"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(body.ShippingOptions) != 1 || body.ShippingOptions[0].ID != "so_01" {
		t.Fatalf("unexpected options %+v", body.ShippingOptions)
	}
	if body.ShippingOptions[0].Amount == nil || *body.ShippingOptions[0].Amount != 1190 {
		t.Fatalf("unexpected amount %v", body.ShippingOptions[0].Amount)
	}
}

func TestGetShippingOptionsReturnsEmptyList(t *testing.T) {
	svc := &stubOptionService{selectFunc: func(context.Context, string) ([]services.PricedShippingOption, error) {
		return []services.PricedShippingOption{}, nil
	}}
	handlers := NewShippingOptionHandlers(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/store/shipping-options?cart_id=cart_empty", nil)
	rr := httptest.NewRecorder()

	handlers.GetShippingOptions(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body struct {
		ShippingOptions []any `json:"shipping_options"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body.ShippingOptions == nil || len(body.ShippingOptions) != 0 {
		t.Fatalf("expected empty array, got %v", body.ShippingOptions)
	}
}
