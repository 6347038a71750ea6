package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientValidatesBaseURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatalf("expected error for empty base url")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "ftp://pricing"}); err == nil {
		t.Fatalf("expected error for non-http base url")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "https://pricing.example.com/"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCalculatePrices(t *testing.T) {
	var gotPath string
	var gotBody calculatePricesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prices":[{"id":"so_std","amount":1290,"currency_code":"eur"}]}`))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prices, err := client.CalculatePrices(context.Background(), []string{"so_std"}, "reg_eu")
	if err != nil {
		t.Fatalf("CalculatePrices returned error: %v", err)
	}

	if gotPath != "/prices/calculate" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotBody.RegionID != "reg_eu" || len(gotBody.OptionIDs) != 1 || gotBody.OptionIDs[0] != "so_std" {
		t.Fatalf("unexpected request body %+v", gotBody)
	}
	if len(prices) != 1 {
		t.Fatalf("expected one price, got %d", len(prices))
	}
	if prices[0].ID != "so_std" || prices[0].Amount != 1290 || prices[0].CurrencyCode != "EUR" {
		t.Fatalf("unexpected price %+v", prices[0])
	}
}

func TestCalculatePricesSkipsEmptyOptionSet(t *testing.T) {
	client, err := NewClient(ClientConfig{BaseURL: "https://pricing.example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prices, err := client.CalculatePrices(context.Background(), nil, "reg_eu")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prices != nil {
		t.Fatalf("expected no prices, got %+v", prices)
	}
}

func TestListForCart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/carts/cart_01/shipping-options" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"shipping_options":[{"id":"so_std","name":"Standard Shipping","profile_id":"sp_default","amount":990,"data":{"carrier":"dhl"}}]}`))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	options, err := client.ListForCart(context.Background(), "cart_01")
	if err != nil {
		t.Fatalf("ListForCart returned error: %v", err)
	}
	if len(options) != 1 {
		t.Fatalf("expected one option, got %d", len(options))
	}
	opt := options[0]
	if opt.ID != "so_std" || opt.Name != "Standard Shipping" || opt.ProfileID != "sp_default" {
		t.Fatalf("unexpected option %+v", opt)
	}
	if opt.Amount == nil || *opt.Amount != 990 {
		t.Fatalf("unexpected amount %+v", opt.Amount)
	}
	if opt.Data["carrier"] != "dhl" {
		t.Fatalf("unexpected data %+v", opt.Data)
	}
}

func TestListForCartMapsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = client.ListForCart(context.Background(), "cart_missing")
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}

func TestListForCartSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "engine exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = client.ListForCart(context.Background(), "cart_01")
	if err == nil {
		t.Fatalf("expected error for 502 response")
	}
}
