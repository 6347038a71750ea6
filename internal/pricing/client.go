package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "github.com/neonnoe/storefront-api/internal/domain"
	"github.com/neonnoe/storefront-api/internal/services"
)

var (
	_ services.FulfillmentPricingService = (*Client)(nil)
	_ services.PricedOptionLister        = (*Client)(nil)
	_ services.PricedOptionLister        = Disabled{}
)

// Disabled stands in when no pricing engine is configured. Matrix enrichment
// is skipped and carts see no priced options.
type Disabled struct{}

// CalculatePrices reports no calculated prices.
func (Disabled) CalculatePrices(context.Context, []string, string) ([]domain.CalculatedPrice, error) {
	return nil, nil
}

// ListForCart reports no priced options.
func (Disabled) ListForCart(context.Context, string) ([]domain.PricedShippingOption, error) {
	return nil, nil
}

// ErrCartNotFound is returned when the pricing engine does not know the cart.
var ErrCartNotFound = errors.New("pricing: cart not found")

// ClientConfig configures the pricing engine client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the fulfillment pricing engine over HTTP. It serves both
// region-scoped matrix enrichment and per-cart option listing.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs a pricing engine client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("pricing: base url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("pricing: invalid base url %q", cfg.BaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: baseURL,
		client:  client,
	}, nil
}

type calculatePricesRequest struct {
	OptionIDs []string `json:"option_ids"`
	RegionID  string   `json:"region_id"`
}

type calculatePricesResponse struct {
	Prices []struct {
		ID           string `json:"id"`
		Amount       int64  `json:"amount"`
		CurrencyCode string `json:"currency_code"`
	} `json:"prices"`
}

// CalculatePrices asks the engine for region-scoped prices of the given options.
func (c *Client) CalculatePrices(ctx context.Context, optionIDs []string, regionID string) ([]domain.CalculatedPrice, error) {
	if c == nil {
		return nil, errors.New("pricing: client is nil")
	}
	regionID = strings.TrimSpace(regionID)
	if regionID == "" {
		return nil, errors.New("pricing: region id is required")
	}
	if len(optionIDs) == 0 {
		return nil, nil
	}

	var decoded calculatePricesResponse
	err := c.postJSON(ctx, "/prices/calculate", calculatePricesRequest{
		OptionIDs: optionIDs,
		RegionID:  regionID,
	}, &decoded)
	if err != nil {
		return nil, err
	}

	prices := make([]domain.CalculatedPrice, 0, len(decoded.Prices))
	for _, price := range decoded.Prices {
		prices = append(prices, domain.CalculatedPrice{
			ID:           strings.TrimSpace(price.ID),
			Amount:       price.Amount,
			CurrencyCode: strings.ToUpper(strings.TrimSpace(price.CurrencyCode)),
		})
	}
	return prices, nil
}

type listForCartResponse struct {
	ShippingOptions []struct {
		ID        string         `json:"id"`
		Name      string         `json:"name"`
		ProfileID string         `json:"profile_id"`
		Amount    *int64         `json:"amount"`
		Data      map[string]any `json:"data"`
	} `json:"shipping_options"`
}

// ListForCart lists the shipping options priced for the given cart.
func (c *Client) ListForCart(ctx context.Context, cartID string) ([]domain.PricedShippingOption, error) {
	if c == nil {
		return nil, errors.New("pricing: client is nil")
	}
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return nil, errors.New("pricing: cart id is required")
	}

	var decoded listForCartResponse
	err := c.getJSON(ctx, "/carts/"+url.PathEscape(cartID)+"/shipping-options", &decoded)
	if err != nil {
		return nil, err
	}

	options := make([]domain.PricedShippingOption, 0, len(decoded.ShippingOptions))
	for _, opt := range decoded.ShippingOptions {
		options = append(options, domain.PricedShippingOption{
			ID:        strings.TrimSpace(opt.ID),
			Name:      strings.TrimSpace(opt.Name),
			ProfileID: strings.TrimSpace(opt.ProfileID),
			Amount:    opt.Amount,
			Data:      opt.Data,
		})
	}
	return options, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pricing: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("pricing: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, target)
}

func (c *Client) getJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("pricing: build request: %w", err)
	}
	return c.do(req, target)
}

func (c *Client) do(req *http.Request, target any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pricing: call engine: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("pricing: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrCartNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("pricing: engine returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("pricing: decode response: %w", err)
	}
	return nil
}
