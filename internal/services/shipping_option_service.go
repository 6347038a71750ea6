package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	domain "github.com/neonnoe/storefront-api/internal/domain"
	"github.com/neonnoe/storefront-api/internal/repositories"
)

var (
	// ErrCartIDRequired signals a missing or blank cart identifier.
	ErrCartIDRequired = errors.New("shipping options: cart id is required")
	// ErrCartNotFound signals that the referenced cart does not exist.
	ErrCartNotFound = errors.New("shipping options: cart not found")
)

// TypePriority maps one product type to its dedicated shipping option name.
// Entries are evaluated in order; the first type present in the cart wins.
type TypePriority struct {
	ProductType string
	OptionName  string
}

// DefaultTypePriorities reflects the catalogue's oversized-goods hierarchy:
// instruments need their own packaging, merchandise ships generically.
func DefaultTypePriorities() []TypePriority {
	return []TypePriority{
		{ProductType: "Electric Bass", OptionName: "Electric Bass"},
		{ProductType: "Electric Guitar", OptionName: "Electric Guitar"},
		{ProductType: "Merchandise", OptionName: "Merchandise"},
	}
}

// DefaultFallbackOptionNames lists option names tried, in order, when no
// priority match produces a result.
func DefaultFallbackOptionNames() []string {
	return []string{"Default Shipping Profile", "Standard Shipping"}
}

// ShippingOptionDeps bundles collaborators for the option selection service.
type ShippingOptionDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Options  PricedOptionLister
	// Priorities defaults to DefaultTypePriorities when empty.
	Priorities []TypePriority
	// FallbackNames defaults to DefaultFallbackOptionNames when empty.
	FallbackNames []string
	Logger        *zap.Logger
}

type shippingOptionService struct {
	carts         repositories.CartRepository
	products      repositories.ProductRepository
	options       PricedOptionLister
	priorities    []TypePriority
	fallbackNames []string
	logger        *zap.Logger
}

var _ ShippingOptionService = (*shippingOptionService)(nil)

// NewShippingOptionService constructs the cart shipping option selector.
func NewShippingOptionService(deps ShippingOptionDeps) (ShippingOptionService, error) {
	if deps.Carts == nil {
		return nil, errors.New("shipping option service: cart repository is required")
	}
	if deps.Options == nil {
		return nil, errors.New("shipping option service: priced option lister is required")
	}

	priorities := deps.Priorities
	if len(priorities) == 0 {
		priorities = DefaultTypePriorities()
	}
	fallbacks := deps.FallbackNames
	if len(fallbacks) == 0 {
		fallbacks = DefaultFallbackOptionNames()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &shippingOptionService{
		carts:         deps.Carts,
		products:      deps.Products,
		options:       deps.Options,
		priorities:    priorities,
		fallbackNames: fallbacks,
		logger:        logger,
	}, nil
}

// SelectForCart resolves the single option offered to the cart: options are
// filtered by the product-type driven name priority with fallbacks, then the
// most expensive survivor wins.
func (s *shippingOptionService) SelectForCart(ctx context.Context, cartID string) ([]PricedShippingOption, error) {
	if ctx == nil {
		return nil, errors.New("shipping option service: context is required")
	}
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return nil, ErrCartIDRequired
	}

	cart, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	if len(cart.Items) == 0 {
		return []PricedShippingOption{}, nil
	}

	typesInCart := s.collectProductTypes(ctx, cart)
	targetName := s.targetOptionName(typesInCart)

	options, err := s.options.ListForCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if len(options) == 0 {
		return []PricedShippingOption{}, nil
	}

	candidates := filterByName(options, targetName)
	for _, fallback := range s.fallbackNames {
		if len(candidates) > 0 {
			break
		}
		candidates = filterByName(options, fallback)
	}
	if len(candidates) == 0 {
		candidates = options
	}

	selected := mostExpensiveOption(candidates)
	if selected == nil {
		s.logger.Warn("shipping options: no selectable option for cart", zap.String("cart_id", cartID))
		return []PricedShippingOption{}, nil
	}

	s.logger.Info("shipping options: selected option for cart",
		zap.String("cart_id", cartID),
		zap.String("option_id", selected.ID),
		zap.String("option_name", selected.Name))
	return []PricedShippingOption{*selected}, nil
}

// collectProductTypes batch-loads the type values for every product in the
// cart. Lookup failures degrade to an empty type set rather than failing the
// request.
func (s *shippingOptionService) collectProductTypes(ctx context.Context, cart Cart) map[string]struct{} {
	types := make(map[string]struct{})
	if s.products == nil {
		return types
	}

	ids := make([]string, 0, len(cart.Items))
	seen := make(map[string]struct{}, len(cart.Items))
	for _, item := range cart.Items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			s.logger.Warn("shipping options: cart item missing product id",
				zap.String("cart_id", cart.ID),
				zap.String("item_id", item.ID))
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return types
	}

	byProduct, err := s.products.ListTypes(ctx, ids)
	if err != nil {
		s.logger.Warn("shipping options: product type lookup failed",
			zap.String("cart_id", cart.ID),
			zap.Error(err))
		return types
	}
	for _, value := range byProduct {
		if value != "" {
			types[value] = struct{}{}
		}
	}
	return types
}

func (s *shippingOptionService) targetOptionName(typesInCart map[string]struct{}) string {
	for _, priority := range s.priorities {
		if _, ok := typesInCart[priority.ProductType]; ok {
			return priority.OptionName
		}
	}
	return ""
}

func filterByName(options []domain.PricedShippingOption, name string) []domain.PricedShippingOption {
	if name == "" {
		return nil
	}
	var matched []domain.PricedShippingOption
	for _, option := range options {
		if option.Name == name {
			matched = append(matched, option)
		}
	}
	return matched
}

// mostExpensiveOption picks the option with the highest amount. Options
// without an amount lose to priced ones; among equals the earliest wins.
func mostExpensiveOption(options []domain.PricedShippingOption) *domain.PricedShippingOption {
	var selected *domain.PricedShippingOption
	for i := range options {
		option := &options[i]
		switch {
		case selected == nil:
			selected = option
		case option.Amount != nil && selected.Amount != nil && *option.Amount > *selected.Amount:
			selected = option
		case option.Amount != nil && selected.Amount == nil:
			selected = option
		}
	}
	return selected
}
