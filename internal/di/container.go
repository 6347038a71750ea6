package di

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/neonnoe/storefront-api/internal/notifications"
	"github.com/neonnoe/storefront-api/internal/platform/config"
	"github.com/neonnoe/storefront-api/internal/repositories"
	"github.com/neonnoe/storefront-api/internal/services"
)

// Repositories bundles the persistence contracts the services consume.
// Production wiring provides Firestore implementations; tests can supply stubs.
type Repositories struct {
	Zones        repositories.ServiceZoneRepository
	TaxRegions   repositories.TaxRegionRepository
	Orders       repositories.OrderRepository
	Fulfillments repositories.FulfillmentRepository
	Carts        repositories.CartRepository
	Products     repositories.ProductRepository
	Health       repositories.HealthRepository
}

// Integrations bundles outbound collaborators: the pricing engine, the email
// provider, the automation webhook, the event bus, and the label URL signer.
type Integrations struct {
	Pricing       services.FulfillmentPricingService
	PricedOptions services.PricedOptionLister
	Notifications notifications.Provider
	Webhooks      services.WebhookNotifier
	Events        services.EventPublisher
	Labels        services.LabelURLResolver
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Matrix        services.ShippingMatrixService
	Options       services.ShippingOptionService
	Notifications services.OrderNotificationService
	System        services.SystemService
}

// Container wires repositories, integrations, and services for runtime use.
type Container struct {
	Config   config.Config
	Services Services
}

// NewContainer constructs the runtime service graph.
func NewContainer(cfg config.Config, repos Repositories, integrations Integrations, logger *zap.Logger, build services.BuildInfo) (*Container, error) {
	svc, err := buildServices(cfg, repos, integrations, logger, build)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:   cfg,
		Services: svc,
	}, nil
}

func buildServices(cfg config.Config, repos Repositories, integrations Integrations, logger *zap.Logger, build services.BuildInfo) (Services, error) {
	var svc Services

	if repos.Zones == nil || repos.TaxRegions == nil {
		return Services{}, errors.New("di: zone and tax region repositories are required")
	}

	matrixSvc, err := services.NewShippingMatrixService(services.ShippingMatrixDeps{
		Zones:      repos.Zones,
		TaxRegions: repos.TaxRegions,
		Pricing:    integrations.Pricing,
		TTL:        cfg.Shipping.MatrixTTL,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping matrix service: %w", err)
	}
	svc.Matrix = matrixSvc

	optionSvc, err := services.NewShippingOptionService(services.ShippingOptionDeps{
		Carts:         repos.Carts,
		Products:      repos.Products,
		Options:       integrations.PricedOptions,
		Priorities:    typePriorities(cfg.Shipping.TypePriorities),
		FallbackNames: cfg.Shipping.FallbackOptionNames,
		Logger:        logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping option service: %w", err)
	}
	svc.Options = optionSvc

	provider := integrations.Notifications
	if provider == nil {
		provider = notifications.NopProvider{}
	}

	notificationSvc, err := services.NewOrderNotificationService(services.OrderNotificationDeps{
		Orders:       repos.Orders,
		Fulfillments: repos.Fulfillments,
		Provider:     provider,
		Webhooks:     integrations.Webhooks,
		Events:       integrations.Events,
		Labels:       integrations.Labels,
		Clock:        time.Now,
		Logger:       logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order notification service: %w", err)
	}
	svc.Notifications = notificationSvc

	if repos.Health != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: repos.Health,
			Clock:            time.Now,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func typePriorities(configured []config.TypePriority) []services.TypePriority {
	if len(configured) == 0 {
		return nil
	}
	out := make([]services.TypePriority, 0, len(configured))
	for _, entry := range configured {
		out = append(out, services.TypePriority{
			ProductType: entry.ProductType,
			OptionName:  entry.OptionName,
		})
	}
	return out
}
