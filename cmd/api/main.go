package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/neonnoe/storefront-api/internal/di"
	"github.com/neonnoe/storefront-api/internal/handlers"
	"github.com/neonnoe/storefront-api/internal/notifications"
	"github.com/neonnoe/storefront-api/internal/platform/auth"
	"github.com/neonnoe/storefront-api/internal/platform/config"
	platformevents "github.com/neonnoe/storefront-api/internal/platform/events"
	pfirestore "github.com/neonnoe/storefront-api/internal/platform/firestore"
	"github.com/neonnoe/storefront-api/internal/platform/observability"
	"github.com/neonnoe/storefront-api/internal/platform/secrets"
	"github.com/neonnoe/storefront-api/internal/platform/storage"
	"github.com/neonnoe/storefront-api/internal/pricing"
	"github.com/neonnoe/storefront-api/internal/repositories"
	fsrepo "github.com/neonnoe/storefront-api/internal/repositories/firestore"
	"github.com/neonnoe/storefront-api/internal/services"
	"github.com/neonnoe/storefront-api/internal/webhooks"
)

const shutdownTimeout = 10 * time.Second

func main() {
	started := time.Now().UTC()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := observability.WithLogger(context.Background(), logger)

	env, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, env, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() { _ = fetcher.Close() }()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(env)...),
	)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	build := buildInfoFromEnv(env, cfg, started)

	provider := pfirestore.NewProvider(cfg.Firestore)
	defer func() { _ = provider.Close(context.Background()) }()

	fsClient, err := provider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to connect to firestore", zap.Error(err))
	}

	repos, err := buildRepositories(provider, fsClient, fetcher)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	integrations, cleanup, err := buildIntegrations(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise integrations", zap.Error(err))
	}
	defer cleanup()

	container, err := di.NewContainer(cfg, repos, integrations, logger, build)
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}

	router := buildRouter(cfg, container, build, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("storefront api listening",
			zap.String("addr", server.Addr),
			zap.String("version", build.Version),
			zap.String("environment", cfg.Security.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal("server failed", zap.Error(err))
	case sig := <-signals:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		_ = server.Close()
	}
}

// newSecretFetcher builds the Secret Manager fetcher used to resolve
// secret:// and sm:// references in configuration values.
func newSecretFetcher(ctx context.Context, env map[string]string, logger *zap.Logger) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger),
		secrets.WithFallbackFile(".secrets.local"),
	}

	if envName := strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"]); envName != "" {
		opts = append(opts, secrets.WithEnvironment(envName))
	}

	project := strings.TrimSpace(env["API_SECRET_DEFAULT_PROJECT_ID"])
	if project == "" {
		project = strings.TrimSpace(env["API_FIRESTORE_PROJECT_ID"])
	}
	if project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}

	if mapping := parsePairs(env["API_SECRET_PROJECT_MAP"]); len(mapping) > 0 {
		opts = append(opts, secrets.WithProjectMap(mapping))
	}
	if pins := parsePairs(env["API_SECRET_VERSION_PINS"]); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if file := strings.TrimSpace(env["API_SECRET_CREDENTIALS_FILE"]); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// parsePairs parses "key=value,key=value" lists into a map, skipping
// malformed entries.
func parsePairs(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	pairs := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			continue
		}
		pairs[key] = value
	}
	if len(pairs) == 0 {
		return nil
	}
	return pairs
}

// requiredSecretNames lists the configuration fields that must resolve to a
// non-empty value. A field is only required when its environment value is a
// secret reference, so plaintext local setups keep working.
func requiredSecretNames(env map[string]string) []string {
	var names []string
	if isSecretRef(env["API_NOTIFICATIONS_POSTMARK_TOKEN"]) {
		names = append(names, "Notifications.PostmarkServerToken")
	}
	if isSecretRef(env["API_WEBHOOK_SIGNING_SECRET"]) {
		names = append(names, "Webhooks.SigningSecret")
	}
	if isSecretRef(env["API_STORAGE_SIGNER_KEY"]) {
		names = append(names, "Storage.SignerKey")
	}
	return names
}

func isSecretRef(value string) bool {
	value = strings.TrimSpace(value)
	return strings.HasPrefix(value, "secret://") || strings.HasPrefix(value, "sm://")
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Security.Environment,
		StartedAt:   started,
	}
}

func buildRepositories(provider *pfirestore.Provider, client *firestore.Client, fetcher *secrets.Fetcher) (di.Repositories, error) {
	zones, err := fsrepo.NewServiceZoneRepository(provider)
	if err != nil {
		return di.Repositories{}, err
	}
	taxRegions, err := fsrepo.NewTaxRegionRepository(provider)
	if err != nil {
		return di.Repositories{}, err
	}
	orders, err := fsrepo.NewOrderRepository(provider)
	if err != nil {
		return di.Repositories{}, err
	}
	fulfillments, err := fsrepo.NewFulfillmentRepository(provider)
	if err != nil {
		return di.Repositories{}, err
	}
	carts, err := fsrepo.NewCartRepository(provider)
	if err != nil {
		return di.Repositories{}, err
	}
	products, err := fsrepo.NewProductRepository(provider)
	if err != nil {
		return di.Repositories{}, err
	}
	health, err := newHealthRepository(client, fetcher)
	if err != nil {
		return di.Repositories{}, err
	}
	return di.Repositories{
		Zones:        zones,
		TaxRegions:   taxRegions,
		Orders:       orders,
		Fulfillments: fulfillments,
		Carts:        carts,
		Products:     products,
		Health:       health,
	}, nil
}

// newHealthRepository probes the dependencies surfaced by the readiness
// endpoint. Each probe distinguishes "reachable" from "has data": an empty
// database and a missing probe secret both count as healthy.
func newHealthRepository(client *firestore.Client, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := []repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				if client == nil {
					return errors.New("firestore client not configured")
				}
				_, err := client.Collections(ctx).Next()
				if err == nil || errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		},
	}
	if fetcher != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name: "secret-manager",
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, "secret://system/healthz?version=latest")
				if err == nil || status.Code(err) == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildIntegrations(ctx context.Context, cfg config.Config, logger *zap.Logger) (di.Integrations, func(), error) {
	cleanup := func() {}
	integrations := di.Integrations{
		PricedOptions: pricing.Disabled{},
	}

	if cfg.Pricing.BaseURL != "" {
		pricingClient, err := pricing.NewClient(pricing.ClientConfig{
			BaseURL: cfg.Pricing.BaseURL,
			Timeout: cfg.Pricing.Timeout,
		})
		if err != nil {
			return di.Integrations{}, cleanup, fmt.Errorf("pricing client: %w", err)
		}
		integrations.Pricing = pricingClient
		integrations.PricedOptions = pricingClient
	} else {
		logger.Warn("pricing engine not configured; calculated prices and cart option listing disabled")
	}

	if cfg.Notifications.PostmarkServerToken != "" {
		emailProvider, err := notifications.NewPostmarkProvider(notifications.PostmarkProviderConfig{
			ServerToken: cfg.Notifications.PostmarkServerToken,
			From:        cfg.Notifications.FromAddress,
		})
		if err != nil {
			return di.Integrations{}, cleanup, fmt.Errorf("postmark provider: %w", err)
		}
		integrations.Notifications = emailProvider
	} else {
		logger.Warn("postmark token not configured; order emails disabled")
	}

	notifier, err := webhooks.NewNotifier(webhooks.NotifierConfig{
		Endpoint:      cfg.Webhooks.AutomationURL,
		SigningSecret: cfg.Webhooks.SigningSecret,
		Logger:        logger,
	})
	if err != nil {
		return di.Integrations{}, cleanup, fmt.Errorf("webhook notifier: %w", err)
	}
	integrations.Webhooks = notifier

	if cfg.Events.Topic != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			return di.Integrations{}, cleanup, fmt.Errorf("pubsub client: %w", err)
		}
		cleanup = func() { _ = pubsubClient.Close() }
		publisher, err := platformevents.NewPubSubEventPublisher(pubsubClient.Topic(cfg.Events.Topic))
		if err != nil {
			return di.Integrations{}, cleanup, fmt.Errorf("event publisher: %w", err)
		}
		integrations.Events = publisher
	}

	if cfg.Storage.SignerKey != "" && cfg.Storage.LabelsBucket != "" {
		signer, err := storage.NewServiceAccountSignerFromJSON([]byte(cfg.Storage.SignerKey))
		if err != nil {
			return di.Integrations{}, cleanup, fmt.Errorf("storage signer: %w", err)
		}
		storageClient, err := storage.NewClient(signer)
		if err != nil {
			return di.Integrations{}, cleanup, fmt.Errorf("storage client: %w", err)
		}
		resolver, err := storage.NewLabelResolver(storageClient, cfg.Storage.LabelsBucket, cfg.Storage.LabelURLTTL)
		if err != nil {
			return di.Integrations{}, cleanup, fmt.Errorf("label resolver: %w", err)
		}
		integrations.Labels = resolver
	} else {
		logger.Info("label url signing not configured; shipment emails omit label links")
	}

	return integrations, cleanup, nil
}

func buildRouter(cfg config.Config, container *di.Container, build services.BuildInfo, logger *zap.Logger) chi.Router {
	limiter := handlers.NewSimpleRateLimiter(cfg.RateLimits.RevalidatePerMinute, time.Minute, nil)
	matrixHandlers := handlers.NewShippingMatrixHandlers(container.Services.Matrix, limiter, logger)
	optionHandlers := handlers.NewShippingOptionHandlers(container.Services.Options, logger)
	eventHandlers := handlers.NewInternalEventHandlers(container.Services.Notifications, logger)

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(build)}
	if container.Services.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(container.Services.System))
	}

	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithStoreRoutes(func(r chi.Router) {
			r.Get("/shipping-matrix", matrixHandlers.GetShippingMatrix)
			r.Get("/shipping-options", optionHandlers.GetShippingOptions)
		}),
		handlers.WithInternalRoutes(func(r chi.Router) {
			r.Post("/events", eventHandlers.HandlePush)
		}),
		handlers.WithInternalMiddlewares(buildOIDCMiddleware(cfg, logger)),
	)
}

// buildOIDCMiddleware verifies Google-signed tokens on internal endpoints.
// Pub/Sub push subscriptions authenticate with an OIDC token whose audience
// matches the push endpoint URL.
func buildOIDCMiddleware(cfg config.Config, logger *zap.Logger) func(http.Handler) http.Handler {
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL,
		auth.WithJWKSLogger(observability.NewPrintfAdapter(logger)),
	)
	validator := auth.NewOIDCValidator(cache)

	audience := strings.TrimSpace(cfg.Events.PushAudience)
	if audience == "" {
		audience = strings.TrimSpace(cfg.Security.OIDC.Audience)
	}
	if audience == "" {
		logger.Warn("oidc audience not configured; internal endpoints reject all tokens")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}
