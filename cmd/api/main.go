package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hanko-field/orderengine/internal/di"
	"github.com/hanko-field/orderengine/internal/handlers"
	"github.com/hanko-field/orderengine/internal/platform/auth"
	"github.com/hanko-field/orderengine/internal/platform/config"
	"github.com/hanko-field/orderengine/internal/platform/idempotency"
	"github.com/hanko-field/orderengine/internal/platform/observability"
	"github.com/hanko-field/orderengine/internal/platform/secrets"
)

const carrierWebhookSecret = "carrier"

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("orders")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise dependencies", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("dependency close error", zap.Error(err))
		}
	}()

	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	var janitorWG sync.WaitGroup
	janitorWG.Add(1)
	go func() {
		defer janitorWG.Done()
		container.RunJanitor(janitorCtx, logger.Named("idempotency"))
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithAuthLogger(logger.Named("auth")))

	idempotencyMiddleware := idempotency.Middleware(
		container.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, container.Orders,
		handlers.WithCheckoutRateLimit(cfg.Checkout.PreviewRateLimit, time.Now),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Orders,
		handlers.WithOrderIdempotency(idempotencyMiddleware),
	)
	fulfillmentHandlers := handlers.NewFulfillmentHandlers(container.Orders,
		handlers.WithFulfillmentIdempotency(idempotencyMiddleware),
		handlers.WithFulfillmentLogger(logger.Named("fulfillment")),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		container.Metrics.HTTPMiddleware(),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(container.Health)),
		handlers.WithMetricsHandler(container.Metrics.Handler()),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithInternalRoutes(fulfillmentHandlers.InternalRoutes),
		handlers.WithWebhookRoutes(fulfillmentHandlers.WebhookRoutes),
	}
	if mw := buildOIDCMiddleware(logger.Named("auth"), cfg); mw != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(mw))
	}
	if mw := buildHMACMiddleware(logger.Named("auth"), cfg, container); mw != nil {
		opts = append(opts, handlers.WithWebhookMiddlewares(mw))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("order engine listening", zap.String("store", cfg.Store.Backend), zap.String("events", cfg.Events.Sink))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	janitorCancel()
	janitorWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildOIDCMiddleware protects /internal with Google-signed service tokens. Without an audience every
// internal call is rejected.
func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if strings.TrimSpace(cfg.Security.OIDC.Audience) == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	validator := auth.NewOIDCValidator(auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, nil), logger)
	return validator.RequireOIDC(cfg.Security.OIDC.Audience, cfg.Security.OIDC.Issuers)
}

// buildHMACMiddleware verifies carrier callbacks. Nonces live in Redis when the container has a client so
// replays are caught across instances.
func buildHMACMiddleware(logger *zap.Logger, cfg config.Config, container *di.Container) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.HMAC.Secrets[carrierWebhookSecret]) == "" {
		logger.Warn("auth: carrier webhook secret not configured; webhooks are unauthenticated")
		return nil
	}
	var nonces auth.NonceStore = auth.NewInMemoryNonceStore()
	if container.Redis != nil {
		nonces = auth.NewRedisNonceStore(container.Redis)
	}
	validator := auth.NewHMACValidator(auth.StaticSecrets(cfg.Security.HMAC.Secrets), nonces,
		auth.WithHMACLogger(logger),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACWindow(cfg.Security.HMAC.ClockSkew, cfg.Security.HMAC.NonceTTL),
	)
	return validator.RequireHMAC(carrierWebhookSecret)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("ORDERS_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("ORDERS_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("ORDERS_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("ORDERS_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projects := parseKeyValueList(lookup("ORDERS_SECRET_PROJECT_IDS")); len(projects) > 0 {
		normalised := make(map[string]string, len(projects))
		for label, project := range projects {
			normalised[strings.ToLower(label)] = project
		}
		opts = append(opts, secrets.WithProjectMap(normalised))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := secretVersionPins(lookup("ORDERS_SECRET_VERSION_PINS")); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile := lookup("ORDERS_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets the engine refuses to start without.
func requiredSecretNames(env map[string]string) []string {
	required := []string{
		"Checkout.QuoteSigningSecret",
		"Payments.SignatureSecret",
	}
	gateway := strings.ToLower(strings.TrimSpace(env["ORDERS_PAYMENTS_GATEWAY"]))
	if gateway == "" || gateway == "stripe" {
		required = append(required, "Payments.StripeAPIKey")
	}
	if strings.TrimSpace(env["ORDERS_CARRIER_BASE_URL"]) != "" {
		required = append(required, "Carrier.APIToken")
	}
	for name := range parseKeyValueList(env["ORDERS_SECURITY_HMAC_SECRETS"]) {
		if strings.EqualFold(name, carrierWebhookSecret) {
			required = append(required, fmt.Sprintf("Security.HMAC.Secrets[%s]", carrierWebhookSecret))
		}
	}
	return required
}

// secretVersionPins parses "ref=version" pairs. Bare and sm:// references are normalised to secret://.
func secretVersionPins(raw string) map[string]string {
	pins := make(map[string]string)
	for ref, version := range parseKeyValueList(raw) {
		switch {
		case strings.HasPrefix(ref, "sm://"):
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		case !strings.HasPrefix(ref, "secret://"):
			ref = "secret://" + ref
		}
		pins[ref] = version
	}
	return pins
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
