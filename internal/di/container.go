package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hanko-field/orderengine/internal/payments"
	"github.com/hanko-field/orderengine/internal/platform/config"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/platform/events"
	"github.com/hanko-field/orderengine/internal/platform/health"
	"github.com/hanko-field/orderengine/internal/platform/idempotency"
	"github.com/hanko-field/orderengine/internal/platform/lock"
	"github.com/hanko-field/orderengine/internal/platform/observability"
	"github.com/hanko-field/orderengine/internal/repositories"
	firestoreRepo "github.com/hanko-field/orderengine/internal/repositories/firestore"
	"github.com/hanko-field/orderengine/internal/repositories/memory"
	"github.com/hanko-field/orderengine/internal/services"
	"github.com/hanko-field/orderengine/internal/shipping"
)

const probeTimeout = 1500 * time.Millisecond

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Orders       services.OrderService
	Metrics      *observability.Metrics
	Health       *health.Checker
	Idempotency  idempotency.Store
	Redis        redis.UniversalClient
	Firestore    *pfirestore.Provider

	closers []func(context.Context) error
}

// Option overrides one dependency. Tests use these to run the container without cloud services.
type Option func(*overrides)

type overrides struct {
	registry  repositories.Registry
	carrier   services.CarrierClient
	gateway   services.PaymentGateway
	publisher services.OrderEventPublisher
	locker    lock.Locker
	clock     func() time.Time
}

// WithRegistry replaces the configured store backend.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *overrides) { o.registry = reg }
}

// WithCarrier replaces the HTTP carrier client.
func WithCarrier(carrier services.CarrierClient) Option {
	return func(o *overrides) { o.carrier = carrier }
}

// WithPaymentGateway replaces the configured payment gateways.
func WithPaymentGateway(gateway services.PaymentGateway) Option {
	return func(o *overrides) { o.gateway = gateway }
}

// WithPublisher replaces the configured event sink.
func WithPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *overrides) { o.publisher = publisher }
}

// WithLocker replaces the configured lock backend.
func WithLocker(locker lock.Locker) Option {
	return func(o *overrides) { o.locker = locker }
}

// WithClock replaces time.Now for every service.
func WithClock(clock func() time.Time) Option {
	return func(o *overrides) { o.clock = clock }
}

// NewContainer constructs the runtime dependencies from cfg. On error every client opened so far is closed.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (c *Container, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.clock == nil {
		o.clock = time.Now
	}

	c = &Container{Config: cfg, Metrics: observability.NewMetrics()}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
			c = nil
		}
	}()

	var probes []health.Probe
	if err := c.openClients(ctx, cfg, o); err != nil {
		return nil, err
	}
	if c.Redis != nil {
		client := c.Redis
		probes = append(probes, health.Probe{Name: "redis", Timeout: probeTimeout, Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}

	reg, err := c.buildRegistry(cfg, o)
	if err != nil {
		return nil, err
	}
	c.Repositories = reg
	if pinger, ok := reg.(interface{ Ping(context.Context) error }); ok {
		probes = append(probes, health.Probe{Name: "store", Timeout: probeTimeout, Check: pinger.Ping})
	}

	c.Idempotency, err = c.buildIdempotencyStore(cfg)
	if err != nil {
		return nil, err
	}

	locker := o.locker
	if locker == nil {
		if cfg.Locks.Backend == config.BackendRedis {
			locker = lock.NewRedisLocker(c.Redis)
		} else {
			locker = lock.NewMemoryLocker()
		}
	}

	publisher := o.publisher
	if publisher == nil {
		publisher, err = c.buildPublisher(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	carrier := o.carrier
	if carrier == nil && cfg.Carrier.BaseURL != "" {
		client, err := shipping.NewClient(cfg.Carrier.BaseURL, cfg.Carrier.APIToken, shipping.WithTimeout(cfg.Carrier.Timeout))
		if err != nil {
			return nil, fmt.Errorf("build carrier client: %w", err)
		}
		carrier = client
	}
	if carrier == nil {
		logger.Warn("carrier not configured; every quote uses the fallback policy")
	}

	gateway := o.gateway
	if gateway == nil {
		gateway, err = buildPaymentManager(cfg, logger.Named("payments"))
		if err != nil {
			return nil, err
		}
	}

	c.Orders, err = buildOrderService(cfg, reg, carrier, gateway, publisher, locker, c.Metrics, o.clock, logger)
	if err != nil {
		return nil, err
	}
	c.Health = health.NewChecker(probes...)
	return c, nil
}

func (c *Container) openClients(ctx context.Context, cfg config.Config, o overrides) error {
	needsRedis := cfg.Idempotency.Backend == config.BackendRedis || (o.locker == nil && cfg.Locks.Backend == config.BackendRedis)
	if needsRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.Redis = client
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
	}

	needsFirestore := cfg.Idempotency.Backend == config.StoreBackendFirestore ||
		(o.registry == nil && cfg.Store.Backend == config.StoreBackendFirestore)
	if needsFirestore {
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return fmt.Errorf("build firestore client: %w", err)
		}
		c.Firestore = provider
		c.closers = append(c.closers, provider.Close)
	}
	return nil
}

func (c *Container) buildRegistry(cfg config.Config, o overrides) (repositories.Registry, error) {
	if o.registry != nil {
		return o.registry, nil
	}
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memory.NewStore(), nil
	case config.StoreBackendFirestore:
		reg, err := firestoreRepo.NewRegistry(c.Firestore)
		if err != nil {
			return nil, fmt.Errorf("build firestore registry: %w", err)
		}
		return reg, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func (c *Container) buildIdempotencyStore(cfg config.Config) (idempotency.Store, error) {
	switch cfg.Idempotency.Backend {
	case config.BackendMemory:
		return idempotency.NewMemoryStore(), nil
	case config.BackendRedis:
		return idempotency.NewRedisStore(c.Redis), nil
	case config.StoreBackendFirestore:
		return idempotency.NewFirestoreStore(c.Firestore, ""), nil
	default:
		return nil, fmt.Errorf("unknown idempotency backend %q", cfg.Idempotency.Backend)
	}
}

func (c *Container) buildPublisher(ctx context.Context, cfg config.Config) (services.OrderEventPublisher, error) {
	switch cfg.Events.Sink {
	case config.EventsSinkNone, "":
		return nil, nil
	case config.EventsSinkPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Events.PubSubProjectID)
		if err != nil {
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Events.PubSubTopic)
		topic.EnableMessageOrdering = true
		c.closers = append(c.closers, func(context.Context) error {
			topic.Stop()
			return client.Close()
		})
		publisher, err := events.NewPubSubPublisher(topic)
		if err != nil {
			return nil, fmt.Errorf("build pubsub publisher: %w", err)
		}
		return publisher, nil
	case config.EventsSinkKafka:
		publisher, err := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		if err != nil {
			return nil, fmt.Errorf("build kafka publisher: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return publisher.Close() })
		return publisher, nil
	default:
		return nil, fmt.Errorf("unknown events sink %q", cfg.Events.Sink)
	}
}

func buildPaymentManager(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	var gateway payments.Gateway
	switch cfg.Payments.Gateway {
	case "sandbox":
		gateway = payments.NewSandboxGateway()
	case "stripe":
		stripeGateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
			APIKey: cfg.Payments.StripeAPIKey,
			Logger: observability.EventLogger(logger),
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe gateway: %w", err)
		}
		gateway = stripeGateway
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", cfg.Payments.Gateway)
	}
	manager, err := payments.NewManager([]payments.Gateway{gateway}, payments.WithDefaultGateway(gateway.Name()))
	if err != nil {
		return nil, fmt.Errorf("build payment manager: %w", err)
	}
	return manager, nil
}

func buildOrderService(
	cfg config.Config,
	reg repositories.Registry,
	carrier services.CarrierClient,
	gateway services.PaymentGateway,
	publisher services.OrderEventPublisher,
	locker lock.Locker,
	metrics *observability.Metrics,
	clock func() time.Time,
	logger *zap.Logger,
) (services.OrderService, error) {
	calculator, err := services.NewOrderCalculator(reg.Products(), reg.Carts(), cfg.Checkout.DefaultWeightKg)
	if err != nil {
		return nil, fmt.Errorf("build order calculator: %w", err)
	}
	resolver, err := services.NewShippingResolver(services.ShippingResolverConfig{
		Carrier:               carrier,
		OriginPincode:         cfg.Checkout.OriginPincode,
		FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
		FlatFee:               cfg.Checkout.FlatShippingFee,
		QuoteTTL:              cfg.Checkout.QuoteTTL,
		SigningSecret:         cfg.Checkout.QuoteSigningSecret,
		Clock:                 clock,
		Logger:                observability.EventLogger(logger.Named("shipping")),
	})
	if err != nil {
		return nil, fmt.Errorf("build shipping resolver: %w", err)
	}
	inventory, err := services.NewInventoryService(reg.Inventory(), observability.EventLogger(logger.Named("inventory")))
	if err != nil {
		return nil, fmt.Errorf("build inventory service: %w", err)
	}
	reconciler := services.NewPaymentReconciler(services.PaymentReconcilerConfig{
		Gateway:         gateway,
		SignatureSecret: cfg.Payments.SignatureSecret,
		RefundTimeout:   cfg.Payments.RefundTimeout,
		Clock:           clock,
		Logger:          observability.EventLogger(logger.Named("payments")),
	})

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:             reg.Orders(),
		Carts:              reg.Carts(),
		Addresses:          reg.Addresses(),
		Counters:           reg.Counters(),
		Claims:             reg.PaymentClaims(),
		UnitOfWork:         reg,
		Calculator:         calculator,
		Shipping:           resolver,
		Inventory:          inventory,
		Payments:           reconciler,
		Locker:             locker,
		LockTTL:            cfg.Locks.TTL,
		Events:             publisher,
		Metrics:            metrics,
		Currency:           cfg.Checkout.Currency,
		TaxRate:            cfg.Checkout.TaxRate,
		CancellationWindow: cfg.Checkout.CancellationWindow,
		OrderNumberPrefix:  cfg.Checkout.OrderNumberPrefix,
		Clock:              clock,
		Logger:             observability.EventLogger(logger.Named("orders")),
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}
	return orders, nil
}

// RunJanitor purges expired idempotency entries until ctx is cancelled.
func (c *Container) RunJanitor(ctx context.Context, logger *zap.Logger) {
	if c == nil || c.Idempotency == nil {
		return
	}
	idempotency.RunJanitor(ctx, c.Idempotency, c.Config.Idempotency.CleanupInterval, c.Config.Idempotency.CleanupBatchSize, logger)
}

// Close releases repository clients, event sinks and Redis in reverse order of creation.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
