package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/toko-pay/internal/config"
	"github.com/noah-isme/toko-pay/internal/events"
	"github.com/noah-isme/toko-pay/internal/fulfilment"
	"github.com/noah-isme/toko-pay/internal/health"
	"github.com/noah-isme/toko-pay/internal/obs"
	"github.com/noah-isme/toko-pay/internal/order"
	"github.com/noah-isme/toko-pay/internal/payment"
	"github.com/noah-isme/toko-pay/internal/ratelimit"
	"github.com/noah-isme/toko-pay/internal/resilience"
)

// Dependencies enumerates the services shared by the HTTP handlers.
type Dependencies struct {
	Logger    zerolog.Logger
	Redis     *redis.Client
	DB        *pgxpool.Pool
	Store     order.Store
	Gateway   payment.Gateway
	Validator *validator.Validate
	Limiter   ratelimit.Allower
	Events    *events.Bus
	Reporter  obs.ErrorReporter
	Tasks     *asynq.Client

	closers []func() error
}

// Options toggles instrumentation on the connections New opens.
type Options struct {
	RedisMetrics bool
}

// New opens the connections the configuration asks for and assembles the
// order store, gateway driver, limiter and event bus.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	d := &Dependencies{
		Logger:    logger,
		Validator: validator.New(),
		Reporter:  obs.NopReporter{},
	}

	if cfg.RedisURL != "" {
		rdb, err := NewRedis(ctx, cfg.RedisURL, opts.RedisMetrics, logger)
		if err != nil {
			return nil, err
		}
		d.Redis = rdb
		d.closers = append(d.closers, rdb.Close)
	}

	if cfg.OrderStore == config.StorePostgres {
		if cfg.DBAutoMigrate {
			if err := order.Migrate(cfg.DatabaseURL); err != nil {
				d.Close()
				return nil, err
			}
		}
		pool, err := NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.DB = pool
		d.closers = append(d.closers, func() error { pool.Close(); return nil })
	}

	var db order.DBTX
	if d.DB != nil {
		db = d.DB
	}
	store, err := NewStore(cfg, d.Redis, db)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Store = store

	gw, err := NewGateway(cfg, logger)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Gateway = gw

	if d.Redis != nil {
		d.Limiter = ratelimit.NewRedisLimiter(d.Redis, "rl:")
	} else {
		d.Limiter = ratelimit.NewMemoryLimiter("rl")
	}

	d.Events = events.NewBus(events.LogNotifier{Logger: logger})
	if cfg.FulfilmentQueue {
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("parse queue redis url: %w", err)
		}
		d.Tasks = asynq.NewClient(opt)
		d.closers = append(d.closers, d.Tasks.Close)
		d.Events.Subscribe(fulfilment.Notifier{Client: d.Tasks})
	}
	return d, nil
}

// NewRedis connects and instruments a redis client.
func NewRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewPool opens a traced pgx pool.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "toko-pay"
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewStore selects the order store backend.
func NewStore(cfg *config.Config, rdb *redis.Client, db order.DBTX) (order.Store, error) {
	switch cfg.OrderStore {
	case config.StoreMemory, "":
		return order.NewMemoryStore(), nil
	case config.StoreRedis:
		if rdb == nil {
			return nil, errors.New("redis order store needs a redis client")
		}
		return order.NewRedisStore(rdb, cfg.LockTTL, 0), nil
	case config.StorePostgres:
		if db == nil {
			return nil, errors.New("postgres order store needs a database pool")
		}
		return order.NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("order store %q is not supported", cfg.OrderStore)
	}
}

// NewGateway selects the gateway driver.
func NewGateway(cfg *config.Config, logger zerolog.Logger) (payment.Gateway, error) {
	switch cfg.PaymentGateway {
	case config.GatewayREST, "":
		breaker := resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRatio, cfg.CircuitOpenFor)
		client := resilience.NewHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}, "razorpay", breaker, logger)
		client.Timeout = cfg.GatewayTimeout
		client.MaxAttempts = cfg.GatewayMaxAttempts
		client.BaseBackoff = cfg.RetryBase
		client.Jitter = cfg.RetryJitter
		return payment.Razorpay{
			KeyID:     cfg.RazorpayKeyID,
			KeySecret: cfg.RazorpayKeySecret,
			BaseURL:   cfg.RazorpayBaseURL,
			HTTP:      client,
		}, nil
	case config.GatewaySDK:
		return payment.NewRazorpaySDK(cfg.RazorpayKeyID, cfg.RazorpayKeySecret), nil
	case config.GatewaySandbox:
		return payment.Sandbox{}, nil
	default:
		return nil, fmt.Errorf("payment gateway %q is not supported", cfg.PaymentGateway)
	}
}

// PaymentService builds the order service over the shared dependencies.
func (d *Dependencies) PaymentService(cfg *config.Config) *payment.Service {
	return &payment.Service{
		Store:           d.Store,
		Gateway:         d.Gateway,
		Events:          d.Events,
		Validate:        d.Validator,
		KeySecret:       cfg.RazorpayKeySecret,
		DefaultCurrency: cfg.DefaultCurrency,
		Logger:          d.Logger.With().Str("component", "payment").Logger(),
		Reporter:        d.Reporter,
	}
}

// Probes returns the readiness probes for the opened connections.
func (d *Dependencies) Probes() map[string]health.Probe {
	probes := map[string]health.Probe{}
	if d.Redis != nil {
		rdb := d.Redis
		probes["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if d.Store != nil {
		probes["order_store"] = d.Store.Ping
	}
	return probes
}

// Close releases connections in reverse order of opening.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
