package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pay/internal/common"
	"github.com/noah-isme/toko-pay/internal/config"
	"github.com/noah-isme/toko-pay/internal/health"
	"github.com/noah-isme/toko-pay/internal/obs"
	"github.com/noah-isme/toko-pay/internal/order"
	"github.com/noah-isme/toko-pay/internal/payment"
	"github.com/noah-isme/toko-pay/internal/ratelimit"
	"github.com/noah-isme/toko-pay/internal/security"
)

// BodyMode selects how a route's request body is prepared before the handler runs.
type BodyMode int

const (
	// BodyNone leaves the body untouched.
	BodyNone BodyMode = iota
	// BodyJSON caps the body size for handlers that decode JSON.
	BodyJSON
	// BodyRaw captures the exact bytes for signature checks.
	BodyRaw
)

// Route is one entry of the HTTP route table.
type Route struct {
	Method     string
	Path       string
	Body       BodyMode
	CORS       bool
	Middleware []func(http.Handler) http.Handler
	Handler    http.HandlerFunc
}

// RouterOptions carries the observability switches chosen at startup.
type RouterOptions struct {
	Metrics       *obs.HTTPMetrics
	Tracing       bool
	ExposeMetrics bool
}

// Routes returns the route table for the payment API.
func Routes(cfg *config.Config, deps *Dependencies) []Route {
	svc := deps.PaymentService(cfg)
	payments := &payment.Handler{Svc: svc, KeyID: cfg.RazorpayKeyID}
	webhook := payment.Webhook{
		Svc:       svc,
		Secret:    cfg.RazorpayWebhookSecret,
		ReplayTTL: cfg.WebhookReplayTTL,
		BodyLimit: cfg.BodyLimit,
	}
	if deps.Redis != nil {
		webhook.Replay = payment.RedisReplayGuard{R: deps.Redis}
	}
	orders := &order.Handler{Store: deps.Store}
	probes := health.Handler{Probes: deps.Probes()}

	logger := deps.Logger
	limited := ratelimit.Handler{
		Limiter: deps.Limiter,
		Config:  ratelimit.Config{Key: ratelimit.ByClientIP, Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}.Middleware
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}.Middleware

	prefix := cfg.APIPrefix
	return []Route{
		{Method: http.MethodPost, Path: prefix + "/create-order", Body: BodyJSON, CORS: true,
			Middleware: []func(http.Handler) http.Handler{limited, idem}, Handler: payments.CreateOrder},
		{Method: http.MethodPost, Path: prefix + "/verify-payment", Body: BodyJSON, CORS: true,
			Middleware: []func(http.Handler) http.Handler{limited}, Handler: payments.VerifyPayment},
		{Method: http.MethodPost, Path: prefix + "/webhook", Body: BodyRaw, Handler: webhook.Handle},
		{Method: http.MethodGet, Path: prefix + "/orders/{id}", CORS: true, Handler: orders.Get},
		{Method: http.MethodGet, Path: prefix + "/health", CORS: true, Handler: probes.OK},
		{Method: http.MethodGet, Path: "/health/live", Handler: probes.Live},
		{Method: http.MethodGet, Path: "/health/ready", Handler: probes.Ready},
	}
}

// NewRouter mounts routes on a chi router with the shared middleware stack.
func NewRouter(cfg *config.Config, logger zerolog.Logger, routes []Route, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger, Quiet: []string{"/health/live", "/health/ready", "/metrics"}}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production", NoStore: true}.Middleware)

	// An empty origin list would make go-chi/cors allow any origin; without
	// configured origins the API is same-origin only.
	var corsMW func(http.Handler) http.Handler
	if len(cfg.CORSOrigin) > 0 {
		corsMW = cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigin,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", common.IdempotencyHeader},
			AllowCredentials: true,
			MaxAge:           300,
		})
	}
	preflight := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

	for _, rt := range routes {
		chain := make([]func(http.Handler) http.Handler, 0, len(rt.Middleware)+2)
		cross := rt.CORS && corsMW != nil
		if cross {
			chain = append(chain, corsMW)
		}
		switch rt.Body {
		case BodyJSON:
			chain = append(chain, security.BodyLimit{Max: cfg.BodyLimit}.Middleware)
		case BodyRaw:
			chain = append(chain, common.CaptureRawBody(cfg.BodyLimit))
		}
		chain = append(chain, rt.Middleware...)
		r.With(chain...).Method(rt.Method, rt.Path, rt.Handler)
		if cross && rt.Method != http.MethodGet {
			r.With(corsMW).Options(rt.Path, preflight)
		}
	}

	if opts.ExposeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}
