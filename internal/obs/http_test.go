package obs_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/noah-isme/toko-pay/internal/obs"
)

func TestHTTPMetricsUseMatchedRoute(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("tokopay", []float64{10, 1}, registry)

	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/api/orders/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	for _, id := range []string{"order_a", "order_b"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/orders/"+id, nil))
		require.Equal(t, http.StatusNoContent, rr.Code)
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/orders/{id}", "204")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "unmatched", "404")))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.InFlight))
	require.Positive(t, testutil.CollectAndCount(metrics.ReqDur))
}

func TestHTTPMetricsRegisterTwice(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("tokopay", nil, registry)
	second := obs.NewHTTPMetrics("tokopay", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
}

func TestRoutePatternOverride(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("tokopay", nil, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "webhook"))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodPost, "webhook", "200")))
	require.Equal(t, "", obs.RoutePatternFromContext(context.Background()))
}

func TestParseBucketsCSV(t *testing.T) {
	require.Equal(t, []float64{5, 25.5}, obs.ParseBucketsCSV(" 5, x, -1, 0, 25.5"))
	require.Empty(t, obs.ParseBucketsCSV(""))
}

func TestTracingMiddlewareNamesSpanAfterRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := chi.NewRouter()
	r.Use(obs.TracingMiddleware)
	r.Post("/api/create-order", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/create-order", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "POST /api/create-order", spans[0].Name())
	require.Equal(t, codes.Error, spans[0].Status().Code)
}
