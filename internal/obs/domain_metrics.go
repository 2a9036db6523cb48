package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrderCreateTotal counts gateway order creation outcomes.
	OrderCreateTotal *prometheus.CounterVec
	// GatewayLatency records gateway call latency in milliseconds.
	GatewayLatency *prometheus.HistogramVec
	// PaymentVerificationTotal counts signature checks per confirmation path.
	PaymentVerificationTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// OrderTransitionTotal counts applied order status transitions.
	OrderTransitionTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OrderCreateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_create_total",
			Help:      "Count of gateway order creation outcomes.",
		}, []string{"gateway", "result"})
		GatewayLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_ms",
			Help:      "Latency of payment gateway calls in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"gateway", "operation"})
		PaymentVerificationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verification_total",
			Help:      "Count of payment signature verifications by path and result.",
		}, []string{"path", "result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by event and outcome.",
		}, []string{"event", "result"})
		OrderTransitionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transition_total",
			Help:      "Count of applied order status transitions.",
		}, []string{"from", "to", "source"})

		OrderCreateTotal = register(reg, OrderCreateTotal)
		GatewayLatency = register(reg, GatewayLatency)
		PaymentVerificationTotal = register(reg, PaymentVerificationTotal)
		PaymentWebhookTotal = register(reg, PaymentWebhookTotal)
		OrderTransitionTotal = register(reg, OrderTransitionTotal)
	})
}
