package resilience

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// BreakerState is 0 closed, 1 open, 2 half-open.
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "breaker_state",
		Help: "Circuit breaker state per outbound target: 0=closed, 1=open, 2=half-open.",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "breaker_transition_total",
		Help: "Circuit breaker state transitions per outbound target.",
	}, []string{"target", "from", "to"})
)

func init() {
	for _, c := range []prometheus.Collector{BreakerState, BreakerTransitions} {
		if err := prometheus.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func setStateGauge(target string, s State) {
	BreakerState.WithLabelValues(target).Set(float64(s))
}

func countTransition(target string, from, to State) {
	BreakerTransitions.WithLabelValues(target, from.String(), to.String()).Inc()
}
