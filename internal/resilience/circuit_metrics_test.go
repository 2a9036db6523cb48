package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestBreakerMetricsTransitions(t *testing.T) {
	BreakerState.Reset()
	BreakerTransitions.Reset()

	b, clock := newTestBreaker(1, 0.5, 20*time.Millisecond)
	b.WithTarget("razorpay")
	ctx := context.Background()

	require.Equal(t, 0.0, testutil.ToFloat64(BreakerState.WithLabelValues("razorpay")))

	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, 1.0, testutil.ToFloat64(BreakerState.WithLabelValues("razorpay")))

	clock.advance(20 * time.Millisecond)
	require.True(t, b.Allow(ctx))
	require.Equal(t, 2.0, testutil.ToFloat64(BreakerState.WithLabelValues("razorpay")))

	b.Report(ctx, true)
	require.Equal(t, 0.0, testutil.ToFloat64(BreakerState.WithLabelValues("razorpay")))

	for _, tr := range [][2]string{{"closed", "open"}, {"open", "half_open"}, {"half_open", "closed"}} {
		got := testutil.ToFloat64(BreakerTransitions.WithLabelValues("razorpay", tr[0], tr[1]))
		require.Equal(t, 1.0, got, "%s -> %s", tr[0], tr[1])
	}
}
