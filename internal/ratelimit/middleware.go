package ratelimit

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/toko-pay/internal/common"
)

// Allower decides whether one more event for key fits in the window.
type Allower interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// Config is a per-route policy: Max events per Window for each Key.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler applies Config through Limiter. Limiter failures fail open and are
// passed to OnError.
type Handler struct {
	Limiter Allower
	Config  Config
	OnError func(error)
}

// Middleware answers 429 with Retry-After once the caller's budget is spent.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil || h.Config.Key == nil {
		return next
	}
	limit := strconv.Itoa(max(h.Config.Max, 0))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, remaining, reset, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}
		hdr := w.Header()
		hdr.Set("X-RateLimit-Limit", limit)
		hdr.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		hdr.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if ok {
			next.ServeHTTP(w, r)
			return
		}
		hdr.Set("Retry-After", strconv.Itoa(retryAfter(time.Until(reset))))
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
	})
}

// retryAfter rounds up to whole seconds, with a floor of one.
func retryAfter(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 1)
}

// ByClientIP keys requests by route path and caller address. RemoteAddr is
// expected to be normalised by chi's RealIP middleware upstream.
func ByClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return r.URL.Path + ":" + host
}
