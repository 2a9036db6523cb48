package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady toggles the process-wide readiness flag; cmd/api clears it when
// shutdown starts.
func SetReady(v bool) {
	ready.Store(v)
}

// Probe pings a single dependency.
type Probe func(ctx context.Context) error

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	// Probes maps dependency name (redis, postgres) to its probe. Empty means
	// the process has no external dependencies.
	Probes  map[string]Probe
	Timeout time.Duration
}

// OK is the lightweight application health check mounted under the API prefix.
func (h Handler) OK(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes every dependency concurrently, each under its own timeout,
// and answers 503 if any fails or the process is draining.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting down"})
		return
	}
	var (
		mu     sync.Mutex
		status = make(map[string]string, len(h.Probes))
		g      errgroup.Group
	)
	for name, probe := range h.Probes {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
			defer cancel()
			err := probe(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				status[name] = err.Error()
				return err
			}
			status[name] = "ok"
			return nil
		})
	}
	code := http.StatusOK
	if g.Wait() != nil {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.Timeout
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
