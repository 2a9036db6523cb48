package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// IdempotencyHeader carries the client supplied idempotency key.
const IdempotencyHeader = "Idempotency-Key"

// Idem provides an Idempotency-Key middleware backed by Redis, scoped per
// route.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func idemKey(route, key string) string {
	return "idem:" + Fingerprint(route, key)
}

// Fingerprint is the hex SHA-256 of parts joined with NUL, used to derive
// fixed-size redis keys from client supplied values.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

const idemPending = "pending"

// storedResponse is what a completed request leaves under its key.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body"`
}

// Middleware claims the key before the handler runs. A 2xx response is stored
// and replayed verbatim for later requests with the same key; any other
// outcome releases the key so the client can correct and retry. A request
// arriving while the first is still running gets 409.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ttl := i.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ctx := r.Context()
		key := idemKey(r.URL.Path, header)
		ok, err := i.R.SetNX(ctx, key, idemPending, ttl).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
			return
		}
		if !ok {
			i.replay(w, r, key)
			return
		}

		rec := &responseCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		bg := context.WithoutCancel(ctx)
		if rec.status < 200 || rec.status >= 300 {
			_ = i.R.Del(bg, key).Err()
			return
		}
		stored, err := json.Marshal(storedResponse{Status: rec.status, ContentType: rec.Header().Get("Content-Type"), Body: rec.body.Bytes()})
		if err == nil {
			err = i.R.Set(bg, key, stored, redis.KeepTTL).Err()
		}
		if err != nil {
			// nothing to replay; let the client retry instead of locking it out
			_ = i.R.Del(bg, key).Err()
		}
	})
}

func (i Idem) replay(w http.ResponseWriter, r *http.Request, key string) {
	raw, err := i.R.Get(r.Context(), key).Bytes()
	if errors.Is(err, redis.Nil) || (err == nil && string(raw) == idemPending) {
		JSONError(w, http.StatusConflict, "IDEMPOTENT_IN_PROGRESS", "a request with this idempotency key is in progress", nil)
		return
	}
	var prev storedResponse
	if err == nil {
		err = json.Unmarshal(raw, &prev)
	}
	if err != nil {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
		return
	}
	if prev.ContentType != "" {
		w.Header().Set("Content-Type", prev.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(prev.Status)
	_, _ = w.Write(prev.Body)
}

type responseCapture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *responseCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(p []byte) (int, error) {
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}
