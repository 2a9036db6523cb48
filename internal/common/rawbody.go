package common

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
)

type rawBodyKey struct{}

// ErrBodyTooLarge is returned when a raw body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("request body too large")

// WithRawBody stores the unparsed request bytes on the context.
func WithRawBody(ctx context.Context, body []byte) context.Context {
	return context.WithValue(ctx, rawBodyKey{}, body)
}

// RawBodyFromContext returns the bytes captured by CaptureRawBody.
func RawBodyFromContext(ctx context.Context) ([]byte, bool) {
	body, ok := ctx.Value(rawBodyKey{}).([]byte)
	return body, ok
}

// CaptureRawBody reads the request body exactly as sent, up to max bytes, and
// exposes it through RawBodyFromContext. r.Body is replaced with a reader over
// the same bytes.
func CaptureRawBody(max int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := ReadRaw(r.Body, max)
			if err != nil {
				if errors.Is(err, ErrBodyTooLarge) {
					JSONError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request entity too large", nil)
					return
				}
				JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r.WithContext(WithRawBody(r.Context(), body)))
		})
	}
}

// ReadRaw drains rc without any transformation.
func ReadRaw(rc io.ReadCloser, max int64) ([]byte, error) {
	if rc == nil || rc == http.NoBody {
		return []byte{}, nil
	}
	defer func() { _ = rc.Close() }()
	var reader io.Reader = rc
	if max > 0 {
		reader = io.LimitReader(rc, max+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if max > 0 && int64(len(body)) > max {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}
