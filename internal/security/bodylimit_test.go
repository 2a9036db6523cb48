package security_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pay/internal/security"
)

func echoBody(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		_, _ = w.Write(data)
	})
}

func TestBodyLimit(t *testing.T) {
	cases := []struct {
		name          string
		max           int64
		body          string
		contentLength int64
		wantStatus    int
	}{
		{name: "within limit", max: 10, body: `{"a":1}`, wantStatus: http.StatusOK},
		{name: "exactly at limit", max: 7, body: `{"a":1}`, wantStatus: http.StatusOK},
		{name: "streamed oversized", max: 5, body: "excessive", contentLength: -1, wantStatus: http.StatusRequestEntityTooLarge},
		{name: "declared oversized", max: 5, body: "12", contentLength: 100, wantStatus: http.StatusRequestEntityTooLarge},
		{name: "disabled", max: 0, body: strings.Repeat("x", 64), wantStatus: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := security.BodyLimit{Max: tc.max}.Middleware(echoBody(t))
			req := httptest.NewRequest(http.MethodPost, "/api/create-order", strings.NewReader(tc.body))
			if tc.contentLength != 0 {
				req.ContentLength = tc.contentLength
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			require.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus == http.StatusOK {
				require.Equal(t, tc.body, rr.Body.String())
			} else {
				require.Contains(t, rr.Body.String(), "BODY_TOO_LARGE")
			}
		})
	}
}

func TestBodyLimitSkipsEmptyBody(t *testing.T) {
	called := false
	h := security.BodyLimit{Max: 1}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.True(t, called)
}
