package security_test

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pay/internal/security"
)

func serve(h security.Headers, req *http.Request) http.Header {
	rr := httptest.NewRecorder()
	h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)
	return rr.Result().Header
}

func TestHeadersOverTLS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://pay.example.com/api/health", nil)
	req.TLS = &tls.ConnectionState{}
	hdr := serve(security.Headers{Enable: true, EnableHSTS: true, HSTSIncludeSubdomains: true, NoStore: true}, req)

	require.Equal(t, "nosniff", hdr.Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", hdr.Get("X-Frame-Options"))
	require.Equal(t, "no-store", hdr.Get("Cache-Control"))
	require.Equal(t, "max-age=31536000; includeSubDomains", hdr.Get("Strict-Transport-Security"))
}

func TestHeadersHSTSNeedsTLS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://localhost/api/health", nil)
	hdr := serve(security.Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 60}, req)

	require.Empty(t, hdr.Get("Strict-Transport-Security"))
	require.Empty(t, hdr.Get("Cache-Control"))
	require.NotEmpty(t, hdr.Get("Content-Security-Policy"))
}

func TestHeadersDisabled(t *testing.T) {
	hdr := serve(security.Headers{EnableHSTS: true}, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Empty(t, hdr.Get("X-Content-Type-Options"))
}
