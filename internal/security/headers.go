package security

import (
	"fmt"
	"net/http"
)

const defaultHSTSMaxAge = 365 * 24 * 60 * 60

// Headers sets response headers for a JSON-only payment API.
type Headers struct {
	Enable bool
	// EnableHSTS only takes effect on TLS requests.
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	NoStore               bool
}

func (h Headers) static() [][2]string {
	out := [][2]string{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"Permissions-Policy", "geolocation=(), microphone=(), payment=(self)"},
	}
	if h.NoStore {
		out = append(out, [2]string{"Cache-Control", "no-store"})
	}
	return out
}

func (h Headers) hsts() string {
	age := h.HSTSMaxAge
	if age <= 0 {
		age = defaultHSTSMaxAge
	}
	v := fmt.Sprintf("max-age=%d", age)
	if h.HSTSIncludeSubdomains {
		v += "; includeSubDomains"
	}
	return v
}

// Middleware writes the headers before the handler runs.
func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	static := h.static()
	hsts := ""
	if h.EnableHSTS {
		hsts = h.hsts()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		for _, kv := range static {
			hdr.Set(kv[0], kv[1])
		}
		if hsts != "" && r.TLS != nil {
			hdr.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}
