package middlewares

import (
	"net/http"
	"strings"
)

// baseSecurityHeaders se emiten en toda respuesta. La CSP asume respuestas
// JSON y redirects; form-action 'self' cubre el POST del formulario de login.
var baseSecurityHeaders = map[string]string{
	"Referrer-Policy":                   "no-referrer",
	"X-Content-Type-Options":            "nosniff",
	"X-DNS-Prefetch-Control":            "off",
	"X-Permitted-Cross-Domain-Policies": "none",
	"Cross-Origin-Resource-Policy":      "same-site",
	"X-Frame-Options":                   "DENY",
	"Content-Security-Policy":           "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'self'",
	"Permissions-Policy":                "geolocation=(), microphone=(), camera=(), payment=()",
}

// isHTTPS detecta si el request llegó por HTTPS (directo o detrás de proxy).
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// WithSecurityHeaders inyecta cabeceras de seguridad por defecto.
func WithSecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range baseSecurityHeaders {
				h.Set(k, v)
			}
			if isHTTPS(r) {
				h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
