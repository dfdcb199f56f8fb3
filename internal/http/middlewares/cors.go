package middlewares

import (
	"net/http"
	"strings"
)

func trimOrigin(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

// originAllowed matchea el Origin del request contra la lista configurada.
// "*" permite cualquiera pero siempre se refleja el origin concreto: con
// Allow-Credentials el wildcard literal está prohibido.
func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(origin, a) {
			return true
		}
	}
	return false
}

// WithCORS habilita cross-origin para los orígenes configurados. Con la
// lista vacía no se emite ningún header y los preflight igual responden 204.
func WithCORS(allowed []string) Middleware {
	alist := make([]string, len(allowed))
	for i, v := range allowed {
		alist[i] = trimOrigin(v)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()

			// Ayuda a caches/proxies
			h.Add("Vary", "Origin")
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")

			if origin := trimOrigin(r.Header.Get("Origin")); originAllowed(origin, alist) {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET,POST,HEAD,OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Remaining, Retry-After, Location")
				h.Set("Access-Control-Max-Age", "600") // preflight 10m
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
