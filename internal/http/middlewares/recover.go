package middlewares

import (
	"net/http"

	"github.com/baluarte/authgate/internal/http/errors"
	"github.com/baluarte/authgate/internal/observability/logger"
)

// WithRecover convierte panics en 500 JSON. Va primero en la cadena para
// cubrir también a los demás middlewares.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic recovered",
						logger.Op("recover"),
						logger.Path(r.URL.Path),
						logger.Any("panic", rec),
					)
					errors.WriteError(w, errors.ErrInternalServerError.WithDetail("panic recovered"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
