// Package router arma el árbol de rutas del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baluarte/authgate/internal/cache"
	"github.com/baluarte/authgate/internal/config"
	authctrl "github.com/baluarte/authgate/internal/http/controllers/auth"
	httperrors "github.com/baluarte/authgate/internal/http/errors"
	mw "github.com/baluarte/authgate/internal/http/middlewares"
	"github.com/baluarte/authgate/internal/rate"
	"github.com/baluarte/authgate/internal/store/core"
)

// Deps contiene todo lo necesario para construir el router.
type Deps struct {
	Cfg *config.Config

	AuthControllers *authctrl.Controllers

	// MetricsHandler sirve /metrics (promhttp). nil = sin endpoint.
	MetricsHandler http.Handler

	// LoginLimiter limita POST /login y POST /register por IP. Opcional.
	LoginLimiter rate.Limiter

	// Readiness
	Repo  core.UserRepository
	Cache cache.Client
}

// New construye el router completo con la cadena de middlewares global.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Orden: recover primero (envuelve todo), después request-id y logging
	// para que cada request quede trazado aunque falle adelante.
	r.Use(mw.WithRecover())
	r.Use(mw.WithRequestID())
	r.Use(mw.WithLogging())
	r.Use(mw.WithCORS(deps.Cfg.Server.CORSAllowedOrigins))
	r.Use(mw.WithSecurityHeaders())

	ac := deps.AuthControllers

	// Endpoints de autenticación: nunca cacheables, con rate limit por IP.
	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore())
		r.Use(mw.WithRateLimit(mw.RateLimitConfig{
			Limiter: deps.LoginLimiter,
			KeyFunc: mw.IPPathRateKey,
		}))

		r.Post("/register", ac.Register.Register)
		r.Post("/login", ac.Login.Login)
		r.Get("/duo-callback", ac.Callback.Callback)
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore())
		r.Get("/logout", ac.Logout.Logout)
		r.Get("/", ac.Home.Home)
	})

	// Operacionales
	r.Get("/healthz", healthz(deps))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	return r
}

// healthz verifica las dependencias propias (store y cache), no el proveedor
// MFA: su disponibilidad es política de login (failmode), no readiness.
func healthz(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if deps.Repo != nil {
			if err := deps.Repo.Ping(ctx); err != nil {
				httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithDetail("store no disponible"))
				return
			}
		}
		if deps.Cache != nil {
			if err := deps.Cache.Ping(ctx); err != nil {
				httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithDetail("cache no disponible"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
