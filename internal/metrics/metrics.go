// Package metrics define las métricas Prometheus del servicio. Paquete
// standalone para evitar ciclos de import entre HTTP y services.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once
	registerErr  error

	// LoginAttempts cuenta intentos de login por resultado final.
	// outcome: authenticated|not_registered|invalid_credentials|denied|
	// enroll_required|provider_unavailable|challenge_failed|error
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Intentos de login por resultado",
	}, []string{"outcome"})

	// ProviderHealthChecks cuenta health checks del proveedor MFA por estado.
	ProviderHealthChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_health_checks_total",
		Help: "Health checks al proveedor MFA por estado",
	}, []string{"status"}) // healthy|unreachable|invalid_credentials

	// FailOpenLogins cuenta logins permitidos sin segundo factor por failmode open.
	FailOpenLogins = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fail_open_logins_total",
		Help: "Logins permitidos sin MFA por failmode open",
	})

	// ChallengeDuration mide la duración del challenge síncrono (push/call).
	ChallengeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "provider_challenge_duration_seconds",
		Help:    "Duración del challenge MFA síncrono",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
	})

	// HTTPRequestsTotal cuenta requests por método, path y status.
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration mide la latencia por método y path.
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Register registra las métricas y devuelve el handler para /metrics.
// Idempotente (AlreadyRegisteredError se ignora).
func Register(reg prometheus.Registerer) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	registerOnce.Do(func() {
		for _, c := range []prometheus.Collector{
			LoginAttempts,
			ProviderHealthChecks,
			FailOpenLogins,
			ChallengeDuration,
			HTTPRequestsTotal,
			HTTPRequestDuration,
		} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					registerErr = err
					return
				}
			}
		}
	})
	if registerErr != nil {
		return nil, registerErr
	}
	return promhttp.Handler(), nil
}
