package duo

import (
	"context"
	"errors"

	"golang.org/x/sync/singleflight"
)

// HealthStatus clasifica el resultado de un health check. Las fallas de red
// se reportan como estado, nunca como panic ni error sin clasificar.
type HealthStatus string

const (
	Healthy HealthStatus = "healthy"
	// Unreachable: el endpoint no responde (DNS, TCP, TLS, timeout, 5xx).
	Unreachable HealthStatus = "unreachable"
	// InvalidCredentials: el endpoint responde pero rechaza las credenciales
	// de aplicación (ikey/skey/host mal configurados).
	InvalidCredentials HealthStatus = "invalid_credentials"
)

type healthProbe struct {
	group singleflight.Group
}

// Health verifica disponibilidad del proveedor y validez de las credenciales
// de aplicación. Probes concurrentes se colapsan en una sola llamada
// (singleflight): N logins simultáneos no generan N pings.
func (c *Client) Health(ctx context.Context) HealthStatus {
	v, _, _ := c.health.group.Do("health", func() (any, error) {
		return c.healthOnce(ctx), nil
	})
	return v.(HealthStatus)
}

func (c *Client) healthOnce(ctx context.Context) HealthStatus {
	if err := c.Ping(ctx); err != nil {
		return Unreachable
	}
	if err := c.Check(ctx); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			// el endpoint respondió pero rechazó ikey/skey
			return InvalidCredentials
		}
		return Unreachable
	}
	return Healthy
}
