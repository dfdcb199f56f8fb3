package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/baluarte/authgate/internal/config"
	"github.com/baluarte/authgate/internal/duo"
	"github.com/baluarte/authgate/internal/metrics"
	"github.com/baluarte/authgate/internal/observability/logger"
	"github.com/baluarte/authgate/internal/security/password"
	"github.com/baluarte/authgate/internal/store/core"
	"go.uber.org/zap"
)

// authenticatePassword ejecuta el primer factor completo. Cualquier salida de
// error acá garantiza que NO hubo tráfico hacia el proveedor MFA.
func (d *Deps) authenticatePassword(ctx context.Context, log *zap.Logger, username, plain string) (*core.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || plain == "" {
		return nil, ErrMissingFields
	}

	user, err := d.Repo.GetByUsername(ctx, username)
	if err != nil {
		if err == core.ErrNotFound {
			log.Info("login attempt for unknown user", logger.Username(username))
			metrics.LoginAttempts.WithLabelValues("not_registered").Inc()
			return nil, ErrNotRegistered
		}
		log.Error("user lookup failed", logger.Err(err))
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, err
	}

	if !password.Verify(plain, user.PasswordHash) {
		log.Info("password check failed", logger.Username(user.Username))
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// checkProvider verifica la salud del proveedor y aplica el failmode.
// Retorna (nil, nil) si el flujo MFA debe continuar; un LoginResult no-nil
// es una sesión fail-open ya establecida.
func (d *Deps) checkProvider(ctx context.Context, log *zap.Logger, user *core.User) (*LoginResult, error) {
	hctx, cancel := context.WithTimeout(ctx, d.Cfg.HealthTimeout())
	defer cancel()

	status := d.Duo.Health(hctx)
	metrics.ProviderHealthChecks.WithLabelValues(string(status)).Inc()

	switch status {
	case duo.Healthy:
		return nil, nil

	case duo.InvalidCredentials:
		log.Error("mfa provider rejected application credentials",
			logger.ProviderStatus(string(status)),
			logger.Failmode(d.Cfg.Duo.Failmode),
		)
		if d.Cfg.Duo.Failmode == config.FailmodeOpen {
			return d.failOpen(ctx, log, user)
		}
		metrics.LoginAttempts.WithLabelValues("provider_unavailable").Inc()
		return nil, ErrProviderMisconfigured

	default: // duo.Unreachable
		log.Warn("mfa provider unreachable",
			logger.ProviderStatus(string(status)),
			logger.Failmode(d.Cfg.Duo.Failmode),
		)
		if d.Cfg.Duo.Failmode == config.FailmodeOpen {
			return d.failOpen(ctx, log, user)
		}
		metrics.LoginAttempts.WithLabelValues("provider_unavailable").Inc()
		return nil, ErrProviderUnavailable
	}
}

// providerFailure aplica el failmode a un error del proveedor ocurrido
// después del health check (preauth o challenge que no llegó a dispararse).
func (d *Deps) providerFailure(ctx context.Context, log *zap.Logger, user *core.User, cause error) (*LoginResult, error) {
	log.Warn("provider call failed after health check",
		logger.Err(cause),
		logger.Failmode(d.Cfg.Duo.Failmode),
	)
	if d.Cfg.Duo.Failmode == config.FailmodeOpen {
		return d.failOpen(ctx, log, user)
	}
	metrics.LoginAttempts.WithLabelValues("provider_unavailable").Inc()
	return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, cause)
}

// failOpen establece la sesión sin segundo factor. Cada entrada por acá
// queda en logs, métricas y (si está configurado) un mail de aviso.
func (d *Deps) failOpen(ctx context.Context, log *zap.Logger, user *core.User) (*LoginResult, error) {
	sessionID, sess, err := d.Sessions.Establish(ctx, user)
	if err != nil {
		log.Error("fail-open session establishment failed", logger.Err(err))
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, ErrSessionFailed
	}

	log.Warn("login allowed without second factor (failmode open)",
		logger.Username(user.Username),
		logger.UserID(user.ID),
		logger.Outcome("fail_open"),
	)
	metrics.FailOpenLogins.Inc()
	metrics.LoginAttempts.WithLabelValues("authenticated").Inc()

	if to := d.Cfg.Alerts.FailOpenTo; to != "" && d.Mailer != nil {
		// El SMTP no bloquea el login.
		go d.Mailer.SendFailOpenAlert(to, user.Username)
	}

	return &LoginResult{
		Status:    StatusAuthenticated,
		Username:  user.Username,
		SessionID: sessionID,
		Session:   sess,
		FailOpen:  true,
	}, nil
}

// establishSession cierra un login exitoso con segundo factor aprobado.
func (d *Deps) establishSession(ctx context.Context, log *zap.Logger, user *core.User) (string, *LoginResult, error) {
	sessionID, sess, err := d.Sessions.Establish(ctx, user)
	if err != nil {
		log.Error("session establishment failed", logger.Err(err))
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return "", nil, ErrSessionFailed
	}
	metrics.LoginAttempts.WithLabelValues("authenticated").Inc()
	return sessionID, &LoginResult{
		Status:    StatusAuthenticated,
		Username:  user.Username,
		SessionID: sessionID,
		Session:   sess,
	}, nil
}
