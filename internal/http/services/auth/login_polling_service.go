package auth

import (
	"context"
	"time"

	"github.com/baluarte/authgate/internal/duo"
	dto "github.com/baluarte/authgate/internal/http/dto/auth"
	"github.com/baluarte/authgate/internal/metrics"
	"github.com/baluarte/authgate/internal/observability/logger"
	"github.com/baluarte/authgate/internal/store/core"
	"go.uber.org/zap"
)

// pollingLoginService implementa el flujo síncrono: preauth decide la
// política y el challenge (push/call) se resuelve dentro del mismo request.
// No hay redirect ni callback; el request de login queda bloqueado hasta que
// el usuario aprueba, rechaza o expira el challenge.
type pollingLoginService struct {
	deps Deps
}

func (s *pollingLoginService) Login(ctx context.Context, in dto.LoginRequest) (*LoginResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.login"),
		logger.Op("Login"),
	)

	user, err := s.deps.authenticatePassword(ctx, log, in.Username, in.Password)
	if err != nil {
		return nil, err
	}
	log = log.With(logger.UserID(user.ID), logger.Username(user.Username))

	if res, err := s.deps.checkProvider(ctx, log, user); res != nil || err != nil {
		return res, err
	}

	pre, err := s.deps.Duo.Preauth(ctx, user.Username)
	if err != nil {
		// El health check pasó hace un instante; un error acá es
		// indisponibilidad transitoria y se trata con el failmode.
		return s.deps.providerFailure(ctx, log, user, err)
	}

	switch pre.Outcome {
	case duo.PreauthAllow:
		// Política del proveedor: este usuario no requiere segundo factor.
		log.Info("preauth allow, skipping challenge", logger.Outcome("authenticated"))
		_, res, err := s.deps.establishSession(ctx, log, user)
		return res, err

	case duo.PreauthEnroll:
		log.Info("user not enrolled in mfa provider", logger.Outcome("enroll_required"))
		metrics.LoginAttempts.WithLabelValues("enroll_required").Inc()
		return &LoginResult{
			Status:    StatusEnrollRequired,
			Username:  user.Username,
			EnrollURL: pre.EnrollPortalURL,
		}, nil

	case duo.PreauthDeny:
		log.Info("preauth deny", logger.Outcome("denied"))
		metrics.LoginAttempts.WithLabelValues("denied").Inc()
		return nil, ErrMfaDenied

	case duo.PreauthChallenge:
		return s.runChallenge(ctx, log, user)

	default:
		log.Error("unexpected preauth outcome", logger.String("outcome", string(pre.Outcome)))
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, ErrProviderUnavailable
	}
}

// runChallenge dispara el challenge automático (factor=auto, device=auto) y
// bloquea hasta la decisión del usuario o el timeout configurado.
func (s *pollingLoginService) runChallenge(ctx context.Context, log *zap.Logger, user *core.User) (*LoginResult, error) {
	start := time.Now()
	result, err := s.deps.Duo.Auth(ctx, user.Username, "auto", "auto")
	metrics.ChallengeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		log.Warn("mfa challenge errored", logger.Err(err), logger.Duration(time.Since(start)))
		metrics.LoginAttempts.WithLabelValues("challenge_failed").Inc()
		return nil, ErrChallengeFailed
	}

	if !result.Allowed {
		log.Info("mfa challenge rejected",
			logger.Outcome("challenge_failed"),
			logger.String("status", result.Status),
		)
		metrics.LoginAttempts.WithLabelValues("challenge_failed").Inc()
		return nil, ErrChallengeFailed
	}

	log.Info("mfa challenge approved",
		logger.Outcome("authenticated"),
		logger.Duration(time.Since(start)),
	)
	_, res, err := s.deps.establishSession(ctx, log, user)
	return res, err
}

// Callback no existe en el flujo polling: no hay redirect del que volver.
func (s *pollingLoginService) Callback(ctx context.Context, pendingID, state, code string) (*CallbackResult, error) {
	return nil, ErrNoSession
}
