package auth

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/baluarte/authgate/internal/duo"
	dto "github.com/baluarte/authgate/internal/http/dto/auth"
	"github.com/baluarte/authgate/internal/metrics"
	"github.com/baluarte/authgate/internal/observability/logger"
	"github.com/baluarte/authgate/internal/store/core"
)

// redirectLoginService implementa el flujo con prompt hospedado: el password
// se verifica acá, el segundo factor lo resuelve el proveedor en su propia
// página y vuelve por el callback con un authorization code.
type redirectLoginService struct {
	deps    Deps
	pending *pendingStore
}

func (s *redirectLoginService) Login(ctx context.Context, in dto.LoginRequest) (*LoginResult, error) {
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

	state, err := duo.GenerateState()
	if err != nil {
		log.Error("state generation failed", logger.Err(err))
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, err
	}

	pendingID, err := s.pending.put(ctx, &PendingLogin{
		UserID:    user.ID,
		Username:  user.Username,
		State:     state,
		Stage:     StageMfaRedirected,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Error("pending login store failed", logger.Err(err))
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, err
	}

	authURL, err := s.deps.Duo.CreateAuthURL(user.Username, state)
	if err != nil {
		log.Error("auth url generation failed", logger.Err(err))
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, err
	}

	log.Info("password verified, redirecting to mfa prompt")
	return &LoginResult{
		Status:      StatusRedirect,
		Username:    user.Username,
		RedirectURL: authURL,
		PendingID:   pendingID,
	}, nil
}

func (s *redirectLoginService) Callback(ctx context.Context, pendingID, state, code string) (*CallbackResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.login"),
		logger.Op("Callback"),
	)

	pl, err := s.pending.take(ctx, pendingID)
	if err != nil {
		if err == ErrNoSession {
			log.Info("callback without pending login")
			return nil, ErrNoSession
		}
		log.Error("pending login load failed", logger.Err(err))
		return nil, err
	}
	log = log.With(logger.Username(pl.Username))

	if pl.Stage != StageMfaRedirected {
		log.Warn("callback for pending login in wrong stage", logger.String("stage", string(pl.Stage)))
		return nil, ErrNoSession
	}

	// Comparación estricta del state ANTES de canjear el code: un state
	// ajeno nunca llega al token endpoint.
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(pl.State)) != 1 {
		log.Warn("state mismatch on callback", logger.Outcome("state_mismatch"))
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, ErrStateMismatch
	}

	if _, err := s.deps.Duo.ExchangeAuthorizationCode(ctx, code, pl.Username); err != nil {
		log.Warn("authorization code exchange failed", logger.Err(err))
		metrics.LoginAttempts.WithLabelValues("challenge_failed").Inc()
		return nil, ErrExchangeFailed
	}

	user, err := s.deps.Repo.GetByUsername(ctx, pl.Username)
	if err != nil {
		if err == core.ErrNotFound {
			// El usuario desapareció entre login y callback.
			log.Warn("user no longer exists at callback")
			return nil, ErrNoSession
		}
		log.Error("user lookup failed at callback", logger.Err(err))
		return nil, err
	}

	sessionID, res, err := s.deps.establishSession(ctx, log, user)
	if err != nil {
		return nil, err
	}

	log.Info("login completed", logger.Outcome("authenticated"))
	return &CallbackResult{
		Username:  user.Username,
		SessionID: sessionID,
		Session:   res.Session,
	}, nil
}
