package auth

import (
	"context"
	"strings"

	"github.com/baluarte/authgate/internal/duo"
	dto "github.com/baluarte/authgate/internal/http/dto/auth"
	"github.com/baluarte/authgate/internal/observability/logger"
	"github.com/baluarte/authgate/internal/security/password"
	"github.com/baluarte/authgate/internal/store/core"
)

// minPasswordLength es el mínimo aceptado en el registro.
const minPasswordLength = 8

// RegisterService define el alta de usuarios.
type RegisterService interface {
	// Register crea el usuario con el password hasheado y, si el
	// aprovisionamiento Admin está habilitado, lo inscribe en el proveedor
	// MFA. Si la inscripción falla, el alta se deshace completa.
	Register(ctx context.Context, in dto.RegisterRequest) (*core.User, error)
}

// RegisterDeps contiene las dependencias del register service.
type RegisterDeps struct {
	Repo  core.UserRepository
	Admin *duo.Admin // nil = sin aprovisionamiento
}

type registerService struct {
	deps RegisterDeps
}

// NewRegisterService crea el servicio de registro.
func NewRegisterService(deps RegisterDeps) RegisterService {
	return &registerService{deps: deps}
}

func (s *registerService) Register(ctx context.Context, in dto.RegisterRequest) (*core.User, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.register"),
		logger.Op("Register"),
	)

	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return nil, ErrMissingFields
	}
	if len(in.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	phc, err := password.Hash(password.Default, in.Password)
	if err != nil {
		log.Error("password hash failed", logger.Err(err))
		return nil, err
	}

	user, err := s.deps.Repo.Create(ctx, &core.User{
		Username:     in.Username,
		PasswordHash: phc,
	})
	if err != nil {
		if err == core.ErrConflict {
			log.Info("duplicate username", logger.Username(in.Username))
			return nil, ErrDuplicateUsername
		}
		log.Error("user create failed", logger.Err(err))
		return nil, err
	}
	log = log.With(logger.UserID(user.ID), logger.Username(user.Username))

	// Aprovisionamiento en el proveedor MFA. Si falla, el registro se
	// revierte: un usuario sin segundo factor posible no debe existir.
	if s.deps.Admin != nil {
		duoUserID, err := s.deps.Admin.EnrollUser(ctx, user.Username)
		if err != nil {
			log.Error("provider enrollment failed, rolling back registration", logger.Err(err))
			if delErr := s.deps.Repo.Delete(ctx, user.ID); delErr != nil {
				log.Error("registration rollback failed", logger.Err(delErr))
			}
			return nil, ErrProvisioningFailed
		}
		if err := s.deps.Repo.UpdateDuoUserID(ctx, user.ID, duoUserID); err != nil {
			log.Error("duo user id persist failed", logger.Err(err))
		} else {
			user.DuoUserID = duoUserID
		}
	}

	log.Info("user registered")
	return user, nil
}
