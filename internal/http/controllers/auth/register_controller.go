package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	dto "github.com/baluarte/authgate/internal/http/dto/auth"
	httperrors "github.com/baluarte/authgate/internal/http/errors"
	"github.com/baluarte/authgate/internal/http/helpers"
	svc "github.com/baluarte/authgate/internal/http/services/auth"
	"github.com/baluarte/authgate/internal/observability/logger"
)

// RegisterController maneja el alta de usuarios.
type RegisterController struct {
	service svc.RegisterService
}

// NewRegisterController crea un nuevo controller de registro.
func NewRegisterController(service svc.RegisterService) *RegisterController {
	return &RegisterController{service: service}
}

// Register maneja POST /register
func (c *RegisterController) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("RegisterController.Register"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodySize)
	defer r.Body.Close()

	var req dto.RegisterRequest
	ct := strings.ToLower(r.Header.Get("Content-Type"))

	switch {
	case strings.Contains(ct, "application/json"):
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httperrors.WriteError(w, httperrors.ErrInvalidJSON)
			return
		}

	case strings.Contains(ct, "application/x-www-form-urlencoded"):
		if err := r.ParseForm(); err != nil {
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid form"))
			return
		}
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")

	default:
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("unsupported content type"))
		return
	}

	user, err := c.service.Register(ctx, req)
	if err != nil {
		log.Debug("register failed", logger.Err(err))
		writeRegisterError(w, err)
		return
	}

	helpers.WriteJSON(w, http.StatusCreated, dto.RegisterResponse{
		UserID:   user.ID,
		Username: user.Username,
	})
}

func writeRegisterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, svc.ErrMissingFields):
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("username y password son obligatorios"))

	case errors.Is(err, svc.ErrWeakPassword):
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("el password no cumple el mínimo de 8 caracteres"))

	case errors.Is(err, svc.ErrDuplicateUsername):
		httperrors.WriteError(w, httperrors.ErrConflict.WithDetail("el username ya está registrado"))

	case errors.Is(err, svc.ErrProvisioningFailed):
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithDetail("no se pudo inscribir el usuario en el proveedor MFA"))

	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
	}
}
