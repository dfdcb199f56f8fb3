package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/baluarte/authgate/internal/config"
	dto "github.com/baluarte/authgate/internal/http/dto/auth"
	httperrors "github.com/baluarte/authgate/internal/http/errors"
	"github.com/baluarte/authgate/internal/http/helpers"
	svc "github.com/baluarte/authgate/internal/http/services/auth"
	"github.com/baluarte/authgate/internal/http/services/session"
	"github.com/baluarte/authgate/internal/observability/logger"
)

const (
	maxLoginBodySize = 64 * 1024 // 64KB
	contentTypeJSON  = "application/json; charset=utf-8"
)

// LoginController maneja el endpoint de login.
type LoginController struct {
	cfg     *config.Config
	service svc.LoginService
}

// NewLoginController crea un nuevo controller de login.
func NewLoginController(cfg *config.Config, service svc.LoginService) *LoginController {
	return &LoginController{cfg: cfg, service: service}
}

// Login maneja POST /login
func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LoginController.Login"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	// Limitar body
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodySize)
	defer r.Body.Close()

	// Parse request (JSON o form)
	var req dto.LoginRequest
	isForm := false
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
		isForm = true

	default:
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("unsupported content type"))
		return
	}

	result, err := c.service.Login(ctx, req)
	if err != nil {
		log.Debug("login failed", logger.Err(err))
		writeLoginError(w, err)
		return
	}

	w.Header().Set("Pragma", "no-cache")

	switch result.Status {
	case svc.StatusRedirect:
		// La cookie liga este navegador al login pendiente; el state
		// viaja solo en la URL del proveedor.
		http.SetCookie(w, svc.BuildPendingCookie(c.cfg, result.PendingID))
		if isForm {
			http.Redirect(w, r, result.RedirectURL, http.StatusFound)
			return
		}
		helpers.WriteJSON(w, http.StatusOK, dto.LoginResponse{
			Status:      result.Status,
			RedirectURL: result.RedirectURL,
			Username:    result.Username,
		})

	case svc.StatusEnrollRequired:
		helpers.WriteJSON(w, http.StatusOK, dto.LoginResponse{
			Status:      result.Status,
			RedirectURL: result.EnrollURL,
			Username:    result.Username,
			Message:     "inscripción en el proveedor MFA requerida",
		})

	case svc.StatusAuthenticated:
		http.SetCookie(w, session.BuildSessionCookie(c.cfg, result.SessionID))
		http.SetCookie(w, svc.ClearPendingCookie(c.cfg))
		if isForm {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		resp := dto.LoginResponse{
			Status:   result.Status,
			Username: result.Username,
		}
		if result.FailOpen {
			resp.Message = "segundo factor omitido: proveedor MFA no disponible"
		}
		helpers.WriteJSON(w, http.StatusOK, resp)

	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
	}
}

func writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, svc.ErrMissingFields):
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("username y password son obligatorios"))

	case errors.Is(err, svc.ErrNotRegistered):
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("usuario no registrado"))

	case errors.Is(err, svc.ErrInvalidCredentials):
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("usuario o password inválidos"))

	case errors.Is(err, svc.ErrMfaDenied):
		httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("acceso negado por política MFA"))

	case errors.Is(err, svc.ErrChallengeFailed):
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("challenge MFA rechazado o expirado"))

	case errors.Is(err, svc.ErrProviderMisconfigured):
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithDetail("proveedor MFA mal configurado"))

	case errors.Is(err, svc.ErrProviderUnavailable):
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithDetail("proveedor MFA no disponible"))

	case errors.Is(err, svc.ErrStateMismatch):
		httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("state inválido"))

	case errors.Is(err, svc.ErrExchangeFailed):
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("canje del código de autorización falló"))

	case errors.Is(err, svc.ErrNoSession):
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("no hay login pendiente"))

	case errors.Is(err, svc.ErrSessionFailed):
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithDetail("error al establecer la sesión"))

	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
	}
}
