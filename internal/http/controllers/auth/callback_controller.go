package auth

import (
	"net/http"

	"github.com/baluarte/authgate/internal/config"
	httperrors "github.com/baluarte/authgate/internal/http/errors"
	svc "github.com/baluarte/authgate/internal/http/services/auth"
	"github.com/baluarte/authgate/internal/http/services/session"
	"github.com/baluarte/authgate/internal/observability/logger"
)

// CallbackController maneja el retorno desde el prompt del proveedor MFA.
type CallbackController struct {
	cfg     *config.Config
	service svc.LoginService
}

// NewCallbackController crea un nuevo controller de callback.
func NewCallbackController(cfg *config.Config, service svc.LoginService) *CallbackController {
	return &CallbackController{cfg: cfg, service: service}
}

// Callback maneja GET /duo-callback
//
// El proveedor redirige acá con ?state=...&duo_code=... (o ?error=... si el
// usuario canceló). El login pendiente viaja en la cookie, nunca en la URL.
func (c *CallbackController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("CallbackController.Callback"))

	q := r.URL.Query()

	// Rechazo en el prompt: el proveedor lo reporta como error OAuth.
	if e := q.Get("error"); e != "" {
		log.Info("provider returned error on callback",
			logger.String("error", e),
			logger.String("description", q.Get("error_description")),
		)
		http.SetCookie(w, svc.ClearPendingCookie(c.cfg))
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("autenticación MFA rechazada"))
		return
	}

	state := q.Get("state")
	code := q.Get("duo_code")
	if state == "" || code == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("state y duo_code son obligatorios"))
		return
	}

	var pendingID string
	if cookie, err := r.Cookie(svc.PendingCookieName); err == nil {
		pendingID = cookie.Value
	}

	result, err := c.service.Callback(ctx, pendingID, state, code)

	// El pending es de un solo uso: la cookie se limpia pase lo que pase.
	http.SetCookie(w, svc.ClearPendingCookie(c.cfg))

	if err != nil {
		log.Debug("callback failed", logger.Err(err))
		writeLoginError(w, err)
		return
	}

	http.SetCookie(w, session.BuildSessionCookie(c.cfg, result.SessionID))
	http.Redirect(w, r, "/", http.StatusFound)
}
