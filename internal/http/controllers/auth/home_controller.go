package auth

import (
	"errors"
	"net/http"

	"github.com/baluarte/authgate/internal/config"
	dto "github.com/baluarte/authgate/internal/http/dto/auth"
	httperrors "github.com/baluarte/authgate/internal/http/errors"
	"github.com/baluarte/authgate/internal/http/helpers"
	"github.com/baluarte/authgate/internal/http/services/session"
	"github.com/baluarte/authgate/internal/observability/logger"
)

// HomeController sirve la vista protegida.
type HomeController struct {
	cfg      *config.Config
	sessions session.Manager
}

// NewHomeController crea un nuevo controller de home.
func NewHomeController(cfg *config.Config, sessions session.Manager) *HomeController {
	return &HomeController{cfg: cfg, sessions: sessions}
}

// Home maneja GET /
//
// Con sesión válida responde la identidad; sin sesión responde 200 con
// authenticated=false para que el cliente muestre el formulario de login.
func (c *HomeController) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HomeController.Home"))

	var sessionID string
	if cookie, err := r.Cookie(c.cfg.Session.CookieName); err == nil {
		sessionID = cookie.Value
	}

	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			helpers.WriteJSON(w, http.StatusOK, dto.HomeResponse{
				Authenticated: false,
				Message:       "sin sesión activa",
			})
			return
		}
		log.Error("session lookup failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.HomeResponse{
		Authenticated: true,
		Username:      sess.Username,
		Message:       "sesión activa",
	})
}
