package auth

import (
	"net/http"

	"github.com/baluarte/authgate/internal/config"
	"github.com/baluarte/authgate/internal/http/services/session"
	"github.com/baluarte/authgate/internal/observability/logger"
)

// LogoutController maneja el cierre de sesión.
type LogoutController struct {
	cfg      *config.Config
	sessions session.Manager
}

// NewLogoutController crea un nuevo controller de logout.
func NewLogoutController(cfg *config.Config, sessions session.Manager) *LogoutController {
	return &LogoutController{cfg: cfg, sessions: sessions}
}

// Logout maneja GET /logout
//
// Idempotente: sin cookie o con sesión ya expirada, el resultado es el mismo
// (cookie limpia y redirect a /).
func (c *LogoutController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LogoutController.Logout"))

	if cookie, err := r.Cookie(c.cfg.Session.CookieName); err == nil && cookie.Value != "" {
		if err := c.sessions.Terminate(ctx, cookie.Value); err != nil {
			// La cookie se limpia igual; la entrada expira sola por TTL.
			log.Warn("session terminate failed", logger.Err(err))
		}
	}

	http.SetCookie(w, session.ClearSessionCookie(c.cfg))
	http.Redirect(w, r, "/", http.StatusFound)
}
