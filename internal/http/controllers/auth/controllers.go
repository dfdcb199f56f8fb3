// Package auth contiene los controllers de registro, login y sesión.
package auth

import (
	"github.com/baluarte/authgate/internal/config"
	svc "github.com/baluarte/authgate/internal/http/services/auth"
	"github.com/baluarte/authgate/internal/http/services/session"
)

// Controllers agrupa los controllers del dominio auth.
type Controllers struct {
	Register *RegisterController
	Login    *LoginController
	Callback *CallbackController
	Logout   *LogoutController
	Home     *HomeController
}

// NewControllers crea el agregador de controllers auth.
func NewControllers(cfg *config.Config, login svc.LoginService, register svc.RegisterService, sessions session.Manager) *Controllers {
	return &Controllers{
		Register: NewRegisterController(register),
		Login:    NewLoginController(cfg, login),
		Callback: NewCallbackController(cfg, login),
		Logout:   NewLogoutController(cfg, sessions),
		Home:     NewHomeController(cfg, sessions),
	}
}
