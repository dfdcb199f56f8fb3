// Package auth contiene los servicios de registro y login con segundo factor.
//
// El login es un flujo en dos o tres pasos según el modo configurado:
//
//   - redirect: password → redirect al prompt del proveedor → callback con
//     authorization code → sesión.
//   - polling: password → challenge síncrono (push/call) resuelto en el mismo
//     request → sesión.
//
// La verificación de password SIEMPRE ocurre antes de tocar el proveedor:
// un password incorrecto o un usuario inexistente nunca genera tráfico MFA.
package auth

import (
	"context"
	"fmt"

	"github.com/baluarte/authgate/internal/cache"
	"github.com/baluarte/authgate/internal/config"
	"github.com/baluarte/authgate/internal/duo"
	"github.com/baluarte/authgate/internal/email"
	dto "github.com/baluarte/authgate/internal/http/dto/auth"
	"github.com/baluarte/authgate/internal/http/services/session"
	"github.com/baluarte/authgate/internal/store/core"
)

// Status de un LoginResult.
const (
	// StatusAuthenticated: sesión establecida, SessionID listo para cookie.
	StatusAuthenticated = "authenticated"
	// StatusRedirect: el cliente debe navegar a RedirectURL y volver por
	// el callback con el PendingID en cookie.
	StatusRedirect = "redirect"
	// StatusEnrollRequired: credenciales válidas pero el usuario no está
	// inscripto en el proveedor MFA.
	StatusEnrollRequired = "enroll_required"
)

// Errores de login/registro.
var (
	ErrMissingFields      = fmt.Errorf("missing required fields")
	ErrWeakPassword       = fmt.Errorf("password does not meet minimum length")
	ErrDuplicateUsername  = fmt.Errorf("username already registered")
	ErrProvisioningFailed = fmt.Errorf("provider user provisioning failed")

	// ErrNotRegistered: el username no existe en el credential store.
	ErrNotRegistered      = fmt.Errorf("user not registered")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// ErrProviderUnavailable: el proveedor MFA no responde y failmode=secure.
	ErrProviderUnavailable = fmt.Errorf("mfa provider unavailable")
	// ErrProviderMisconfigured: el proveedor responde pero rechaza las
	// credenciales de aplicación.
	ErrProviderMisconfigured = fmt.Errorf("mfa provider misconfigured")

	// ErrMfaDenied: el proveedor negó el acceso (preauth deny).
	ErrMfaDenied = fmt.Errorf("access denied by mfa policy")
	// ErrChallengeFailed: el usuario rechazó el challenge o expiró.
	ErrChallengeFailed = fmt.Errorf("mfa challenge failed")

	// ErrNoSession: callback sin login pendiente asociado.
	ErrNoSession = fmt.Errorf("no pending login")
	// ErrStateMismatch: el state del callback no coincide con el emitido.
	// El authorization code NO se canjea en este caso.
	ErrStateMismatch = fmt.Errorf("state mismatch")
	// ErrExchangeFailed: el canje del authorization code falló.
	ErrExchangeFailed = fmt.Errorf("authorization code exchange failed")

	ErrSessionFailed = fmt.Errorf("session establishment failed")
)

// LoginResult es el resultado del primer paso de login.
type LoginResult struct {
	Status   string
	Username string

	// Flujo redirect
	RedirectURL string
	PendingID   string

	// StatusEnrollRequired
	EnrollURL string

	// StatusAuthenticated
	SessionID string
	Session   *session.Session

	// FailOpen indica que la sesión se estableció sin segundo factor por
	// indisponibilidad del proveedor con failmode=open.
	FailOpen bool
}

// CallbackResult es el resultado del canje exitoso del callback.
type CallbackResult struct {
	Username  string
	SessionID string
	Session   *session.Session
}

// LoginService define el flujo de login en dos pasos.
type LoginService interface {
	// Login verifica las credenciales y arranca (o completa) el segundo
	// factor según el modo configurado.
	Login(ctx context.Context, in dto.LoginRequest) (*LoginResult, error)

	// Callback completa un login pendiente con el state y el authorization
	// code devueltos por el proveedor. En modo polling siempre retorna
	// ErrNoSession.
	Callback(ctx context.Context, pendingID, state, code string) (*CallbackResult, error)
}

// Deps contiene las dependencias compartidas de los login services.
type Deps struct {
	Cfg      *config.Config
	Repo     core.UserRepository
	Cache    cache.Client
	Duo      *duo.Client
	Sessions session.Manager
	Mailer   *email.Mailer
}

// NewLoginService construye la variante de login según cfg.Duo.Mode.
func NewLoginService(deps Deps) LoginService {
	if deps.Cfg.Duo.Mode == config.ModePolling {
		return &pollingLoginService{deps: deps}
	}
	return &redirectLoginService{deps: deps, pending: newPendingStore(deps.Cache, deps.Cfg)}
}
