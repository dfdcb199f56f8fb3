// Package session administra las sesiones de usuario autenticado.
//
// Una sesión es un token opaco entregado al navegador en una cookie HttpOnly.
// Del lado servidor solo se guarda el hash SHA-256 del token como key del
// cache, de modo que un dump del cache no permite fabricar cookies válidas.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/baluarte/authgate/internal/cache"
	"github.com/baluarte/authgate/internal/config"
	"github.com/baluarte/authgate/internal/observability/logger"
	tokens "github.com/baluarte/authgate/internal/security/token"
	"github.com/baluarte/authgate/internal/store/core"
)

// sessionKeyPrefix separa las sesiones del resto del cache.
const sessionKeyPrefix = "sid:"

// Errores de sesión.
var (
	ErrNoSession = fmt.Errorf("no active session")
)

// Session es el estado asociado a una cookie de sesión válida.
type Session struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager define las operaciones sobre sesiones.
type Manager interface {
	// Establish crea una sesión para el usuario y devuelve el token opaco
	// que va en la cookie.
	Establish(ctx context.Context, user *core.User) (string, *Session, error)

	// Get resuelve un token de cookie a su sesión.
	// Retorna ErrNoSession si no existe o expiró.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Terminate invalida una sesión. Idempotente: terminar una sesión
	// inexistente no es error.
	Terminate(ctx context.Context, sessionID string) error
}

// Deps contiene las dependencias del manager.
type Deps struct {
	Cache cache.Client
	Cfg   *config.Config
}

type manager struct {
	deps Deps
}

// NewManager crea el manager de sesiones.
func NewManager(deps Deps) Manager {
	return &manager{deps: deps}
}

func (m *manager) key(sessionID string) string {
	return sessionKeyPrefix + tokens.SHA256Base64URL(sessionID)
}

func (m *manager) Establish(ctx context.Context, user *core.User) (string, *Session, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("session"),
		logger.Op("Establish"),
	)

	sessionID, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return "", nil, fmt.Errorf("generate session token: %w", err)
	}

	now := time.Now().UTC()
	ttl := m.deps.Cfg.SessionTTL()
	sess := &Session{
		UserID:    user.ID,
		Username:  user.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return "", nil, fmt.Errorf("marshal session: %w", err)
	}

	if err := m.deps.Cache.Set(ctx, m.key(sessionID), string(raw), ttl); err != nil {
		return "", nil, fmt.Errorf("store session: %w", err)
	}

	log.Info("session established",
		logger.UserID(user.ID),
		logger.Username(user.Username),
	)
	return sessionID, sess, nil
}

func (m *manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}

	raw, err := m.deps.Cache.Get(ctx, m.key(sessionID))
	if err != nil {
		if err == cache.ErrNotFound {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		// Entrada corrupta: la tratamos como inexistente y la limpiamos.
		_ = m.deps.Cache.Delete(ctx, m.key(sessionID))
		return nil, ErrNoSession
	}

	// El TTL del cache ya expira la sesión; el check explícito cubre
	// backends con granularidad gruesa de expiración.
	if time.Now().UTC().After(sess.ExpiresAt) {
		_ = m.deps.Cache.Delete(ctx, m.key(sessionID))
		return nil, ErrNoSession
	}

	return &sess, nil
}

func (m *manager) Terminate(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return m.deps.Cache.Delete(ctx, m.key(sessionID))
}

// BuildSessionCookie arma la cookie de sesión según la config.
func BuildSessionCookie(cfg *config.Config, sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.Session.CookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   cfg.Session.Domain,
		MaxAge:   int(cfg.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   cfg.Session.Secure,
		SameSite: sameSite(cfg.Session.SameSite),
	}
}

// ClearSessionCookie arma la cookie que borra la sesión en el navegador.
func ClearSessionCookie(cfg *config.Config) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Session.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Session.Secure,
		SameSite: sameSite(cfg.Session.SameSite),
	}
}

func sameSite(mode string) http.SameSite {
	switch strings.ToLower(mode) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
