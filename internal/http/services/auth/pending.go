package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/baluarte/authgate/internal/cache"
	"github.com/baluarte/authgate/internal/config"
	"github.com/baluarte/authgate/internal/observability/logger"
	tokens "github.com/baluarte/authgate/internal/security/token"
)

// Stage marca hasta dónde avanzó un login pendiente. El callback solo acepta
// logins en StageMfaRedirected: no hay forma de saltarse la verificación de
// password reordenando requests.
type Stage string

const (
	StageUnauthenticated  Stage = "unauthenticated"
	StagePasswordVerified Stage = "password_verified"
	StageMfaRedirected    Stage = "mfa_redirected"
	StageAuthenticated    Stage = "authenticated"
)

// PendingLogin es el estado server-side entre el POST /login y el callback.
// Se guarda bajo el hash del pending ID, igual que las sesiones.
type PendingLogin struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	State     string    `json:"state"`
	Stage     Stage     `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
}

const pendingKeyPrefix = "pending:"

// PendingCookieName es la cookie que liga el navegador a su login pendiente.
const PendingCookieName = "authgate_pending"

type pendingStore struct {
	cache cache.Client
	cfg   *config.Config
}

func newPendingStore(c cache.Client, cfg *config.Config) *pendingStore {
	return &pendingStore{cache: c, cfg: cfg}
}

func (p *pendingStore) key(pendingID string) string {
	return pendingKeyPrefix + tokens.SHA256Base64URL(pendingID)
}

// put guarda el pending y devuelve el ID opaco para la cookie.
func (p *pendingStore) put(ctx context.Context, pl *PendingLogin) (string, error) {
	pendingID, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return "", fmt.Errorf("generate pending token: %w", err)
	}
	raw, err := json.Marshal(pl)
	if err != nil {
		return "", fmt.Errorf("marshal pending login: %w", err)
	}
	if err := p.cache.Set(ctx, p.key(pendingID), string(raw), p.cfg.PendingTTL()); err != nil {
		return "", fmt.Errorf("store pending login: %w", err)
	}
	return pendingID, nil
}

// take carga Y elimina el pending: cada pending ID se canjea una sola vez.
func (p *pendingStore) take(ctx context.Context, pendingID string) (*PendingLogin, error) {
	if pendingID == "" {
		return nil, ErrNoSession
	}
	raw, err := p.cache.Get(ctx, p.key(pendingID))
	if err != nil {
		if err == cache.ErrNotFound {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("load pending login: %w", err)
	}
	// Borrar antes de usar: un segundo callback con el mismo pending ID
	// encuentra la entrada ya consumida.
	if err := p.cache.Delete(ctx, p.key(pendingID)); err != nil {
		// Si el delete falla, el pending sigue canjeable hasta su TTL.
		logger.From(ctx).Warn("pending login delete failed",
			logger.Component("auth.pending"),
			logger.Err(err),
		)
	}

	var pl PendingLogin
	if err := json.Unmarshal([]byte(raw), &pl); err != nil {
		return nil, ErrNoSession
	}
	return &pl, nil
}

// BuildPendingCookie arma la cookie del login pendiente. SameSite=Lax es
// deliberado: el callback llega por navegación top-level desde el proveedor
// y Strict dejaría la cookie afuera.
func BuildPendingCookie(cfg *config.Config, pendingID string) *http.Cookie {
	return &http.Cookie{
		Name:     PendingCookieName,
		Value:    pendingID,
		Path:     "/",
		Domain:   cfg.Session.Domain,
		MaxAge:   int(cfg.PendingTTL().Seconds()),
		HttpOnly: true,
		Secure:   cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearPendingCookie borra la cookie del login pendiente.
func ClearPendingCookie(cfg *config.Config) *http.Cookie {
	return &http.Cookie{
		Name:     PendingCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Session.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
