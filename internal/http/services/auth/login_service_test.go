package auth

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/baluarte/authgate/internal/cache"
	"github.com/baluarte/authgate/internal/config"
	"github.com/baluarte/authgate/internal/duo"
	"github.com/baluarte/authgate/internal/duo/duotest"
	dto "github.com/baluarte/authgate/internal/http/dto/auth"
	"github.com/baluarte/authgate/internal/http/services/session"
	"github.com/baluarte/authgate/internal/security/password"
	"github.com/baluarte/authgate/internal/store/core"
	"github.com/baluarte/authgate/internal/store/memory"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

type fixture struct {
	deps Deps
	srv  *duotest.Server
	repo core.UserRepository
}

func newFixture(t *testing.T, mode, failmode string) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Duo.Mode = mode
	cfg.Duo.Failmode = failmode
	cfg.Duo.HealthTimeout = "2s"
	cfg.Duo.ChallengeTimeout = "5s"
	cfg.Session.CookieName = "authgate_session"
	cfg.Session.SameSite = "lax"
	cfg.Session.TTL = "5m"
	cfg.Session.PendingTTL = "5m"

	srv := duotest.New(t)
	duoCfg := srv.Config()
	cfg.Duo.ClientID = duoCfg.ClientID
	cfg.Duo.ClientSecret = duoCfg.ClientSecret
	cfg.Duo.APIHostname = duoCfg.APIHostname
	cfg.Duo.RedirectURI = duoCfg.RedirectURI

	repo := memory.New()
	cacheClient := cache.NewMemory("test", time.Minute)

	return &fixture{
		deps: Deps{
			Cfg:      cfg,
			Repo:     repo,
			Cache:    cacheClient,
			Duo:      srv.Client(t),
			Sessions: session.NewManager(session.Deps{Cache: cacheClient, Cfg: cfg}),
		},
		srv:  srv,
		repo: repo,
	}
}

func (f *fixture) seedUser(t *testing.T, username, plain string) *core.User {
	t.Helper()
	phc, err := password.Hash(password.Default, plain)
	require.NoError(t, err)
	u, err := f.repo.Create(context.Background(), &core.User{Username: username, PasswordHash: phc})
	require.NoError(t, err)
	return u
}

// stateFromRedirect extrae el state del request JWT de la URL del prompt.
func stateFromRedirect(t *testing.T, redirectURL string) string {
	t.Helper()
	u, err := url.Parse(redirectURL)
	require.NoError(t, err)
	tk, err := jwtv5.Parse(u.Query().Get("request"), func(tk *jwtv5.Token) (any, error) {
		return []byte(duotest.ClientSecret), nil
	}, jwtv5.WithValidMethods([]string{"HS512"}))
	require.NoError(t, err)
	state, _ := tk.Claims.(jwtv5.MapClaims)["state"].(string)
	require.NotEmpty(t, state)
	return state
}

// ─── Flujo redirect ───

func TestRedirectLogin_UnknownUser_NoProviderTraffic(t *testing.T) {
	f := newFixture(t, config.ModeRedirect, config.FailmodeSecure)
	svc := NewLoginService(f.deps)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Username: "ghost", Password: "whatever123"})
	require.ErrorIs(t, err, ErrNotRegistered)
	require.Zero(t, f.srv.PingCalls+f.srv.CheckCalls, "un usuario desconocido no debe generar tráfico al proveedor")
}

func TestRedirectLogin_WrongPassword_NoProviderTraffic(t *testing.T) {
	f := newFixture(t, config.ModeRedirect, config.FailmodeSecure)
	f.seedUser(t, "alice", "correct-password")
	svc := NewLoginService(f.deps)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Username: "alice", Password: "wrong-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Zero(t, f.srv.PingCalls+f.srv.CheckCalls)
}

func TestRedirectLogin_MissingFields(t *testing.T) {
	f := newFixture(t, config.ModeRedirect, config.FailmodeSecure)
	svc := NewLoginService(f.deps)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Username: "", Password: ""})
	require.ErrorIs(t, err, ErrMissingFields)
}

func TestRedirectLogin_HappyPath(t *testing.T) {
	f := newFixture(t, config.ModeRedirect, config.FailmodeSecure)
	f.seedUser(t, "alice", "correct-password")
	f.srv.TokenUsername = "alice"
	svc := NewLoginService(f.deps)
	ctx := context.Background()

	res, err := svc.Login(ctx, dto.LoginRequest{Username: "alice", Password: "correct-password"})
	require.NoError(t, err)
	require.Equal(t, StatusRedirect, res.Status)
	require.Contains(t, res.RedirectURL, "/oauth/v1/authorize")
	require.NotEmpty(t, res.PendingID)

	state := stateFromRedirect(t, res.RedirectURL)
	cb, err := svc.Callback(ctx, res.PendingID, state, f.srv.IssueCode())
	require.NoError(t, err)
	require.Equal(t, "alice", cb.Username)

	sess, err := f.deps.Sessions.Get(ctx, cb.SessionID)
	require.NoError(t, err)
	require.Equal(t, "alice", sess.Username)
}

func TestRedirectCallback_StateMismatch_NoExchange(t *testing.T) {
	f := newFixture(t, config.ModeRedirect, config.FailmodeSecure)
	f.seedUser(t, "alice", "correct-password")
	svc := NewLoginService(f.deps)
	ctx := context.Background()

	res, err := svc.Login(ctx, dto.LoginRequest{Username: "alice", Password: "correct-password"})
	require.NoError(t, err)

	_, err = svc.Callback(ctx, res.PendingID, "AttackerControlledStateAAAAAAAAAAAAA", f.srv.IssueCode())
	require.ErrorIs(t, err, ErrStateMismatch)
	require.Zero(t, f.srv.TokenCalls, "con state inválido el code no se canjea")
}

func TestRedirectCallback_PendingIsSingleUse(t *testing.T) {
	f := newFixture(t, config.ModeRedirect, config.FailmodeSecure)
	f.seedUser(t, "alice", "correct-password")
	f.srv.TokenUsername = "alice"
	svc := NewLoginService(f.deps)
	ctx := context.Background()

	res, err := svc.Login(ctx, dto.LoginRequest{Username: "alice", Password: "correct-password"})
	require.NoError(t, err)
	state := stateFromRedirect(t, res.RedirectURL)

	_, err = svc.Callback(ctx, res.PendingID, state, f.srv.IssueCode())
	require.NoError(t, err)

	// Replay del mismo callback: el pending ya fue consumido.
	_, err = svc.Callback(ctx, res.PendingID, state, f.srv.IssueCode())
	require.ErrorIs(t, err, ErrNoSession)
}

func TestRedirectCallback_WithoutPending(t *testing.T) {
	f := newFixture(t, config.ModeRedirect, config.FailmodeSecure)
	svc := NewLoginService(f.deps)

	_, err := svc.Callback(context.Background(), "", "somestateaaaaaaaaaaaaaaaaaaaaaaaaaaa", "code")
	require.ErrorIs(t, err, ErrNoSession)

	_, err = svc.Callback(context.Background(), "unknown-pending-id", "somestateaaaaaaaaaaaaaaaaaaaaaaaaaaa", "code")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestRedirectCallback_ExchangeFailure(t *testing.T) {
	f := newFixture(t, config.ModeRedirect, config.FailmodeSecure)
	f.seedUser(t, "alice", "correct-password")
	f.srv.TokenFail = true
	svc := NewLoginService(f.deps)
	ctx := context.Background()

	res, err := svc.Login(ctx, dto.LoginRequest{Username: "alice", Password: "correct-password"})
	require.NoError(t, err)
	state := stateFromRedirect(t, res.RedirectURL)

	_, err = svc.Callback(ctx, res.PendingID, state, f.srv.IssueCode())
	require.ErrorIs(t, err, ErrExchangeFailed)
	require.Equal(t, 1, f.srv.TokenCalls, "el canje fallido no se reintenta")
}

// ─── Failmode ───

func TestLogin_ProviderDown_FailmodeSecure(t *testing.T) {
	f := newFixture(t, config.ModeRedirect, config.FailmodeSecure)
	f.seedUser(t, "alice", "correct-password")
	f.srv.PingFail = true
	svc := NewLoginService(f.deps)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Username: "alice", Password: "correct-password"})
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestLogin_ProviderDown_FailmodeOpen(t *testing.T) {
	f := newFixture(t, config.ModeRedirect, config.FailmodeOpen)
	f.seedUser(t, "alice", "correct-password")
	f.srv.PingFail = true
	svc := NewLoginService(f.deps)
	ctx := context.Background()

	res, err := svc.Login(ctx, dto.LoginRequest{Username: "alice", Password: "correct-password"})
	require.NoError(t, err)
	require.Equal(t, StatusAuthenticated, res.Status)
	require.True(t, res.FailOpen)

	sess, err := f.deps.Sessions.Get(ctx, res.SessionID)
	require.NoError(t, err)
	require.Equal(t, "alice", sess.Username)
}

func TestLogin_ProviderMisconfigured_FailmodeSecure(t *testing.T) {
	f := newFixture(t, config.ModeRedirect, config.FailmodeSecure)
	f.seedUser(t, "alice", "correct-password")
	f.srv.CheckFail = true
	svc := NewLoginService(f.deps)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Username: "alice", Password: "correct-password"})
	require.ErrorIs(t, err, ErrProviderMisconfigured)
}

func TestLogin_FailmodeOpen_PasswordStillRequired(t *testing.T) {
	f := newFixture(t, config.ModeRedirect, config.FailmodeOpen)
	f.seedUser(t, "alice", "correct-password")
	f.srv.PingFail = true
	svc := NewLoginService(f.deps)

	// Fail-open degrada el segundo factor, nunca el primero.
	_, err := svc.Login(context.Background(), dto.LoginRequest{Username: "alice", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

// ─── Flujo polling ───

func TestPollingLogin_PreauthAllow_SkipsChallenge(t *testing.T) {
	f := newFixture(t, config.ModePolling, config.FailmodeSecure)
	f.seedUser(t, "alice", "correct-password")
	f.srv.PreauthResult = "allow"
	svc := NewLoginService(f.deps)
	ctx := context.Background()

	res, err := svc.Login(ctx, dto.LoginRequest{Username: "alice", Password: "correct-password"})
	require.NoError(t, err)
	require.Equal(t, StatusAuthenticated, res.Status)
	require.False(t, res.FailOpen)
	require.Zero(t, f.srv.AuthCalls, "con preauth allow no hay challenge")

	_, err = f.deps.Sessions.Get(ctx, res.SessionID)
	require.NoError(t, err)
}

func TestPollingLogin_ChallengeApproved(t *testing.T) {
	f := newFixture(t, config.ModePolling, config.FailmodeSecure)
	f.seedUser(t, "alice", "correct-password")
	f.srv.PreauthResult = "auth"
	f.srv.AuthResult = "allow"
	svc := NewLoginService(f.deps)

	res, err := svc.Login(context.Background(), dto.LoginRequest{Username: "alice", Password: "correct-password"})
	require.NoError(t, err)
	require.Equal(t, StatusAuthenticated, res.Status)
	require.Equal(t, 1, f.srv.AuthCalls)
}

func TestPollingLogin_ChallengeRejected(t *testing.T) {
	f := newFixture(t, config.ModePolling, config.FailmodeSecure)
	f.seedUser(t, "alice", "correct-password")
	f.srv.AuthResult = "deny"
	svc := NewLoginService(f.deps)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Username: "alice", Password: "correct-password"})
	require.ErrorIs(t, err, ErrChallengeFailed)
}

func TestPollingLogin_ChallengeTimeout(t *testing.T) {
	f := newFixture(t, config.ModePolling, config.FailmodeSecure)
	f.seedUser(t, "alice", "correct-password")
	f.srv.AuthDelay = 5 * time.Second

	// Cliente con challenge corto: un push sin respuesta debe cortarse al
	// vencer el timeout, nunca colgar el request de login.
	duoCfg := f.srv.Config()
	duoCfg.ChallengeTimeout = 300 * time.Millisecond
	short, err := duo.New(duoCfg)
	require.NoError(t, err)
	f.deps.Duo = short
	f.deps.Cfg.Duo.ChallengeTimeout = "300ms"
	svc := NewLoginService(f.deps)

	start := time.Now()
	_, err = svc.Login(context.Background(), dto.LoginRequest{Username: "alice", Password: "correct-password"})
	require.ErrorIs(t, err, ErrChallengeFailed)
	require.Less(t, time.Since(start), 3*time.Second, "el timeout del challenge debe cortar antes que el proveedor")
	require.Equal(t, 1, f.srv.AuthCalls)
}

func TestPollingLogin_PreauthFailure_FailmodeSecure(t *testing.T) {
	f := newFixture(t, config.ModePolling, config.FailmodeSecure)
	f.seedUser(t, "alice", "correct-password")
	f.srv.PreauthResult = "bogus"
	svc := NewLoginService(f.deps)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Username: "alice", Password: "correct-password"})
	require.ErrorIs(t, err, ErrProviderUnavailable)
	require.ErrorContains(t, err, "unexpected preauth result", "la causa del proveedor debe viajar en el error")
	require.Zero(t, f.srv.AuthCalls)
}

func TestPollingLogin_PreauthFailure_FailmodeOpen(t *testing.T) {
	f := newFixture(t, config.ModePolling, config.FailmodeOpen)
	f.seedUser(t, "alice", "correct-password")
	f.srv.PreauthResult = "bogus"
	svc := NewLoginService(f.deps)

	res, err := svc.Login(context.Background(), dto.LoginRequest{Username: "alice", Password: "correct-password"})
	require.NoError(t, err)
	require.Equal(t, StatusAuthenticated, res.Status)
	require.True(t, res.FailOpen)
	require.Zero(t, f.srv.AuthCalls)
}

func TestPollingLogin_PreauthDeny(t *testing.T) {
	f := newFixture(t, config.ModePolling, config.FailmodeSecure)
	f.seedUser(t, "alice", "correct-password")
	f.srv.PreauthResult = "deny"
	svc := NewLoginService(f.deps)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Username: "alice", Password: "correct-password"})
	require.ErrorIs(t, err, ErrMfaDenied)
	require.Zero(t, f.srv.AuthCalls)
}

func TestPollingLogin_PreauthEnroll(t *testing.T) {
	f := newFixture(t, config.ModePolling, config.FailmodeSecure)
	f.seedUser(t, "alice", "correct-password")
	f.srv.PreauthResult = "enroll"
	f.srv.EnrollURL = "https://enroll.example.com/portal"
	svc := NewLoginService(f.deps)

	res, err := svc.Login(context.Background(), dto.LoginRequest{Username: "alice", Password: "correct-password"})
	require.NoError(t, err)
	require.Equal(t, StatusEnrollRequired, res.Status)
	require.Equal(t, "https://enroll.example.com/portal", res.EnrollURL)
}

func TestPollingLogin_CallbackAlwaysNoSession(t *testing.T) {
	f := newFixture(t, config.ModePolling, config.FailmodeSecure)
	svc := NewLoginService(f.deps)

	_, err := svc.Callback(context.Background(), "any", "any", "any")
	require.ErrorIs(t, err, ErrNoSession)
}
