package duo_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/baluarte/authgate/internal/duo"
	"github.com/baluarte/authgate/internal/duo/duotest"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

func TestGenerateState(t *testing.T) {
	a, err := duo.GenerateState()
	if err != nil {
		t.Fatalf("GenerateState err: %v", err)
	}
	if len(a) != 36 {
		t.Fatalf("state length = %d, want 36", len(a))
	}
	for _, r := range a {
		if !strings.ContainsRune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", r) {
			t.Fatalf("state contains unexpected rune %q", r)
		}
	}
	b, _ := duo.GenerateState()
	if a == b {
		t.Fatalf("two states are identical")
	}
}

func TestHealth_Classification(t *testing.T) {
	srv := duotest.New(t)
	c := srv.Client(t)
	ctx := context.Background()

	if got := c.Health(ctx); got != duo.Healthy {
		t.Fatalf("Health = %q, want healthy", got)
	}

	srv.CheckFail = true
	if got := c.Health(ctx); got != duo.InvalidCredentials {
		t.Fatalf("Health with rejected credentials = %q, want invalid_credentials", got)
	}

	srv.CheckFail = false
	srv.PingFail = true
	if got := c.Health(ctx); got != duo.Unreachable {
		t.Fatalf("Health with ping 500 = %q, want unreachable", got)
	}
}

func TestHealth_UnreachableEndpoint(t *testing.T) {
	c, err := duo.New(duo.Config{
		ClientID:     duotest.ClientID,
		ClientSecret: duotest.ClientSecret,
		APIHostname:  "127.0.0.1:1", // nada escucha acá
		Timeout:      500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("duo.New err: %v", err)
	}
	if got := c.Health(context.Background()); got != duo.Unreachable {
		t.Fatalf("Health = %q, want unreachable", got)
	}
}

func TestPreauth_Outcomes(t *testing.T) {
	srv := duotest.New(t)
	c := srv.Client(t)
	ctx := context.Background()

	cases := []struct {
		result string
		want   duo.PreauthOutcome
	}{
		{"allow", duo.PreauthAllow},
		{"auth", duo.PreauthChallenge},
		{"enroll", duo.PreauthEnroll},
		{"deny", duo.PreauthDeny},
	}
	for _, tc := range cases {
		srv.PreauthResult = tc.result
		srv.EnrollURL = "https://enroll.example.com/portal"

		res, err := c.Preauth(ctx, "alice")
		if err != nil {
			t.Fatalf("Preauth(%s) err: %v", tc.result, err)
		}
		if res.Outcome != tc.want {
			t.Fatalf("Preauth(%s) outcome = %q, want %q", tc.result, res.Outcome, tc.want)
		}
		if tc.want == duo.PreauthEnroll && res.EnrollPortalURL == "" {
			t.Fatalf("enroll outcome without portal URL")
		}
		if tc.want == duo.PreauthChallenge && len(res.Devices) == 0 {
			t.Fatalf("challenge outcome without devices")
		}
	}
}

func TestAuth_AllowAndDeny(t *testing.T) {
	srv := duotest.New(t)
	c := srv.Client(t)
	ctx := context.Background()

	res, err := c.Auth(ctx, "alice", "", "")
	if err != nil {
		t.Fatalf("Auth err: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("Auth allow: Allowed = false")
	}

	srv.AuthResult = "deny"
	res, err = c.Auth(ctx, "alice", "auto", "auto")
	if err != nil {
		t.Fatalf("Auth err: %v", err)
	}
	if res.Allowed {
		t.Fatalf("Auth deny: Allowed = true")
	}
}

func TestCreateAuthURL(t *testing.T) {
	srv := duotest.New(t)
	c := srv.Client(t)

	state, _ := duo.GenerateState()
	raw, err := c.CreateAuthURL("alice", state)
	if err != nil {
		t.Fatalf("CreateAuthURL err: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Path != "/oauth/v1/authorize" {
		t.Fatalf("path = %q", u.Path)
	}
	q := u.Query()
	if q.Get("response_type") != "code" || q.Get("client_id") != duotest.ClientID {
		t.Fatalf("missing oauth params: %v", q)
	}

	// El request JWT va firmado HS512 con el client secret y lleva el state.
	tk, err := jwtv5.Parse(q.Get("request"), func(t *jwtv5.Token) (any, error) {
		return []byte(duotest.ClientSecret), nil
	}, jwtv5.WithValidMethods([]string{"HS512"}))
	if err != nil || !tk.Valid {
		t.Fatalf("request JWT invalid: %v", err)
	}
	claims := tk.Claims.(jwtv5.MapClaims)
	if claims["state"] != state || claims["duo_uname"] != "alice" {
		t.Fatalf("request JWT claims = %v", claims)
	}
}

func TestCreateAuthURL_RejectsShortState(t *testing.T) {
	srv := duotest.New(t)
	c := srv.Client(t)

	if _, err := c.CreateAuthURL("alice", "short"); err == nil {
		t.Fatalf("CreateAuthURL accepted a short state")
	}
	if _, err := c.CreateAuthURL("", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"); err == nil {
		t.Fatalf("CreateAuthURL accepted empty username")
	}
}

func TestExchangeAuthorizationCode(t *testing.T) {
	srv := duotest.New(t)
	srv.TokenUsername = "alice"
	c := srv.Client(t)
	ctx := context.Background()

	claims, err := c.ExchangeAuthorizationCode(ctx, srv.IssueCode(), "alice")
	if err != nil {
		t.Fatalf("Exchange err: %v", err)
	}
	if claims.Username != "alice" {
		t.Fatalf("Username = %q, want alice", claims.Username)
	}
	if claims.AuthContext["factor"] != "duo_push" {
		t.Fatalf("AuthContext = %v", claims.AuthContext)
	}
}

func TestExchange_UsernameMismatch(t *testing.T) {
	srv := duotest.New(t)
	srv.TokenUsername = "mallory"
	c := srv.Client(t)

	if _, err := c.ExchangeAuthorizationCode(context.Background(), srv.IssueCode(), "alice"); err == nil {
		t.Fatalf("Exchange accepted an id_token for a different user")
	}
}

func TestExchange_ProviderError(t *testing.T) {
	srv := duotest.New(t)
	srv.TokenFail = true
	c := srv.Client(t)

	_, err := c.ExchangeAuthorizationCode(context.Background(), srv.IssueCode(), "alice")
	if err == nil {
		t.Fatalf("Exchange succeeded against a failing token endpoint")
	}
	if !strings.Contains(err.Error(), "invalid_grant") {
		t.Fatalf("err = %v, want invalid_grant detail", err)
	}
}

func TestExchange_EmptyCode(t *testing.T) {
	srv := duotest.New(t)
	c := srv.Client(t)

	if _, err := c.ExchangeAuthorizationCode(context.Background(), "", "alice"); err == nil {
		t.Fatalf("Exchange accepted an empty code")
	}
	if srv.TokenCalls != 0 {
		t.Fatalf("token endpoint was called with empty code")
	}
}
