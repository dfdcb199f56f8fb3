package duo

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	authorizeEndpoint = "/oauth/v1/authorize"
	tokenEndpoint     = "/oauth/v1/token"

	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	stateLength         = 36
	requestJWTTTL       = 5 * time.Minute
)

// GenerateState genera el state nonce anti-CSRF de un solo uso.
func GenerateState() (string, error) {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	var b strings.Builder
	for i := 0; i < stateLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}

// CreateAuthURL construye la URL del prompt hosteado del proveedor. El
// request va firmado (HS512 con el client secret) para que el proveedor
// pueda validar redirect_uri, state y usuario.
func (c *Client) CreateAuthURL(username, state string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("duo: username is required")
	}
	if len(state) < 16 {
		return "", fmt.Errorf("duo: state too short")
	}

	now := time.Now().UTC()
	claims := jwtv5.MapClaims{
		"iss":                    c.cfg.ClientID,
		"aud":                    c.baseURL(),
		"exp":                    now.Add(requestJWTTTL).Unix(),
		"client_id":              c.cfg.ClientID,
		"redirect_uri":           c.cfg.RedirectURI,
		"response_type":          "code",
		"scope":                  "openid",
		"state":                  state,
		"duo_uname":              username,
		"use_duo_code_attribute": true,
	}

	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS512, claims).
		SignedString([]byte(c.cfg.ClientSecret))
	if err != nil {
		return "", fmt.Errorf("duo: sign request: %w", err)
	}

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("request", signed)

	return c.baseURL() + authorizeEndpoint + "?" + q.Encode(), nil
}

// AuthResultClaims es el resultado verificado del exchange.
type AuthResultClaims struct {
	Username  string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	// AuthContext: detalle del factor usado, tal como lo reporta el proveedor.
	AuthContext map[string]any
}

type tokenResponse struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ExchangeAuthorizationCode canjea el code de un solo uso por una identidad
// verificada. NUNCA reintentar: el code ya quedó consumido en el proveedor.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, code, username string) (*AuthResultClaims, error) {
	if code == "" {
		return nil, fmt.Errorf("duo: missing authorization code")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	tokenURL := c.baseURL() + tokenEndpoint

	assertion, err := c.clientAssertion(tokenURL)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_assertion_type", clientAssertionType)
	form.Set("client_assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duo: token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		// el body trae {"error": "...", "error_description": "..."}
		var oerr struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		_ = json.Unmarshal(body, &oerr)
		if oerr.Error != "" {
			return nil, fmt.Errorf("duo: exchange failed: %s: %s", oerr.Error, oerr.Description)
		}
		return nil, fmt.Errorf("duo: exchange failed: http %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("duo: decode token response: %w", err)
	}
	if tr.IDToken == "" {
		return nil, fmt.Errorf("duo: token response missing id_token")
	}

	return c.verifyIDToken(tr.IDToken, tokenURL, username)
}

// clientAssertion arma el JWT de autenticación de la aplicación.
func (c *Client) clientAssertion(audience string) (string, error) {
	now := time.Now().UTC()
	claims := jwtv5.MapClaims{
		"iss": c.cfg.ClientID,
		"sub": c.cfg.ClientID,
		"aud": audience,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(requestJWTTTL).Unix(),
	}
	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS512, claims).
		SignedString([]byte(c.cfg.ClientSecret))
	if err != nil {
		return "", fmt.Errorf("duo: sign client assertion: %w", err)
	}
	return signed, nil
}

// verifyIDToken valida firma, issuer, audience y usuario del id_token.
func (c *Client) verifyIDToken(raw, expectedIss, username string) (*AuthResultClaims, error) {
	tk, err := jwtv5.Parse(raw, func(t *jwtv5.Token) (any, error) {
		return []byte(c.cfg.ClientSecret), nil
	},
		jwtv5.WithValidMethods([]string{"HS512"}),
		jwtv5.WithIssuer(expectedIss),
		jwtv5.WithAudience(c.cfg.ClientID),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithLeeway(60*time.Second),
	)
	if err != nil || !tk.Valid {
		return nil, fmt.Errorf("duo: invalid id_token: %w", err)
	}

	claims, ok := tk.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, fmt.Errorf("duo: invalid id_token claims")
	}

	sub, _ := claims["preferred_username"].(string)
	if sub == "" || !strings.EqualFold(sub, username) {
		return nil, fmt.Errorf("duo: id_token username mismatch")
	}

	out := &AuthResultClaims{Username: sub, Issuer: expectedIss}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if acx, ok := claims["auth_context"].(map[string]any); ok {
		out.AuthContext = acx
	}
	return out, nil
}
