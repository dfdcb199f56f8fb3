package duo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// PreauthOutcome es el resultado clasificado del preauth.
type PreauthOutcome string

const (
	// PreauthAllow: el usuario está en bypass, no se exige challenge.
	PreauthAllow PreauthOutcome = "allow"
	// PreauthChallenge: el usuario tiene dispositivo enrolado, desafiar.
	PreauthChallenge PreauthOutcome = "auth"
	// PreauthEnroll: el usuario no está enrolado; EnrollPortalURL aplica.
	PreauthEnroll PreauthOutcome = "enroll"
	// PreauthDeny: política del proveedor niega el acceso.
	PreauthDeny PreauthOutcome = "deny"
)

// Device es un dispositivo enrolado disponible para el challenge.
type Device struct {
	ID           string   `json:"device"`
	Type         string   `json:"type"`
	Name         string   `json:"display_name"`
	Capabilities []string `json:"capabilities"`
}

// PreauthResult es la variante etiquetada del preauth; nunca un union sin tipo.
type PreauthResult struct {
	Outcome         PreauthOutcome
	StatusMsg       string
	EnrollPortalURL string // solo con PreauthEnroll
	Devices         []Device
}

// AuthResult es el resultado del challenge síncrono.
type AuthResult struct {
	Allowed   bool
	Status    string
	StatusMsg string
}

// Ping verifica que el endpoint del proveedor responde. No requiere firma.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/auth/v2/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("duo: ping http %d", resp.StatusCode)
	}
	return nil
}

// Check verifica que las credenciales de aplicación son aceptadas.
func (c *Client) Check(ctx context.Context) error {
	return c.signedCall(ctx, c.cfg.ClientID, c.cfg.ClientSecret,
		http.MethodGet, "/auth/v2/check", nil, nil)
}

type preauthResponse struct {
	Result          string   `json:"result"`
	StatusMsg       string   `json:"status_msg"`
	EnrollPortalURL string   `json:"enroll_portal_url"`
	Devices         []Device `json:"devices"`
}

// Preauth consulta qué requiere el usuario ANTES de cualquier challenge.
func (c *Client) Preauth(ctx context.Context, username string) (*PreauthResult, error) {
	params := url.Values{}
	params.Set("username", username)

	var resp preauthResponse
	if err := c.signedCall(ctx, c.cfg.ClientID, c.cfg.ClientSecret,
		http.MethodPost, "/auth/v2/preauth", params, &resp); err != nil {
		return nil, err
	}

	switch PreauthOutcome(resp.Result) {
	case PreauthAllow, PreauthChallenge, PreauthEnroll, PreauthDeny:
	default:
		return nil, fmt.Errorf("duo: unexpected preauth result %q", resp.Result)
	}

	return &PreauthResult{
		Outcome:         PreauthOutcome(resp.Result),
		StatusMsg:       resp.StatusMsg,
		EnrollPortalURL: resp.EnrollPortalURL,
		Devices:         resp.Devices,
	}, nil
}

type authResponse struct {
	Result    string `json:"result"`
	Status    string `json:"status"`
	StatusMsg string `json:"status_msg"`
}

// Auth ejecuta el challenge síncrono (push/call/etc). Bloquea hasta que el
// usuario responde, el proveedor corta, o vence ChallengeTimeout. El caller
// NO debe reintentar automáticamente.
func (c *Client) Auth(ctx context.Context, username, factor, device string) (*AuthResult, error) {
	if factor == "" {
		factor = "auto"
	}
	if device == "" {
		device = "auto"
	}
	params := url.Values{}
	params.Set("username", username)
	params.Set("factor", factor)
	params.Set("device", device)

	var resp authResponse
	if err := c.signedCallTimeout(ctx, c.cfg.ClientID, c.cfg.ClientSecret,
		http.MethodPost, "/auth/v2/auth", params, &resp, c.cfg.ChallengeTimeout); err != nil {
		return nil, err
	}

	return &AuthResult{
		Allowed:   resp.Result == "allow",
		Status:    resp.Status,
		StatusMsg: resp.StatusMsg,
	}, nil
}
