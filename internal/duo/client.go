// Package duo implementa el cliente del proveedor MFA externo.
//
// Hay dos estilos de integración, ambos sobre la misma API HTTPS:
//
//   - Auth API (polling): preauth + auth síncrono. El challenge (push, call)
//     bloquea hasta que el usuario responde o el proveedor corta por timeout.
//   - Universal (redirect): el navegador va al prompt hosteado del proveedor
//     y vuelve al callback con un authorization code de un solo uso.
package duo

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Config del cliente.
type Config struct {
	ClientID     string // integration key
	ClientSecret string // secret key
	APIHostname  string // api-XXXXXXXX.duosecurity.com
	RedirectURI  string // callback de este sistema (modo redirect)

	// Timeout de las llamadas cortas (ping/check/preauth/exchange).
	Timeout time.Duration
	// ChallengeTimeout acota el auth síncrono (push/call).
	ChallengeTimeout time.Duration

	// CertsFile opcional: CA bundle propio para validar el endpoint.
	CertsFile string
}

// Client habla con la API del proveedor. Seguro para uso concurrente.
type Client struct {
	cfg  Config
	http *http.Client

	health healthProbe
}

func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.APIHostname == "" {
		return nil, fmt.Errorf("duo: client_id, client_secret and api_hostname are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ChallengeTimeout <= 0 {
		cfg.ChallengeTimeout = 60 * time.Second
	}

	transport := http.DefaultTransport
	if cfg.CertsFile != "" {
		pem, err := os.ReadFile(cfg.CertsFile)
		if err != nil {
			return nil, fmt.Errorf("duo: read certs file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("duo: no certs parsed from %s", cfg.CertsFile)
		}
		transport = &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			// Timeout por request lo pone cada llamada via context;
			// este es el techo absoluto.
			Timeout: cfg.ChallengeTimeout + cfg.Timeout,
		},
	}, nil
}

func (c *Client) baseURL() string { return "https://" + c.cfg.APIHostname }

// apiError es un error clasificado que reporta la API (stat=FAIL).
type apiError struct {
	Code    int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("duo: api error %d: %s", e.Code, e.Message)
}

// apiEnvelope es el sobre estándar de la Auth/Admin API.
type apiEnvelope struct {
	Stat     string          `json:"stat"`
	Code     int             `json:"code"`
	Message  string          `json:"message"`
	Response json.RawMessage `json:"response"`
}

// signedCall firma y ejecuta una llamada a la Auth/Admin API.
// La firma es HMAC-SHA512 sobre fecha, método, host, path y parámetros
// canonicalizados, con Basic auth ikey:firma.
func (c *Client) signedCall(ctx context.Context, ikey, skey, method, path string, params url.Values, out any) error {
	return c.signedCallTimeout(ctx, ikey, skey, method, path, params, out, c.cfg.Timeout)
}

func (c *Client) signedCallTimeout(ctx context.Context, ikey, skey, method, path string, params url.Values, out any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	canon := canonParams(params)
	date := time.Now().UTC().Format(time.RFC1123Z)
	sig := signRequest(skey, date, method, c.cfg.APIHostname, path, canon)

	var req *http.Request
	var err error
	if method == http.MethodGet {
		u := c.baseURL() + path
		if canon != "" {
			u += "?" + canon
		}
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL()+path, strings.NewReader(canon))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return err
	}
	req.Header.Set("Date", date)
	req.SetBasicAuth(ikey, hex.EncodeToString(sig))

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("duo: invalid response (http %d): %w", resp.StatusCode, err)
	}
	if env.Stat != "OK" {
		return &apiError{Code: env.Code, Message: env.Message}
	}
	if out != nil && len(env.Response) > 0 {
		if err := json.Unmarshal(env.Response, out); err != nil {
			return fmt.Errorf("duo: decode response: %w", err)
		}
	}
	return nil
}

// canonParams serializa params ordenados por key (forma canónica firmable).
func canonParams(params url.Values) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		for j, v := range params[k] {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func signRequest(skey, date, method, host, path, canon string) []byte {
	payload := strings.Join([]string{
		date,
		strings.ToUpper(method),
		strings.ToLower(host),
		path,
		canon,
	}, "\n")
	mac := hmac.New(sha512.New, []byte(skey))
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
