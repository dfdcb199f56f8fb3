// Package duotest provee un proveedor MFA falso sobre TLS para tests.
//
// El server implementa los endpoints que usa el cliente real (ping, check,
// preauth, auth y token) con comportamiento programable por campos, y expone
// un constructor de duo.Client ya apuntado al server con su CA.
package duotest

import (
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/baluarte/authgate/internal/duo"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

const (
	// ClientID y ClientSecret del server falso.
	ClientID     = "DIXXXXXXXXXXXXXXXXXX"
	ClientSecret = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
)

// Server es el proveedor falso. Los campos de comportamiento pueden tocarse
// entre requests; cada handler los lee bajo lock.
type Server struct {
	srv       *httptest.Server
	certsFile string

	mu sync.Mutex

	// Comportamiento
	PingFail      bool   // ping responde 500
	CheckFail     bool   // check responde stat=FAIL (credenciales inválidas)
	PreauthResult string // allow | auth | enroll | deny (default auth)
	AuthResult    string // allow | deny (default allow)
	AuthDelay     time.Duration
	EnrollURL     string
	TokenFail     bool   // token responde error OAuth
	TokenUsername string // preferred_username del id_token
	AdminFail     bool   // Admin API responde stat=FAIL

	// Estado del Admin API falso
	groups     []map[string]string // {group_id, name}
	adminUsers map[string]string   // user_id -> username

	// Contadores de llamadas
	PingCalls    int
	CheckCalls   int
	PreauthCalls int
	AuthCalls    int
	TokenCalls   int
	AdminCalls   int
}

// New levanta el server TLS y persiste su certificado para el cliente.
func New(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		PreauthResult: "auth",
		AuthResult:    "allow",
		adminUsers:    map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v2/ping", s.handlePing)
	mux.HandleFunc("/auth/v2/check", s.handleCheck)
	mux.HandleFunc("/auth/v2/preauth", s.handlePreauth)
	mux.HandleFunc("/auth/v2/auth", s.handleAuth)
	mux.HandleFunc("/oauth/v1/token", s.handleToken)
	mux.HandleFunc("/admin/v1/groups", s.handleGroups)
	mux.HandleFunc("/admin/v1/users", s.handleUsers)
	mux.HandleFunc("/admin/v1/users/", s.handleUserGroups)

	s.srv = httptest.NewTLSServer(mux)
	t.Cleanup(s.srv.Close)

	certPath := filepath.Join(t.TempDir(), "provider-ca.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: s.srv.Certificate().Raw,
	})
	if err := os.WriteFile(certPath, pemBytes, 0o600); err != nil {
		t.Fatalf("write provider cert: %v", err)
	}
	s.certsFile = certPath

	return s
}

// Hostname devuelve host:puerto del server falso.
func (s *Server) Hostname() string {
	return strings.TrimPrefix(s.srv.URL, "https://")
}

// Config arma la configuración del cliente apuntando al server falso.
func (s *Server) Config() duo.Config {
	return duo.Config{
		ClientID:         ClientID,
		ClientSecret:     ClientSecret,
		APIHostname:      s.Hostname(),
		RedirectURI:      "https://app.example.com/duo-callback",
		Timeout:          5 * time.Second,
		ChallengeTimeout: 5 * time.Second,
		CertsFile:        s.certsFile,
	}
}

// Client construye un duo.Client contra el server falso.
func (s *Server) Client(t *testing.T) *duo.Client {
	t.Helper()
	c, err := duo.New(s.Config())
	if err != nil {
		t.Fatalf("duo.New: %v", err)
	}
	return c
}

// IssueCode no valida codes: cualquier string no vacío sirve, el server solo
// decide si el canje sale bien según TokenFail.
func (s *Server) IssueCode() string { return "fake-duo-code" }

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.PingCalls++
	fail := s.PingFail
	s.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeEnvelope(w, map[string]any{"time": time.Now().Unix()})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.CheckCalls++
	fail := s.CheckFail
	s.mu.Unlock()

	if user, _, ok := r.BasicAuth(); !ok || user != ClientID {
		writeFail(w, http.StatusUnauthorized, 40101, "Missing or invalid signature")
		return
	}
	if fail {
		writeFail(w, http.StatusUnauthorized, 40103, "Invalid integration key")
		return
	}
	writeEnvelope(w, map[string]any{"time": time.Now().Unix()})
}

func (s *Server) handlePreauth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.PreauthCalls++
	result := s.PreauthResult
	enrollURL := s.EnrollURL
	s.mu.Unlock()

	resp := map[string]any{
		"result":     result,
		"status_msg": "preauth " + result,
	}
	if result == "enroll" {
		resp["enroll_portal_url"] = enrollURL
	}
	if result == "auth" {
		resp["devices"] = []map[string]any{
			{"device": "DPFZRS9FB0D46QFTM891", "type": "phone", "display_name": "iOS", "capabilities": []string{"push", "sms"}},
		}
	}
	writeEnvelope(w, resp)
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.AuthCalls++
	result := s.AuthResult
	delay := s.AuthDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	status := "allow"
	msg := "Success. Logging you in..."
	if result != "allow" {
		status = "deny"
		msg = "Login request denied."
	}
	writeEnvelope(w, map[string]any{
		"result":     result,
		"status":     status,
		"status_msg": msg,
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.TokenCalls++
	fail := s.TokenFail
	username := s.TokenUsername
	s.mu.Unlock()

	if err := r.ParseForm(); err != nil || r.PostFormValue("code") == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_request"})
		return
	}
	if fail {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "The provided authorization grant is invalid",
		})
		return
	}

	now := time.Now().UTC()
	claims := jwtv5.MapClaims{
		"iss":                "https://" + s.Hostname() + "/oauth/v1/token",
		"aud":                ClientID,
		"iat":                now.Unix(),
		"exp":                now.Add(5 * time.Minute).Unix(),
		"preferred_username": username,
		"auth_context": map[string]any{
			"factor": "duo_push",
		},
	}
	idToken, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS512, claims).
		SignedString([]byte(ClientSecret))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"id_token":     idToken,
		"access_token": "fake-access-token",
		"token_type":   "Bearer",
	})
}

// SeedGroup registra un grupo preexistente en el Admin API falso.
func (s *Server) SeedGroup(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = append(s.groups, map[string]string{"group_id": id, "name": name})
}

// AdminUsernames devuelve los usernames aprovisionados.
func (s *Server) AdminUsernames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.adminUsers))
	for _, u := range s.adminUsers {
		out = append(out, u)
	}
	return out
}

func (s *Server) adminGate(w http.ResponseWriter) bool {
	s.mu.Lock()
	s.AdminCalls++
	fail := s.AdminFail
	s.mu.Unlock()

	if fail {
		writeFail(w, http.StatusUnauthorized, 40101, "Invalid admin credentials")
		return false
	}
	return true
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	if !s.adminGate(w) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		writeEnvelope(w, s.groups)
	case http.MethodPost:
		_ = r.ParseForm()
		g := map[string]string{
			"group_id": "DG" + strings.ToUpper(r.PostFormValue("name")),
			"name":     r.PostFormValue("name"),
		}
		s.groups = append(s.groups, g)
		writeEnvelope(w, g)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !s.adminGate(w) {
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_ = r.ParseForm()
	username := r.PostFormValue("username")

	s.mu.Lock()
	id := "DU" + strings.ToUpper(username)
	s.adminUsers[id] = username
	s.mu.Unlock()

	writeEnvelope(w, map[string]string{"user_id": id, "username": username})
}

func (s *Server) handleUserGroups(w http.ResponseWriter, r *http.Request) {
	if !s.adminGate(w) {
		return
	}
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/groups") {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeEnvelope(w, map[string]any{})
}

func writeEnvelope(w http.ResponseWriter, response any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"stat":     "OK",
		"response": response,
	})
}

func writeFail(w http.ResponseWriter, status, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"stat":    "FAIL",
		"code":    code,
		"message": msg,
	})
}
