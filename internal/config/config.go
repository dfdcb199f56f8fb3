package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Failmode define qué pasa cuando el proveedor MFA no está disponible.
const (
	FailmodeOpen   = "open"   // degradación permisiva: login sin segundo factor
	FailmodeSecure = "secure" // default: se rechaza el login
)

// Modos de integración con el proveedor.
const (
	ModeRedirect = "redirect" // hosted prompt con redirect + callback
	ModePolling  = "polling"  // challenge síncrono (push/call) sin redirect
)

type Config struct {
	App struct {
		// dev | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		ReadTimeout        string   `yaml:"read_timeout"`
		WriteTimeout       string   `yaml:"write_timeout"`
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"` // memory | postgres
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MinIdleConns    int    `yaml:"min_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
		Migrate bool `yaml:"migrate"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Duo struct {
		// Credenciales de la aplicación registrada en el proveedor.
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		APIHostname  string `yaml:"api_hostname"`
		RedirectURI  string `yaml:"redirect_uri"`

		// open | secure (default secure)
		Failmode string `yaml:"failmode"`
		// redirect | polling (default redirect)
		Mode string `yaml:"mode"`

		HealthTimeout    string `yaml:"health_timeout"`
		ChallengeTimeout string `yaml:"challenge_timeout"`

		// CertsFile opcional: CA bundle propio para validar el endpoint.
		CertsFile string `yaml:"certs_file"`

		Admin struct {
			// Aprovisionamiento de usuarios via Admin API en el registro.
			Enabled   bool   `yaml:"enabled"`
			IKey      string `yaml:"ikey"`
			SKey      string `yaml:"skey"`
			GroupName string `yaml:"group_name"`
		} `yaml:"admin"`
	} `yaml:"duo"`

	Session struct {
		CookieName string `yaml:"cookie_name"`
		Domain     string `yaml:"domain"`
		SameSite   string `yaml:"samesite"`
		Secure     bool   `yaml:"secure"`
		TTL        string `yaml:"ttl"`
		// PendingTTL: cuánto sobrevive un login pendiente de callback.
		PendingTTL string `yaml:"pending_ttl"`
	} `yaml:"session"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Login   struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"login"`
	} `yaml:"rate"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`

	Alerts struct {
		// FailOpenTo: destinatario del aviso cuando un login entra por
		// failmode open. Vacío = sin avisos.
		FailOpenTo string `yaml:"fail_open_to"`
	} `yaml:"alerts"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyDefaults rellena valores sanos.
func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "90s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "10m"
	}
	if c.Duo.Failmode == "" {
		c.Duo.Failmode = FailmodeSecure
	}
	if c.Duo.Mode == "" {
		c.Duo.Mode = ModeRedirect
	}
	if c.Duo.HealthTimeout == "" {
		c.Duo.HealthTimeout = "10s"
	}
	if c.Duo.ChallengeTimeout == "" {
		c.Duo.ChallengeTimeout = "60s"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "sid"
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "Lax"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "5m"
	}
	if c.Session.PendingTTL == "" {
		c.Session.PendingTTL = "5m"
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == "" {
		c.Rate.Login.Window = "1m"
	}
	if c.Duo.Admin.GroupName == "" {
		c.Duo.Admin.GroupName = "authgate_users"
	}
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("DUO_CLIENT_ID"); ok {
		c.Duo.ClientID = v
	}
	if v, ok := getEnvStr("DUO_CLIENT_SECRET"); ok {
		c.Duo.ClientSecret = v
	}
	if v, ok := getEnvStr("DUO_API_HOSTNAME"); ok {
		c.Duo.APIHostname = v
	}
	if v, ok := getEnvStr("DUO_REDIRECT_URI"); ok {
		c.Duo.RedirectURI = v
	}
	if v, ok := getEnvStr("DUO_FAILMODE"); ok {
		c.Duo.Failmode = strings.ToLower(v)
	}
	if v, ok := getEnvStr("DUO_MODE"); ok {
		c.Duo.Mode = strings.ToLower(v)
	}
	if v, ok := getEnvStr("DUO_ADMIN_IKEY"); ok {
		c.Duo.Admin.IKey = v
	}
	if v, ok := getEnvStr("DUO_ADMIN_SKEY"); ok {
		c.Duo.Admin.SKey = v
	}
	if v, ok := getEnvBool("DUO_ADMIN_ENABLED"); ok {
		c.Duo.Admin.Enabled = v
	}
	if v, ok := getEnvDur("SESSION_TTL"); ok {
		c.Session.TTL = v.String()
	}
	if v, ok := getEnvBool("SESSION_SECURE"); ok {
		c.Session.Secure = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
}

// Validate valida los valores críticos de configuración.
func (c *Config) Validate() error {
	switch c.Duo.Failmode {
	case FailmodeOpen, FailmodeSecure:
	default:
		return fmt.Errorf("config: duo.failmode debe ser %q o %q, got %q",
			FailmodeOpen, FailmodeSecure, c.Duo.Failmode)
	}
	switch c.Duo.Mode {
	case ModeRedirect, ModePolling:
	default:
		return fmt.Errorf("config: duo.mode debe ser %q o %q, got %q",
			ModeRedirect, ModePolling, c.Duo.Mode)
	}
	if c.Duo.ClientID == "" || c.Duo.ClientSecret == "" || c.Duo.APIHostname == "" {
		return fmt.Errorf("config: duo.client_id, duo.client_secret y duo.api_hostname son obligatorios")
	}
	if c.Duo.Mode == ModeRedirect && c.Duo.RedirectURI == "" {
		return fmt.Errorf("config: duo.redirect_uri es obligatorio en modo redirect")
	}
	if c.Duo.Admin.Enabled && (c.Duo.Admin.IKey == "" || c.Duo.Admin.SKey == "") {
		return fmt.Errorf("config: duo.admin.ikey y duo.admin.skey son obligatorios con admin habilitado")
	}
	for key, s := range map[string]string{
		"server.read_timeout":   c.Server.ReadTimeout,
		"server.write_timeout":  c.Server.WriteTimeout,
		"duo.health_timeout":    c.Duo.HealthTimeout,
		"duo.challenge_timeout": c.Duo.ChallengeTimeout,
		"session.ttl":           c.Session.TTL,
		"session.pending_ttl":   c.Session.PendingTTL,
		"rate.login.window":     c.Rate.Login.Window,
	} {
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("config: %s inválido: %w", key, err)
		}
	}
	// En modo polling el write timeout del server debe superar al challenge,
	// o el request se corta antes de que el usuario responda el push.
	if c.Duo.Mode == ModePolling {
		wt, _ := time.ParseDuration(c.Server.WriteTimeout)
		ct, _ := time.ParseDuration(c.Duo.ChallengeTimeout)
		if wt <= ct {
			return fmt.Errorf("config: server.write_timeout (%s) debe ser mayor que duo.challenge_timeout (%s)", wt, ct)
		}
	}
	return nil
}

// ---- Duraciones ya validadas ----

func (c *Config) SessionTTL() time.Duration       { return mustDur(c.Session.TTL) }
func (c *Config) PendingTTL() time.Duration       { return mustDur(c.Session.PendingTTL) }
func (c *Config) HealthTimeout() time.Duration    { return mustDur(c.Duo.HealthTimeout) }
func (c *Config) ChallengeTimeout() time.Duration { return mustDur(c.Duo.ChallengeTimeout) }
func (c *Config) ReadTimeout() time.Duration      { return mustDur(c.Server.ReadTimeout) }
func (c *Config) WriteTimeout() time.Duration     { return mustDur(c.Server.WriteTimeout) }
func (c *Config) LoginRateWindow() time.Duration  { return mustDur(c.Rate.Login.Window) }

func mustDur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
