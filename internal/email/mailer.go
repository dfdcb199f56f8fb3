// Package email envía avisos operativos por SMTP.
package email

import (
	"fmt"
	"time"

	"github.com/baluarte/authgate/internal/observability/logger"
	mail "github.com/go-mail/mail"
)

// Config SMTP del mailer.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer envía emails. Un *Mailer nil es un no-op seguro: si SMTP no está
// configurado, los avisos simplemente no salen.
type Mailer struct {
	cfg Config
}

func New(cfg Config) *Mailer {
	if cfg.Host == "" {
		return nil
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Mailer{cfg: cfg}
}

func (m *Mailer) send(to, subject, body string) error {
	if m == nil {
		return nil
	}
	msg := mail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	d := mail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	d.Timeout = 10 * time.Second
	return d.DialAndSend(msg)
}

// SendFailOpenAlert avisa que un login entró sin segundo factor por
// failmode open. Best-effort: el error se loguea, nunca bloquea el login.
func (m *Mailer) SendFailOpenAlert(to, username string) {
	if m == nil || to == "" {
		return
	}
	subject := "[authgate] login sin MFA por failmode open"
	body := fmt.Sprintf(
		"El usuario %q inició sesión sin segundo factor porque el proveedor MFA "+
			"no estaba disponible y failmode=open.\n\nHora: %s\n",
		username, time.Now().UTC().Format(time.RFC3339),
	)
	if err := m.send(to, subject, body); err != nil {
		logger.L().Warn("fail-open alert email failed",
			logger.String("to", to),
			logger.Err(err),
		)
	}
}
