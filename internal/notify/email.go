package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/dimitrije/shopfront-api/internal/config"
	"github.com/dimitrije/shopfront-api/internal/models"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Mailer struct {
	cfg  config.SMTPConfig
	send sendFunc
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg, send: smtp.SendMail}
}

func (m *Mailer) IsConfigured() bool {
	return m.cfg.Host != "" && m.cfg.Username != "" && m.cfg.Password != "" && m.cfg.From != ""
}

// Send is a no-op when SMTP is not configured.
func (m *Mailer) Send(to, subject, body string) error {
	if !m.IsConfigured() {
		return nil
	}

	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	return m.send(addr, auth, m.cfg.From, []string{to}, m.message(to, subject, body))
}

func (m *Mailer) message(to, subject, body string) []byte {
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		m.cfg.From, to, subject, body))
}

var roleChangedTmpl = template.Must(template.New("role").Parse(`
<html>
<body>
	<h2>Your access has changed</h2>
	<p>Hi,</p>
	<p>{{if .Previous}}Your role changed from <strong>{{.Previous}}</strong> to <strong>{{.Role}}</strong>.{{else}}You have been given the <strong>{{.Role}}</strong> role.{{end}}</p>
	<p>Changed by {{.ChangedBy}}.</p>
</body>
</html>
`))

var accountRemovedTmpl = template.Must(template.New("removed").Parse(`
<html>
<body>
	<h2>Your account was removed</h2>
	<p>Hi,</p>
	<p>Your storefront account {{.Email}} was removed by {{.RemovedBy}}.</p>
</body>
</html>
`))

func (m *Mailer) SendRoleChanged(to string, previous, role models.Role, changedBy string) error {
	data := struct {
		Previous  string
		Role      string
		ChangedBy string
	}{Role: role.String(), ChangedBy: changedBy}
	if previous != models.RoleNone {
		data.Previous = previous.String()
	}

	var body bytes.Buffer
	if err := roleChangedTmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render role email: %w", err)
	}
	return m.Send(to, "Your storefront role has changed", body.String())
}

func (m *Mailer) SendAccountRemoved(to, removedBy string) error {
	var body bytes.Buffer
	if err := accountRemovedTmpl.Execute(&body, map[string]string{"Email": to, "RemovedBy": removedBy}); err != nil {
		return fmt.Errorf("render removal email: %w", err)
	}
	return m.Send(to, "Your storefront account was removed", body.String())
}
