package mailer

import (
	"log/slog"

	"gopkg.in/gomail.v2"

	"github.com/blogspace/backend/internal/config"
)

// Mailer delivers a single message. Callers treat delivery as best-effort;
// failures are logged, never surfaced to the end user.
type Mailer interface {
	Send(to, subject, text, html string) error
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTP(host string, port int, user, pass string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, user, pass),
		from:   user,
	}
}

func (m *SMTPMailer) Send(to, subject, text, html string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", text)
	if html != "" {
		msg.AddAlternative("text/html", html)
	}
	return m.dialer.DialAndSend(msg)
}

// LogMailer stands in when email is not configured: it logs the message
// instead of sending it.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) Send(to, subject, text, html string) error {
	m.Logger.Info("email not configured, preview", "to", to, "subject", subject, "text", text)
	return nil
}

func NewFromConfig(cfg *config.Config, l *slog.Logger) Mailer {
	if cfg.EmailHost == "" {
		return &LogMailer{Logger: l}
	}
	return NewSMTP(cfg.EmailHost, cfg.EmailPort, cfg.EmailUser, cfg.EmailPass)
}
