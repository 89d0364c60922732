package service

import (
	"fmt"
	"net/smtp"
	"strings"

	"plant_monitor/internal/config"
)

// Mailer delivers alert emails. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(to []string, subject, body string) error
}

// SMTPMailer sends plain-text mail through a single SMTP relay.
type SMTPMailer struct {
	cfg config.Email
}

func NewSMTPMailer(cfg config.Email) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.cfg.From, strings.Join(to, ", "), subject, body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, m.cfg.From, to, []byte(msg)); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	return nil
}

// NopMailer is used when no SMTP host is configured.
type NopMailer struct{}

func (NopMailer) Send([]string, string, string) error { return nil }

// NewMailer picks the SMTP implementation when a host is configured,
// otherwise a no-op.
func NewMailer(cfg config.Email) Mailer {
	if cfg.Host == "" {
		return NopMailer{}
	}
	return NewSMTPMailer(cfg)
}
