// Package mail delivers receipt emails over SMTP.
package mail

import (
	"errors"

	gomail "gopkg.in/gomail.v2"
)

// ErrNotConfigured is returned when SMTP settings are absent, so callers can
// report a clear failure instead of a dial timeout.
var ErrNotConfigured = errors.New("smtp not configured")

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	m := &SMTPMailer{from: from}
	if host != "" && from != "" {
		m.dialer = gomail.NewDialer(host, port, username, password)
	}
	return m
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) error {
	if m.dialer == nil {
		return ErrNotConfigured
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	return m.dialer.DialAndSend(msg)
}
