package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
)

// Mailer delivers account verification codes. Actual SMTP transport is an
// external collaborator; the server only depends on this contract.
type Mailer interface {
	SendVerificationCode(ctx context.Context, email, username, code string) error
}

// LogMailer writes the code to the log instead of sending mail. It is the
// default when no SMTP host is configured.
type LogMailer struct{}

func (LogMailer) SendVerificationCode(ctx context.Context, email, username, code string) error {
	slog.Info("verification code issued", "email", email, "username", username, "code", code)
	return nil
}

// Discard drops every mail. Used in tests.
type Discard struct{}

func (Discard) SendVerificationCode(context.Context, string, string, string) error { return nil }

// SMTPMailer sends verification codes over plain SMTP with AUTH PLAIN.
// Host carries the port, e.g. "smtp.example.com:587".
type SMTPMailer struct {
	host string
	auth smtp.Auth
	from string
}

func NewSMTPMailer(host, user, password string) *SMTPMailer {
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	return &SMTPMailer{
		host: host,
		auth: smtp.PlainAuth("", user, password, hostname),
		from: user,
	}
}

func (m *SMTPMailer) SendVerificationCode(ctx context.Context, email, username, code string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Your verification code\r\n\r\nHi %s,\r\n\r\nYour verification code is %s.\r\n",
		m.from, email, username, code)
	if err := smtp.SendMail(m.host, m.auth, m.from, []string{email}, []byte(msg)); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return nil
}
