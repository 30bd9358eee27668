package mailer

import (
	"context"
	"fmt"
	"html"

	"github.com/williamsbolu/natours/pkg/config"
	"github.com/williamsbolu/natours/pkg/logger"
)

// Sender delivers one rendered message and returns the provider message id when known.
type Sender interface {
	Send(ctx context.Context, toEmail, toName, subject, text, html string) (string, error)
}

// Service is the out-of-band channel used by the account flows.
type Service interface {
	SendWelcome(ctx context.Context, toEmail, toName, url string) error
	SendPasswordReset(ctx context.Context, toEmail, toName, resetURL string) error
}

type Mailer struct {
	sender Sender
}

func New(sender Sender) *Mailer {
	return &Mailer{sender: sender}
}

// FromConfig picks the dev logger, MailerSend, or SMTP, in that order.
func FromConfig(cfg config.EmailConfig) *Mailer {
	switch {
	case cfg.DevMode:
		logger.Info("mailer: dev mode, emails are logged")
		return New(NewDevMailer())
	case cfg.MailerSendKey != "":
		return New(NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.SMTPFrom))
	default:
		return New(NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS))
	}
}

func firstName(name string) string {
	for i, r := range name {
		if r == ' ' {
			return name[:i]
		}
	}
	return name
}

func (m *Mailer) SendWelcome(ctx context.Context, toEmail, toName, url string) error {
	subject := "Welcome to the Natours Family!"
	text := fmt.Sprintf("Hi %s,\n\nWelcome to Natours, we're glad to have you.\nUpload your user photo here: %s\n",
		firstName(toName), url)
	body := fmt.Sprintf(`<p>Hi %s,</p><p>Welcome to Natours, we're glad to have you.</p><p><a href="%s">Upload your user photo</a></p>`,
		html.EscapeString(firstName(toName)), html.EscapeString(url))

	id, err := m.sender.Send(ctx, toEmail, toName, subject, text, body)
	if err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}
	logger.DebugContext(ctx, "welcome email sent", "message_id", id)
	return nil
}

func (m *Mailer) SendPasswordReset(ctx context.Context, toEmail, toName, resetURL string) error {
	subject := "Your password reset token (valid for only 10 minutes)"
	text := fmt.Sprintf("Hi %s,\n\nForgot your password? Submit a PATCH request with your new password and passwordConfirm to: %s\nIf you didn't forget your password, please ignore this email.\n",
		firstName(toName), resetURL)
	body := fmt.Sprintf(`<p>Hi %s,</p><p>Forgot your password? Submit a PATCH request with your new password and passwordConfirm to:</p><p><a href="%s">%s</a></p><p>If you didn't forget your password, please ignore this email.</p>`,
		html.EscapeString(firstName(toName)), html.EscapeString(resetURL), html.EscapeString(resetURL))

	id, err := m.sender.Send(ctx, toEmail, toName, subject, text, body)
	if err != nil {
		return fmt.Errorf("send password reset: %w", err)
	}
	logger.DebugContext(ctx, "password reset email sent", "message_id", id)
	return nil
}
