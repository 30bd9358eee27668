package mailer

import (
	"context"

	"github.com/google/uuid"

	"github.com/williamsbolu/natours/pkg/logger"
)

// DevMailer logs messages instead of delivering them.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) Send(ctx context.Context, toEmail, toName, subject, text, _ string) (string, error) {
	id := uuid.NewString()
	logger.InfoContext(ctx, "[DEV MAIL]",
		"message_id", id,
		"to", toEmail,
		"name", toName,
		"subject", subject,
		"text", text,
	)
	return id, nil
}
