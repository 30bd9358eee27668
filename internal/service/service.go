// Package service holds the application use cases: authentication, the
// password lifecycle, reviews and their rating aggregate, and checkout.
package service

import (
	"context"

	"github.com/williamsbolu/natours/pkg/events"
	"github.com/williamsbolu/natours/pkg/logger"
)

// publish is fire-and-forget; event delivery never fails a use case.
func publish(ctx context.Context, bus events.Publisher, subject string, data interface{}) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, subject, data); err != nil {
		logger.WarnContext(ctx, "failed to publish event", "subject", subject, "error", err)
	}
}
