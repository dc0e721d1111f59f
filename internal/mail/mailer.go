// Package mail defines the email collaborator consumed by the session
// controller. Delivery is fire-and-forget: template rendering and transport
// live in an external service, and a failed send never blocks the primary
// response.
package mail

import (
	"context"

	"github.com/xhifi/brainloggers-backend-sub001/internal/obs"
)

// Mailer sends account lifecycle emails.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
}

// LogMailer writes the would-be sends to the structured log. Stands in for
// the real delivery service in development and tests.
type LogMailer struct{}

var _ Mailer = LogMailer{}

func (LogMailer) SendVerificationEmail(ctx context.Context, to, token string) error {
	obs.LogRequest(map[string]any{
		"level": "info",
		"msg":   "verification email queued",
		"to":    obs.MaskEmail(to),
	})
	return nil
}

func (LogMailer) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	obs.LogRequest(map[string]any{
		"level": "info",
		"msg":   "password reset email queued",
		"to":    obs.MaskEmail(to),
	})
	return nil
}
