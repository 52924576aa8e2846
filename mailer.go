package lscauth

import (
	"context"
	"log/slog"
)

// Mailer delivers account emails. The Engine treats every call as fire-and-forget: errors
// are logged and counted, never returned to the caller of the triggering operation.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, email, rawToken string) error
	SendPasswordResetEmail(ctx context.Context, email, rawToken string) error
	SendPasswordChangedEmail(ctx context.Context, email string) error
}

// NoOpMailer discards every email.
type NoOpMailer struct{}

func (NoOpMailer) SendVerificationEmail(context.Context, string, string) error  { return nil }
func (NoOpMailer) SendPasswordResetEmail(context.Context, string, string) error { return nil }
func (NoOpMailer) SendPasswordChangedEmail(context.Context, string) error       { return nil }

// LogMailer logs deliveries instead of sending them. The raw token is never logged; only
// its length is, so a development server shows that a link would have been sent.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m LogMailer) SendVerificationEmail(ctx context.Context, email, rawToken string) error {
	m.logger().InfoContext(ctx, "verification email", "to", email, "token_len", len(rawToken))
	return nil
}

func (m LogMailer) SendPasswordResetEmail(ctx context.Context, email, rawToken string) error {
	m.logger().InfoContext(ctx, "password reset email", "to", email, "token_len", len(rawToken))
	return nil
}

func (m LogMailer) SendPasswordChangedEmail(ctx context.Context, email string) error {
	m.logger().InfoContext(ctx, "password changed email", "to", email)
	return nil
}

// sendMail delivers one email in the background, bounded by Mail.Timeout. Failures are
// logged and counted, never returned.
func (e *Engine) sendMail(ctx context.Context, kind string, send func(ctx context.Context, m Mailer) error) {
	e.goBackground(ctx, e.config.Mail.Timeout, func(ctx context.Context) {
		if err := send(ctx, e.mailer); err != nil {
			e.metricInc(MetricMailFailure)
			e.logger.WarnContext(ctx, "email delivery failed", "kind", kind, "error", err)
		}
	})
}
