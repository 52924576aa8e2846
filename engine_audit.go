package lscauth

import (
	"context"

	"github.com/oklog/ulid/v2"
)

const (
	auditActionRegister                  = "register"
	auditActionRegisterDuplicate         = "register_duplicate"
	auditActionRegisterFailed            = "register_failed"
	auditActionLoginSuccess              = "login_success"
	auditActionLoginFailed               = "login_failed"
	auditActionLoginRateLimited          = "login_rate_limited"
	auditActionTokenRefresh              = "token_refresh"
	auditActionRefreshTokenReuse         = "refresh_token_reuse"
	auditActionRefreshFailed             = "refresh_failed"
	auditActionLogout                    = "logout"
	auditActionLogoutAll                 = "logout_all"
	auditActionVerificationSent          = "email_verification_sent"
	auditActionVerificationResendUnknown = "email_verification_resend_unknown"
	auditActionEmailVerified             = "email_verified"
	auditActionVerificationFailed        = "email_verification_failed"
	auditActionResetRequested            = "password_reset_requested"
	auditActionResetUnknownEmail         = "password_reset_unknown_email"
	auditActionResetCompleted            = "password_reset_completed"
	auditActionResetFailed               = "password_reset_failed"
	auditActionPasswordChanged           = "password_changed"
	auditActionAccountStatusChanged      = "account_status_changed"
	auditActionRateLimited               = "rate_limited"
)

// emitAudit records one security event. Client IP and user agent come from ctx. The error
// code is the kind of err, so internal causes never reach the audit trail.
func (e *Engine) emitAudit(
	ctx context.Context,
	action string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || !e.config.Audit.Enabled {
		return
	}
	if e.audit == nil && e.auditSink == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	entry := AuditLogEntry{
		ID:        ulid.Make().String(),
		Action:    action,
		UserID:    userID,
		IPAddress: ClientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Error:     string(KindOf(err)),
		Metadata:  metadata,
		CreatedAt: e.now().UTC(),
	}

	if e.audit != nil {
		e.audit.Emit(ctx, entry)
		return
	}
	e.auditSink.Emit(ctx, entry)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	policy string,
	userID string,
	metadataBuilder func() map[string]string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditActionRateLimited, false, userID, ErrRateLimited, func() map[string]string {
		base := map[string]string{
			"policy": policy,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}
