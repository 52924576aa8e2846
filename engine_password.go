package lscauth

import (
	"context"
	"fmt"
	"strconv"
)

const passwordReuseViolation = "New password must differ from the current password"

// ChangePassword replaces the password of userID after checking oldPassword and the strength
// policy.
// On success every refresh token of the user is revoked, so other devices must sign in again.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if userID == "" || oldPassword == "" || newPassword == "" {
		e.passwordChangeFailed(ctx, userID, "invalid_input", ErrValidation)
		return validationError("Current and new password are required")
	}

	user, err := e.findUserByID(ctx, userID)
	if err != nil {
		return internalError(err)
	}
	if user == nil {
		e.passwordChangeFailed(ctx, userID, "user_not_found", ErrUserNotFound)
		return ErrUserNotFound
	}
	if statusErr := accountStatusError(user.Status); statusErr != nil {
		e.passwordChangeFailed(ctx, userID, "account_status", statusErr)
		return statusErr
	}

	if !e.hasher.Verify(oldPassword, user.PasswordHash) {
		e.passwordChangeFailed(ctx, userID, "invalid_current_password", ErrInvalidCredentials)
		return ErrInvalidCredentials
	}

	violations := e.policy.Validate(ctx, newPassword, user.Email)
	if e.hasher.Verify(newPassword, user.PasswordHash) {
		violations = append(violations, passwordReuseViolation)
	}
	if len(violations) > 0 {
		err := weakPasswordError(violations)
		e.passwordChangeFailed(ctx, userID, "weak_password", err)
		return err
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return internalError(err)
	}

	updated := *user
	updated.PasswordHash = newHash
	updated.UpdatedAt = e.now().UTC()
	if err := e.store.UpdateUser(ctx, &updated); err != nil {
		e.passwordChangeFailed(ctx, userID, "update_hash_failed", err)
		return internalError(fmt.Errorf("update password hash: %w", err))
	}

	revoked, err := e.store.RevokeRefreshTokens(ctx, userID, e.now())
	if err != nil {
		e.logger.ErrorContext(ctx, "session invalidation failed after password change", "user_id", userID, "error", err)
		e.passwordChangeFailed(ctx, userID, "session_invalidation_failed", err)
		return internalError(fmt.Errorf("revoke sessions: %w", err))
	}

	email := user.Email
	e.sendMail(ctx, "password_changed", func(ctx context.Context, m Mailer) error {
		return m.SendPasswordChangedEmail(ctx, email)
	})

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditActionPasswordChanged, true, userID, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.FormatInt(revoked, 10)}
	})
	return nil
}

func (e *Engine) passwordChangeFailed(ctx context.Context, userID, reason string, err error) {
	e.metricInc(MetricPasswordChangeFailure)
	e.emitAudit(ctx, auditActionPasswordChanged, false, userID, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
}
