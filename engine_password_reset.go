package lscauth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lsc-studio/lscauth/internal"
	"github.com/lsc-studio/lscauth/internal/flows"
	"github.com/lsc-studio/lscauth/internal/rate"
)

// RequestPasswordReset emails a reset link valid for PasswordReset.TokenTTL and deletes the
// user's earlier reset tokens. Unknown emails and suspended or deleted accounts succeed
// silently; the attempt is audited.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	ip := ClientIPFromContext(ctx)
	if _, err := e.checkRate(ctx, rate.PolicyResetRequest, rate.IPKey(rate.PolicyResetRequest, ip)); err != nil {
		return err
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return validationError("A valid email address is required")
	}

	user, err := e.findUserByEmail(ctx, email)
	if err != nil {
		return internalError(err)
	}
	if user == nil || accountStatusError(user.Status) != nil {
		userID, reason := "", "unknown_email"
		if user != nil {
			userID, reason = user.ID, "account_status"
		}
		e.emitAudit(ctx, auditActionResetUnknownEmail, false, userID, nil, func() map[string]string {
			return map[string]string{
				"email":  email,
				"reason": reason,
			}
		})
		return nil
	}

	raw, err := internal.NewOpaqueToken()
	if err != nil {
		return internalError(fmt.Errorf("generate reset token: %w", err))
	}
	if _, err := e.store.DeletePasswordResetTokens(ctx, user.ID); err != nil {
		return internalError(fmt.Errorf("delete previous reset tokens: %w", err))
	}

	now := e.now().UTC()
	token := &PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		TokenHash: internal.HashToken(raw),
		ExpiresAt: now.Add(e.config.PasswordReset.TokenTTL),
		CreatedAt: now,
	}
	if err := e.store.CreatePasswordResetToken(ctx, token); err != nil {
		return internalError(fmt.Errorf("store reset token: %w", err))
	}

	e.sendMail(ctx, "password_reset", func(ctx context.Context, m Mailer) error {
		return m.SendPasswordResetEmail(ctx, user.Email, raw)
	})

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditActionResetRequested, true, user.ID, nil, func() map[string]string {
		return map[string]string{"token_id": token.ID}
	})
	return nil
}

// ResetPassword redeems a reset token and sets a new password. A password that fails the
// strength policy leaves the token usable. On success the token is marked used, the hash is
// replaced and every refresh token of the user is revoked, as one store operation.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	res := flows.RunRedeem(ctx, token, e.flows.Reset)
	e.sweepExpiredResetTokens(ctx)

	if res.Failure != flows.RedeemFailureNone {
		err := redeemError(res)
		e.resetFailed(ctx, res.Token.UserID, redeemFailureReason(res.Failure), err)
		return err
	}

	user, err := e.findUserByID(ctx, res.Token.UserID)
	if err != nil {
		return internalError(err)
	}
	if user == nil {
		e.resetFailed(ctx, res.Token.UserID, "unknown_user", ErrInvalidToken)
		return ErrInvalidToken
	}
	if statusErr := accountStatusError(user.Status); statusErr != nil {
		e.resetFailed(ctx, user.ID, "account_status", statusErr)
		return statusErr
	}

	if violations := e.policy.Validate(ctx, newPassword, user.Email); len(violations) > 0 {
		err := weakPasswordError(violations)
		e.resetFailed(ctx, user.ID, "weak_password", err)
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return internalError(err)
	}

	completed, err := e.store.CompletePasswordReset(ctx, res.Token.ID, user.ID, hash, e.now().UTC())
	if err != nil {
		return internalError(fmt.Errorf("complete password reset: %w", err))
	}
	if !completed {
		e.resetFailed(ctx, user.ID, "already_used", ErrInvalidToken)
		return ErrInvalidToken
	}

	email := user.Email
	e.sendMail(ctx, "password_changed", func(ctx context.Context, m Mailer) error {
		return m.SendPasswordChangedEmail(ctx, email)
	})

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditActionResetCompleted, true, user.ID, nil, func() map[string]string {
		return map[string]string{"token_id": res.Token.ID}
	})
	return nil
}

func (e *Engine) resetFailed(ctx context.Context, userID, reason string, err error) {
	e.metricInc(MetricPasswordResetFailure)
	e.emitAudit(ctx, auditActionResetFailed, false, userID, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
}

func (e *Engine) sweepExpiredResetTokens(ctx context.Context) {
	e.goBackground(ctx, sweepTimeout, func(ctx context.Context) {
		n, err := e.store.DeleteExpiredPasswordResetTokens(ctx, e.now())
		if err != nil {
			e.logger.WarnContext(ctx, "expired reset token sweep failed", "error", err)
			return
		}
		if n > 0 {
			e.logger.DebugContext(ctx, "expired reset tokens swept", "count", n)
		}
	})
}
