package lscauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lsc-studio/lscauth/internal"
	"github.com/lsc-studio/lscauth/internal/flows"
	"github.com/lsc-studio/lscauth/internal/rate"
)

const sweepTimeout = 30 * time.Second

// VerifyEmail redeems a verification token. On success the account becomes ACTIVE with a
// verified email and the token is deleted, as one store operation. A second redemption of
// the same token fails with INVALID_TOKEN; a token for an account that is already verified
// fails with ALREADY_VERIFIED. Expired tokens fail with VERIFICATION_EXPIRED and are
// deleted.
func (e *Engine) VerifyEmail(ctx context.Context, token string) (*User, error) {
	ip := ClientIPFromContext(ctx)
	if _, err := e.checkRate(ctx, rate.PolicyVerifyEmail, rate.IPKey(rate.PolicyVerifyEmail, ip)); err != nil {
		return nil, err
	}

	res := flows.RunRedeem(ctx, token, e.flows.Verification)
	e.sweepExpiredVerificationTokens(ctx)

	if res.Failure != flows.RedeemFailureNone {
		err := redeemError(res)
		e.verificationFailed(ctx, res.Token.UserID, redeemFailureReason(res.Failure), err)
		return nil, err
	}

	user, err := e.findUserByID(ctx, res.Token.UserID)
	if err != nil {
		return nil, internalError(err)
	}
	if user == nil {
		e.discardVerificationToken(ctx, res.Token.ID)
		e.verificationFailed(ctx, res.Token.UserID, "unknown_user", ErrInvalidToken)
		return nil, ErrInvalidToken
	}
	if user.EmailVerified {
		e.discardVerificationToken(ctx, res.Token.ID)
		e.verificationFailed(ctx, user.ID, "already_verified", ErrAlreadyVerified)
		return nil, ErrAlreadyVerified
	}
	if statusErr := accountStatusError(user.Status); statusErr != nil {
		e.verificationFailed(ctx, user.ID, "account_status", statusErr)
		return nil, statusErr
	}

	if err := e.store.CompleteEmailVerification(ctx, user.ID, res.Token.ID, e.now().UTC()); err != nil {
		// A concurrent redemption deleted the token after it matched.
		if errors.Is(err, ErrNotFound) {
			e.verificationFailed(ctx, user.ID, "already_used", ErrInvalidToken)
			return nil, ErrInvalidToken
		}
		return nil, internalError(fmt.Errorf("complete email verification: %w", err))
	}

	verified, err := e.findUserByID(ctx, user.ID)
	if err != nil || verified == nil {
		return nil, internalError(fmt.Errorf("reload user %s: %w", user.ID, err))
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditActionEmailVerified, true, user.ID, nil, nil)

	return verified.Public(), nil
}

// ResendVerification issues a fresh verification token and invalidates the previous ones.
// Unknown emails and verified accounts succeed silently.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	ip := ClientIPFromContext(ctx)
	if _, err := e.checkRate(ctx, rate.PolicyResendVerification, rate.IPKey(rate.PolicyResendVerification, ip)); err != nil {
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

	var reason string
	switch {
	case user == nil:
		reason = "unknown_email"
	case user.EmailVerified:
		reason = "already_verified"
	case accountStatusError(user.Status) != nil:
		reason = "account_status"
	}
	if reason != "" {
		var userID string
		if user != nil {
			userID = user.ID
		}
		e.emitAudit(ctx, auditActionVerificationResendUnknown, false, userID, nil, func() map[string]string {
			return map[string]string{
				"email":  email,
				"reason": reason,
			}
		})
		return nil
	}

	if err := e.issueVerification(ctx, user); err != nil {
		e.logger.ErrorContext(ctx, "verification token issue failed", "user_id", user.ID, "error", err)
		return internalError(err)
	}
	return nil
}

// issueVerification replaces the user's verification tokens with a new one and emails it.
func (e *Engine) issueVerification(ctx context.Context, user *User) error {
	raw, err := internal.NewOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate verification token: %w", err)
	}
	hash, err := e.tokenHasher.Hash(raw)
	if err != nil {
		return fmt.Errorf("hash verification token: %w", err)
	}

	if _, err := e.store.DeleteVerificationTokens(ctx, user.ID); err != nil {
		return fmt.Errorf("delete previous verification tokens: %w", err)
	}

	now := e.now().UTC()
	token := &VerificationToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		TokenHash: hash,
		ExpiresAt: now.Add(e.config.EmailVerification.TokenTTL),
		CreatedAt: now,
	}
	if err := e.store.CreateVerificationToken(ctx, token); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	email := user.Email
	e.sendMail(ctx, "verification", func(ctx context.Context, m Mailer) error {
		return m.SendVerificationEmail(ctx, email, raw)
	})

	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditActionVerificationSent, true, user.ID, nil, func() map[string]string {
		return map[string]string{"token_id": token.ID}
	})
	return nil
}

func (e *Engine) verificationFailed(ctx context.Context, userID, reason string, err error) {
	e.metricInc(MetricEmailVerificationFailure)
	e.emitAudit(ctx, auditActionVerificationFailed, false, userID, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
}

func (e *Engine) discardVerificationToken(ctx context.Context, id string) {
	if err := e.store.DeleteVerificationToken(ctx, id); err != nil {
		e.logger.WarnContext(ctx, "verification token delete failed", "token_id", id, "error", err)
	}
}

func (e *Engine) sweepExpiredVerificationTokens(ctx context.Context) {
	e.goBackground(ctx, sweepTimeout, func(ctx context.Context) {
		if _, err := e.store.DeleteExpiredVerificationTokens(ctx, e.now()); err != nil {
			e.logger.WarnContext(ctx, "expired verification token sweep failed", "error", err)
		}
	})
}

// redeemError maps a failed redemption to its public error.
func redeemError(res flows.RedeemResult) error {
	switch res.Failure {
	case flows.RedeemFailureInvalid:
		return ErrInvalidToken
	case flows.RedeemFailureExpired:
		return ErrVerificationExpired
	default:
		return internalError(res.Err)
	}
}

func redeemFailureReason(kind flows.RedeemFailureKind) string {
	switch kind {
	case flows.RedeemFailureInvalid:
		return "invalid"
	case flows.RedeemFailureExpired:
		return "expired"
	default:
		return "store_error"
	}
}
