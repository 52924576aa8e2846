package lscauth

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"

	"github.com/lsc-studio/lscauth/internal/rate"
)

// Register creates a PENDING_VERIFICATION account and emails a verification link. When the
// email is already registered it returns the same result as for a new account and only
// audits the attempt, so registration cannot be used to discover accounts.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	ip := ClientIPFromContext(ctx)
	if _, err := e.checkRate(ctx, rate.PolicyRegister, rate.IPKey(rate.PolicyRegister, ip)); err != nil {
		return nil, err
	}

	email := normalizeEmail(in.Email)
	if !validEmail(email) {
		e.metricInc(MetricRegisterRejected)
		return nil, validationError("A valid email address is required")
	}

	if violations := e.policy.Validate(ctx, in.Password, email); len(violations) > 0 {
		e.metricInc(MetricRegisterRejected)
		err := weakPasswordError(violations)
		e.emitAudit(ctx, auditActionRegisterFailed, false, "", err, func() map[string]string {
			return map[string]string{
				"email":      email,
				"violations": strconv.Itoa(len(violations)),
			}
		})
		return nil, err
	}

	accepted := &RegisterResult{
		Status:  StatusPendingVerification,
		Message: registerMessage,
	}

	// Duplicate emails must take as long as new ones, so hash before the lookup.
	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalError(err)
	}

	existing, err := e.findUserByEmail(ctx, email)
	if err != nil {
		return nil, internalError(err)
	}
	if existing != nil {
		e.registerDuplicate(ctx, existing.ID, email)
		return accepted, nil
	}

	now := e.now().UTC()
	user := &User{
		ID:            uuid.NewString(),
		Email:         email,
		PasswordHash:  hash,
		PlatformRole:  DefaultPlatformRole,
		Status:        StatusPendingVerification,
		EmailVerified: false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.registerDuplicate(ctx, "", email)
			return accepted, nil
		}
		e.emitAudit(ctx, auditActionRegisterFailed, false, "", err, func() map[string]string {
			return map[string]string{"email": email}
		})
		return nil, internalError(err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditActionRegister, true, user.ID, nil, nil)

	// The account exists at this point; a lost verification email is recovered through
	// ResendVerification.
	if err := e.issueVerification(ctx, user); err != nil {
		e.logger.ErrorContext(ctx, "verification token issue failed", "user_id", user.ID, "error", err)
	}

	return accepted, nil
}

func (e *Engine) registerDuplicate(ctx context.Context, userID, email string) {
	e.metricInc(MetricRegisterDuplicate)
	e.emitAudit(ctx, auditActionRegisterDuplicate, false, userID, ErrEmailExists, func() map[string]string {
		return map[string]string{"email": email}
	})
}
