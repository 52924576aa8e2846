package lscauth

import (
	"context"
	"fmt"
	"strconv"
)

func (e *Engine) SuspendAccount(ctx context.Context, userID string) (*User, error) {
	return e.UpdateAccountStatus(ctx, userID, StatusSuspended)
}

func (e *Engine) ReactivateAccount(ctx context.Context, userID string) (*User, error) {
	return e.UpdateAccountStatus(ctx, userID, StatusActive)
}

func (e *Engine) DeleteAccount(ctx context.Context, userID string) (*User, error) {
	return e.UpdateAccountStatus(ctx, userID, StatusDeleted)
}

// UpdateAccountStatus moves an account to status. Suspending or deleting an account revokes
// all of its refresh tokens; access tokens already issued stay valid until they expire.
// DELETED is terminal and an account cannot be moved back to PENDING_VERIFICATION.
func (e *Engine) UpdateAccountStatus(ctx context.Context, userID string, status AccountStatus) (*User, error) {
	user, revoked, err := e.updateAccountStatusAndInvalidate(ctx, userID, status)
	var from string
	if user != nil {
		from = string(user.Status)
	}
	e.emitAudit(ctx, auditActionAccountStatusChanged, err == nil, userID, err, func() map[string]string {
		return map[string]string{
			"to":      string(status),
			"from":    from,
			"revoked": strconv.FormatInt(revoked, 10),
		}
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricAccountStatusChange)
	user.Status = status
	return user.Public(), nil
}

func (e *Engine) updateAccountStatusAndInvalidate(ctx context.Context, userID string, status AccountStatus) (*User, int64, error) {
	if userID == "" {
		return nil, 0, validationError("User id is required")
	}
	if !status.Valid() || status == StatusPendingVerification {
		return nil, 0, validationError("Unsupported account status")
	}

	user, err := e.findUserByID(ctx, userID)
	if err != nil {
		return nil, 0, internalError(err)
	}
	if user == nil {
		return nil, 0, ErrUserNotFound
	}
	if user.Status == status {
		return user, 0, nil
	}
	if user.Status == StatusDeleted {
		return user, 0, ErrAccountDeleted
	}

	updated := *user
	updated.Status = status
	updated.UpdatedAt = e.now().UTC()
	if err := e.store.UpdateUser(ctx, &updated); err != nil {
		return user, 0, internalError(fmt.Errorf("update account status: %w", err))
	}

	if status != StatusSuspended && status != StatusDeleted {
		return user, 0, nil
	}
	revoked, err := e.store.RevokeRefreshTokens(ctx, user.ID, e.now())
	if err != nil {
		return user, 0, internalError(fmt.Errorf("revoke sessions: %w", err))
	}
	return user, revoked, nil
}
