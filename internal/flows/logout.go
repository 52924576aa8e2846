package flows

import (
	"context"
	"time"

	"github.com/lsc-studio/lscauth/internal"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Now       func() time.Time
	FindToken func(ctx context.Context, tokenHash string) (*RefreshRecord, error)
	// Revoke sets revokedAt only if it is unset and reports whether this call set it.
	Revoke    func(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeAll func(ctx context.Context, userID string, at time.Time) (int64, error)
}

// LogoutResult reports what a logout changed.
type LogoutResult struct {
	Err     error
	UserID  string
	TokenID string
	Revoked bool
}

// RunLogout revokes the row matching raw. Unknown and already revoked tokens are not errors.
func RunLogout(ctx context.Context, raw string, deps LogoutDeps) LogoutResult {
	if raw == "" {
		return LogoutResult{}
	}

	record, err := deps.FindToken(ctx, internal.HashToken(raw))
	if err != nil {
		return LogoutResult{Err: err}
	}
	if record == nil || record.RevokedAt != nil {
		return LogoutResult{}
	}

	revoked, err := deps.Revoke(ctx, record.ID, deps.Now())
	return LogoutResult{
		Err:     err,
		UserID:  record.UserID,
		TokenID: record.ID,
		Revoked: revoked,
	}
}

// RunLogoutAll revokes every active row of userID. Running it twice changes nothing the
// second time.
func RunLogoutAll(ctx context.Context, userID string, deps LogoutDeps) (int64, error) {
	return deps.RevokeAll(ctx, userID, deps.Now())
}
