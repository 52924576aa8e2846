package flows

import (
	"context"
	"time"

	"github.com/lsc-studio/lscauth/internal"
	"github.com/lsc-studio/lscauth/jwt"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureInvalid
	RefreshFailureExpired
	RefreshFailureReuse
	RefreshFailureAccount
	RefreshFailureIssue
	RefreshFailureStore
)

// RefreshRecord is a flow-local refresh token row.
type RefreshRecord struct {
	ID         string
	UserID     string
	TokenHash  string
	DeviceInfo string
	IPAddress  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// RefreshResult carries either the issued tokens or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	TokenID string

	// Revoked is the number of rows the reuse cascade revoked.
	Revoked int64
	// RaceLost is set when the presented token was valid but a concurrent caller rotated it first.
	RaceLost bool

	AccessToken  string
	RefreshToken string
	// ExpiresAt is the expiry of RefreshToken.
	ExpiresAt time.Time
	Next      *RefreshRecord
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now           func() time.Time
	Rotate        bool
	VerifyRefresh func(string) *jwt.RefreshPayload
	// FindToken returns nil without error when no row has the hash.
	FindToken func(ctx context.Context, tokenHash string) (*RefreshRecord, error)
	RevokeAll func(ctx context.Context, userID string, at time.Time) (int64, error)
	// IssueAccess loads the account, rejects it when it may not hold a session and signs a
	// new access token.
	IssueAccess func(ctx context.Context, userID string) (string, error)
	// IssueRefresh signs a successor token and builds its row from the predecessor.
	IssueRefresh func(ctx context.Context, prev RefreshRecord) (string, RefreshRecord, error)
	// Replace revokes oldID only if it is still active and stores next in the same
	// transaction. It reports false when another caller revoked oldID first.
	Replace func(ctx context.Context, oldID string, at time.Time, next RefreshRecord) (bool, error)
	Warn    func(msg string, args ...any)
}

// RunRefresh validates a presented refresh token and issues new credentials.
//
// Presenting a revoked token revokes every active token of its owner. Expired tokens are
// rejected without that cascade.
func RunRefresh(ctx context.Context, raw string, deps RefreshDeps) RefreshResult {
	payload := deps.VerifyRefresh(raw)
	if payload == nil {
		return RefreshResult{Failure: RefreshFailureInvalid}
	}

	record, err := deps.FindToken(ctx, internal.HashToken(raw))
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: payload.Subject}
	}
	if record == nil || record.UserID != payload.Subject || record.ID != payload.JTI {
		return RefreshResult{Failure: RefreshFailureInvalid, UserID: payload.Subject}
	}

	now := deps.Now()
	if record.RevokedAt != nil {
		return cascade(ctx, deps, record, now, false)
	}
	if !now.Before(record.ExpiresAt) {
		return RefreshResult{Failure: RefreshFailureExpired, UserID: record.UserID, TokenID: record.ID}
	}

	access, err := deps.IssueAccess(ctx, record.UserID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureAccount, Err: err, UserID: record.UserID, TokenID: record.ID}
	}

	if !deps.Rotate {
		return RefreshResult{
			Failure:      RefreshFailureNone,
			UserID:       record.UserID,
			TokenID:      record.ID,
			AccessToken:  access,
			RefreshToken: raw,
			ExpiresAt:    record.ExpiresAt,
		}
	}

	token, next, err := deps.IssueRefresh(ctx, *record)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: record.UserID, TokenID: record.ID}
	}

	replaced, err := deps.Replace(ctx, record.ID, now, next)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: record.UserID, TokenID: record.ID}
	}
	if !replaced {
		return cascade(ctx, deps, record, now, true)
	}

	return RefreshResult{
		Failure:      RefreshFailureNone,
		UserID:       record.UserID,
		TokenID:      record.ID,
		AccessToken:  access,
		RefreshToken: token,
		ExpiresAt:    next.ExpiresAt,
		Next:         &next,
	}
}

func cascade(ctx context.Context, deps RefreshDeps, record *RefreshRecord, now time.Time, raceLost bool) RefreshResult {
	revoked, err := deps.RevokeAll(ctx, record.UserID, now)
	if err != nil && deps.Warn != nil {
		deps.Warn("lscauth: refresh reuse cascade failed", "user_id", record.UserID, "error", err)
	}
	return RefreshResult{
		Failure:  RefreshFailureReuse,
		Err:      err,
		UserID:   record.UserID,
		TokenID:  record.ID,
		Revoked:  revoked,
		RaceLost: raceLost,
	}
}
