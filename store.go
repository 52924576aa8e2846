package lscauth

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Store lookups that match no row.
	ErrNotFound = errors.New("lscauth: not found")
	// ErrDuplicateEmail is returned by CreateUser and UpdateUser when the email is taken.
	ErrDuplicateEmail = errors.New("lscauth: email already exists")
	// ErrDuplicateToken is returned when a token id or hash is already stored.
	ErrDuplicateToken = errors.New("lscauth: duplicate token")
)

// UserStore persists accounts. Emails are passed already normalized.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
}

// RefreshTokenStore persists refresh token rows.
//
// RevokeRefreshToken and RotateRefreshToken are conditional on revoked_at being unset; their
// boolean result is the authoritative signal of whether this call performed the revocation.
// RevokeRefreshTokens is idempotent and returns the number of rows it changed.
type RefreshTokenStore interface {
	FindRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	CreateRefreshToken(ctx context.Context, token *RefreshToken) error
	RevokeRefreshToken(ctx context.Context, id string, at time.Time) (bool, error)
	RotateRefreshToken(ctx context.Context, oldID string, at time.Time, next *RefreshToken) (bool, error)
	RevokeRefreshTokens(ctx context.Context, userID string, at time.Time) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// VerificationTokenStore persists email verification tokens.
//
// CompleteEmailVerification activates the user, marks the email verified and deletes the
// token as one atomic step.
type VerificationTokenStore interface {
	FindVerificationTokensUnexpired(ctx context.Context, now time.Time) ([]VerificationToken, error)
	FindVerificationTokensExpired(ctx context.Context, now time.Time) ([]VerificationToken, error)
	CreateVerificationToken(ctx context.Context, token *VerificationToken) error
	DeleteVerificationToken(ctx context.Context, id string) error
	DeleteVerificationTokens(ctx context.Context, userID string) (int64, error)
	DeleteExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error)
	CompleteEmailVerification(ctx context.Context, userID, tokenID string, at time.Time) error
}

// PasswordResetTokenStore persists password reset tokens. The Find methods return unused
// tokens only.
//
// CompletePasswordReset flips used, stores the new password hash and revokes every refresh
// token of the user as one atomic step. It reports false when the token was already used.
type PasswordResetTokenStore interface {
	FindPasswordResetTokensUnexpired(ctx context.Context, now time.Time) ([]PasswordResetToken, error)
	FindPasswordResetTokensExpired(ctx context.Context, now time.Time) ([]PasswordResetToken, error)
	CreatePasswordResetToken(ctx context.Context, token *PasswordResetToken) error
	DeletePasswordResetToken(ctx context.Context, id string) error
	DeletePasswordResetTokens(ctx context.Context, userID string) (int64, error)
	DeleteExpiredPasswordResetTokens(ctx context.Context, now time.Time) (int64, error)
	CompletePasswordReset(ctx context.Context, tokenID, userID, passwordHash string, at time.Time) (bool, error)
}

// AuditLogStore appends audit entries.
type AuditLogStore interface {
	AppendAuditLog(ctx context.Context, entry AuditLogEntry) error
}

// Store is the persistence collaborator of the Engine.
//
// Implementations must make every conditional update atomic at the row level. [MemoryStore]
// is the in-process implementation; store/postgres is the SQL one.
type Store interface {
	UserStore
	RefreshTokenStore
	VerificationTokenStore
	PasswordResetTokenStore
	AuditLogStore
}
