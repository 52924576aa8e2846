package lscauth

import (
	"time"

	"github.com/lsc-studio/lscauth/jwt"
)

// AccountStatus represents the lifecycle state of a user account.
type AccountStatus string

const (
	// StatusPendingVerification is the state of every new account until its email is verified.
	StatusPendingVerification AccountStatus = "PENDING_VERIFICATION"
	StatusActive              AccountStatus = "ACTIVE"
	StatusSuspended           AccountStatus = "SUSPENDED"
	StatusDeleted             AccountStatus = "DELETED"
)

// Valid reports whether s is one of the four account states.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusPendingVerification, StatusActive, StatusSuspended, StatusDeleted:
		return true
	default:
		return false
	}
}

// DefaultPlatformRole is assigned to self-registered accounts.
const DefaultPlatformRole = "USER"

// Membership is an organization grant carried in access tokens.
type Membership = jwt.Membership

// AccessPayload is the verified claim set of an access token.
type AccessPayload = jwt.AccessPayload

// User is an account. Email is stored lowercased and trimmed.
type User struct {
	ID            string        `json:"id"`
	Email         string        `json:"email"`
	PasswordHash  string        `json:"-"`
	PlatformRole  string        `json:"platformRole"`
	Status        AccountStatus `json:"status"`
	EmailVerified bool          `json:"emailVerified"`
	Organizations []Membership  `json:"organizations"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Public returns a copy of u that is safe to hand to clients.
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.PasswordHash = ""
	out.Organizations = append([]Membership(nil), u.Organizations...)
	return &out
}

// RefreshToken is a stored session grant. Only the SHA-256 of the raw token is kept.
// ID equals the jti claim of the token.
type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	DeviceInfo string
	IPAddress  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// Active reports whether the token is neither revoked nor expired at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// VerificationToken is a pending email proof. TokenHash is a bcrypt hash.
type VerificationToken struct {
	ID        string
	UserID    string
	Email     string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// PasswordResetToken is a pending credential reset. TokenHash is the SHA-256 hex digest.
type PasswordResetToken struct {
	ID        string
	UserID    string
	Email     string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Used      bool
}

// TokenPair is the credential set returned by Login and Refresh.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt,omitempty"`
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	User   *User     `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// RegisterInput is the request of [Engine.Register].
type RegisterInput struct {
	Email    string
	Password string
}

// RegisterResult is identical for new and already registered emails.
type RegisterResult struct {
	Status  AccountStatus `json:"status"`
	Message string        `json:"message"`
}

const registerMessage = "Registration received. Check your email to verify your account."
