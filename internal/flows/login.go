package flows

import "context"

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureUnknownUser
	LoginFailureBadPassword
	LoginFailureAccountStatus
	LoginFailureUnverified
	LoginFailureStore
)

// LoginUserRecord is a flow-local user model used by the login flow.
type LoginUserRecord struct {
	UserID        string
	Email         string
	PasswordHash  string
	Status        string
	EmailVerified bool
}

// LoginResult carries the authenticated user id or failure metadata.
type LoginResult struct {
	Failure  LoginFailureKind
	Err      error
	UserID   string
	Rehashed bool
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	PendingVerificationStatus string
	PasswordUpgradeOnLogin    bool

	// FindUser returns nil without error when no account has the email.
	FindUser func(ctx context.Context, email string) (*LoginUserRecord, error)
	// VerifyPassword must run in the same time whether or not the hash is well formed.
	VerifyPassword func(password, hash string) bool
	// DummyVerify burns one hash comparison so unknown emails cost as much as known ones.
	DummyVerify        func(password string)
	NeedsRehash        func(hash string) bool
	UpgradeHash        func(ctx context.Context, userID, password string) error
	AccountStatusError func(status string) error
	Warn               func(msg string, args ...any)
}

// RunLogin checks credentials and account state. The password is always checked before
// the account status so status is never disclosed to a caller without the password.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	user, err := deps.FindUser(ctx, email)
	if err != nil {
		return LoginResult{Failure: LoginFailureStore, Err: err}
	}
	if user == nil {
		deps.DummyVerify(password)
		return LoginResult{Failure: LoginFailureUnknownUser}
	}

	if !deps.VerifyPassword(password, user.PasswordHash) {
		return LoginResult{Failure: LoginFailureBadPassword, UserID: user.UserID}
	}

	if statusErr := deps.AccountStatusError(user.Status); statusErr != nil {
		return LoginResult{Failure: LoginFailureAccountStatus, Err: statusErr, UserID: user.UserID}
	}
	if !user.EmailVerified || user.Status == deps.PendingVerificationStatus {
		return LoginResult{Failure: LoginFailureUnverified, UserID: user.UserID}
	}

	result := LoginResult{Failure: LoginFailureNone, UserID: user.UserID}
	if deps.PasswordUpgradeOnLogin && deps.NeedsRehash != nil && deps.NeedsRehash(user.PasswordHash) {
		if err := deps.UpgradeHash(ctx, user.UserID, password); err != nil {
			if deps.Warn != nil {
				deps.Warn("lscauth: password hash upgrade failed", "user_id", user.UserID, "error", err)
			}
		} else {
			result.Rehashed = true
		}
	}
	return result
}
