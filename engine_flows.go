package lscauth

import (
	"context"
	"errors"
	"time"

	"github.com/lsc-studio/lscauth/internal"
	"github.com/lsc-studio/lscauth/internal/flows"
)

// flowDeps adapts the Store and the crypto components to the flow-local dependency sets.
func (e *Engine) flowDeps() flows.Deps {
	return flows.Deps{
		Login: flows.LoginDeps{
			PendingVerificationStatus: string(StatusPendingVerification),
			PasswordUpgradeOnLogin:    e.config.Password.UpgradeOnLogin,
			FindUser: func(ctx context.Context, email string) (*flows.LoginUserRecord, error) {
				user, err := e.findUserByEmail(ctx, email)
				if err != nil || user == nil {
					return nil, err
				}
				return &flows.LoginUserRecord{
					UserID:        user.ID,
					Email:         user.Email,
					PasswordHash:  user.PasswordHash,
					Status:        string(user.Status),
					EmailVerified: user.EmailVerified,
				}, nil
			},
			VerifyPassword: e.hasher.Verify,
			DummyVerify: func(password string) {
				_ = e.hasher.Verify(password, e.dummyHash)
			},
			NeedsRehash: e.hasher.NeedsRehash,
			UpgradeHash: e.upgradePasswordHash,
			AccountStatusError: func(status string) error {
				return accountStatusError(AccountStatus(status))
			},
			Warn: e.logger.Warn,
		},
		Refresh: flows.RefreshDeps{
			Now:           e.now,
			Rotate:        e.config.JWT.RotateRefreshTokens,
			VerifyRefresh: e.codec.VerifyRefresh,
			FindToken:     e.findRefreshRecord,
			RevokeAll:     e.store.RevokeRefreshTokens,
			IssueAccess:   e.issueAccessForUser,
			IssueRefresh:  e.issueSuccessor,
			Replace: func(ctx context.Context, oldID string, at time.Time, next flows.RefreshRecord) (bool, error) {
				return e.store.RotateRefreshToken(ctx, oldID, at, refreshTokenFromRecord(next, at))
			},
			Warn: e.logger.Warn,
		},
		Logout: flows.LogoutDeps{
			Now:       e.now,
			FindToken: e.findRefreshRecord,
			Revoke:    e.store.RevokeRefreshToken,
			RevokeAll: e.store.RevokeRefreshTokens,
		},
		Verification: flows.RedeemDeps{
			Now: e.now,
			Unexpired: func(ctx context.Context, now time.Time) ([]flows.TokenCandidate, error) {
				tokens, err := e.store.FindVerificationTokensUnexpired(ctx, now)
				return verificationCandidates(tokens), err
			},
			Expired: func(ctx context.Context, now time.Time) ([]flows.TokenCandidate, error) {
				tokens, err := e.store.FindVerificationTokensExpired(ctx, now)
				return verificationCandidates(tokens), err
			},
			Match:  flows.MatchVerification,
			Delete: e.store.DeleteVerificationToken,
		},
		Reset: flows.RedeemDeps{
			Now: e.now,
			Unexpired: func(ctx context.Context, now time.Time) ([]flows.TokenCandidate, error) {
				tokens, err := e.store.FindPasswordResetTokensUnexpired(ctx, now)
				return resetCandidates(tokens), err
			},
			Expired: func(ctx context.Context, now time.Time) ([]flows.TokenCandidate, error) {
				tokens, err := e.store.FindPasswordResetTokensExpired(ctx, now)
				return resetCandidates(tokens), err
			},
			Match:  flows.MatchReset,
			Delete: e.store.DeletePasswordResetToken,
		},
	}
}

func (e *Engine) upgradePasswordHash(ctx context.Context, userID, password string) error {
	user, err := e.store.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	hash, err := e.hasher.Hash(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = e.now().UTC()
	return e.store.UpdateUser(ctx, user)
}

func (e *Engine) findRefreshRecord(ctx context.Context, tokenHash string) (*flows.RefreshRecord, error) {
	token, err := e.store.FindRefreshTokenByHash(ctx, tokenHash)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &flows.RefreshRecord{
		ID:         token.ID,
		UserID:     token.UserID,
		TokenHash:  token.TokenHash,
		DeviceInfo: token.DeviceInfo,
		IPAddress:  token.IPAddress,
		ExpiresAt:  token.ExpiresAt,
		RevokedAt:  token.RevokedAt,
	}, nil
}

// issueAccessForUser signs an access token for a refresh. Unknown users fail as invalid
// tokens; suspended and deleted users fail with their status kind.
func (e *Engine) issueAccessForUser(ctx context.Context, userID string) (string, error) {
	user, err := e.findUserByID(ctx, userID)
	if err != nil {
		return "", internalError(err)
	}
	if user == nil {
		return "", ErrInvalidToken
	}
	if err := accountStatusError(user.Status); err != nil {
		return "", err
	}
	if !user.EmailVerified {
		return "", ErrEmailNotVerified
	}

	token, err := e.codec.SignAccess(accessPayload(user))
	if err != nil {
		return "", internalError(err)
	}
	return token, nil
}

// issueSuccessor signs the next refresh token of a rotation. The request's client address
// and user agent replace the stored ones when present.
func (e *Engine) issueSuccessor(ctx context.Context, prev flows.RefreshRecord) (string, flows.RefreshRecord, error) {
	issued, err := e.codec.SignRefresh(prev.UserID)
	if err != nil {
		return "", flows.RefreshRecord{}, err
	}

	next := flows.RefreshRecord{
		ID:         issued.JTI,
		UserID:     prev.UserID,
		TokenHash:  internal.HashToken(issued.Token),
		DeviceInfo: prev.DeviceInfo,
		IPAddress:  prev.IPAddress,
		ExpiresAt:  issued.ExpiresAt,
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		next.DeviceInfo = ua
	}
	if ip := ClientIPFromContext(ctx); ip != "" {
		next.IPAddress = ip
	}
	return issued.Token, next, nil
}

func refreshTokenFromRecord(r flows.RefreshRecord, createdAt time.Time) *RefreshToken {
	return &RefreshToken{
		ID:         r.ID,
		UserID:     r.UserID,
		TokenHash:  r.TokenHash,
		DeviceInfo: r.DeviceInfo,
		IPAddress:  r.IPAddress,
		ExpiresAt:  r.ExpiresAt,
		CreatedAt:  createdAt.UTC(),
	}
}

func verificationCandidates(tokens []VerificationToken) []flows.TokenCandidate {
	out := make([]flows.TokenCandidate, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, flows.TokenCandidate{
			ID:        t.ID,
			UserID:    t.UserID,
			Email:     t.Email,
			Hash:      t.TokenHash,
			ExpiresAt: t.ExpiresAt,
		})
	}
	return out
}

func resetCandidates(tokens []PasswordResetToken) []flows.TokenCandidate {
	out := make([]flows.TokenCandidate, 0, len(tokens))
	for _, t := range tokens {
		if t.Used {
			continue
		}
		out = append(out, flows.TokenCandidate{
			ID:        t.ID,
			UserID:    t.UserID,
			Email:     t.Email,
			Hash:      t.TokenHash,
			ExpiresAt: t.ExpiresAt,
		})
	}
	return out
}

func accessPayload(user *User) AccessPayload {
	return AccessPayload{
		Subject:       user.ID,
		Email:         user.Email,
		PlatformRole:  user.PlatformRole,
		Organizations: append([]Membership(nil), user.Organizations...),
	}
}
