package lscauth

import (
	"context"
	"strconv"

	"github.com/lsc-studio/lscauth/internal/flows"
	"github.com/lsc-studio/lscauth/internal/rate"
)

// Refresh exchanges a refresh token for a new access token and, with rotation enabled, a
// new refresh token. Presenting a revoked token is treated as theft: every session of the
// owner is revoked and the call fails with TOKEN_REVOKED. An expired token fails with
// INVALID_TOKEN and revokes nothing.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	ip := ClientIPFromContext(ctx)
	if _, err := e.checkRate(ctx, rate.PolicyRefresh, rate.IPKey(rate.PolicyRefresh, ip)); err != nil {
		return nil, err
	}

	res := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditActionTokenRefresh, true, res.UserID, nil, func() map[string]string {
			md := map[string]string{"token_id": res.TokenID}
			if res.Next != nil {
				md["next_token_id"] = res.Next.ID
			}
			return md
		})
		return &TokenPair{
			AccessToken:      res.AccessToken,
			RefreshToken:     res.RefreshToken,
			TokenType:        "Bearer",
			AccessExpiresAt:  e.now().Add(e.codec.AccessTTL()).UTC(),
			RefreshExpiresAt: res.ExpiresAt.UTC(),
		}, nil

	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricRefreshFailure)
		e.logger.WarnContext(ctx, "refresh token reuse detected, revoked all sessions",
			"user_id", res.UserID,
			"token_id", res.TokenID,
			"revoked", res.Revoked,
			"race_lost", res.RaceLost,
		)
		e.emitAudit(ctx, auditActionRefreshTokenReuse, false, res.UserID, ErrTokenRevoked, func() map[string]string {
			return map[string]string{
				"token_id":  res.TokenID,
				"revoked":   strconv.FormatInt(res.Revoked, 10),
				"race_lost": strconv.FormatBool(res.RaceLost),
			}
		})
		return nil, ErrTokenRevoked

	default:
		err := e.refreshError(res)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditActionRefreshFailed, false, res.UserID, err, func() map[string]string {
			md := map[string]string{"reason": refreshFailureReason(res.Failure)}
			if res.TokenID != "" {
				md["token_id"] = res.TokenID
			}
			return md
		})
		return nil, err
	}
}

func (e *Engine) refreshError(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureInvalid, flows.RefreshFailureExpired:
		return ErrInvalidToken
	case flows.RefreshFailureAccount:
		return publicError(res.Err)
	default:
		return internalError(res.Err)
	}
}

func refreshFailureReason(kind flows.RefreshFailureKind) string {
	switch kind {
	case flows.RefreshFailureInvalid:
		return "invalid"
	case flows.RefreshFailureExpired:
		return "expired"
	case flows.RefreshFailureAccount:
		return "account"
	case flows.RefreshFailureIssue:
		return "issue"
	default:
		return "store_error"
	}
}

// Logout revokes one refresh token. Unknown and already revoked tokens succeed silently so
// logout cannot be used to probe which tokens exist.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	res := flows.RunLogout(ctx, refreshToken, e.flows.Logout)
	if res.Err != nil {
		e.logger.ErrorContext(ctx, "logout failed", "token_id", res.TokenID, "error", res.Err)
		return internalError(res.Err)
	}
	if !res.Revoked {
		return nil
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditActionLogout, true, res.UserID, nil, func() map[string]string {
		return map[string]string{"token_id": res.TokenID}
	})
	return nil
}

// LogoutAll revokes every active refresh token of userID and returns how many it revoked.
// It is idempotent: a second call revokes nothing and still succeeds.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, validationError("User id is required")
	}

	revoked, err := flows.RunLogoutAll(ctx, userID, e.flows.Logout)
	if err != nil {
		e.logger.ErrorContext(ctx, "logout all failed", "user_id", userID, "error", err)
		return 0, internalError(err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditActionLogoutAll, true, userID, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.FormatInt(revoked, 10)}
	})
	return revoked, nil
}
