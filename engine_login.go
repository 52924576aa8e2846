package lscauth

import (
	"context"
	"fmt"

	"github.com/lsc-studio/lscauth/internal"
	"github.com/lsc-studio/lscauth/internal/flows"
	"github.com/lsc-studio/lscauth/internal/rate"
)

// Login verifies credentials and issues an access and refresh token pair. A wrong password
// and an unknown email both fail with INVALID_CREDENTIALS. Every attempt counts against the
// login window of the client address and email, whatever its outcome.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)

	if _, err := e.checkRate(ctx, rate.PolicyLogin, rate.LoginKey(ClientIPFromContext(ctx), email)); err != nil {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditActionLoginRateLimited, false, "", err, func() map[string]string {
			return map[string]string{"email": email}
		})
		return nil, err
	}

	if email == "" || password == "" {
		e.metricInc(MetricLoginFailure)
		return nil, validationError("Email and password are required")
	}

	res := flows.RunLogin(ctx, email, password, e.flows.Login)
	if res.Failure != flows.LoginFailureNone {
		err := e.loginError(res)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditActionLoginFailed, false, res.UserID, err, func() map[string]string {
			return map[string]string{
				"email":  email,
				"reason": loginFailureReason(res.Failure),
			}
		})
		return nil, err
	}
	if res.Rehashed {
		e.metricInc(MetricPasswordRehash)
	}

	user, err := e.findUserByID(ctx, res.UserID)
	if err != nil || user == nil {
		e.metricInc(MetricLoginFailure)
		return nil, internalError(fmt.Errorf("reload user %s: %w", res.UserID, err))
	}

	tokens, err := e.issueSession(ctx, user)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditActionLoginFailed, false, user.ID, err, func() map[string]string {
			return map[string]string{"reason": "session_issue"}
		})
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditActionLoginSuccess, true, user.ID, nil, nil)

	return &LoginResult{
		User:   user.Public(),
		Tokens: *tokens,
	}, nil
}

func (e *Engine) loginError(res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailureUnknownUser, flows.LoginFailureBadPassword:
		return ErrInvalidCredentials
	case flows.LoginFailureAccountStatus:
		return publicError(res.Err)
	case flows.LoginFailureUnverified:
		return ErrEmailNotVerified
	default:
		return internalError(res.Err)
	}
}

func loginFailureReason(kind flows.LoginFailureKind) string {
	switch kind {
	case flows.LoginFailureUnknownUser:
		return "unknown_email"
	case flows.LoginFailureBadPassword:
		return "bad_password"
	case flows.LoginFailureAccountStatus:
		return "account_status"
	case flows.LoginFailureUnverified:
		return "email_not_verified"
	default:
		return "store_error"
	}
}

// issueSession signs an access token and a refresh token for user and stores the refresh
// row with the client address and user agent of ctx.
func (e *Engine) issueSession(ctx context.Context, user *User) (*TokenPair, error) {
	now := e.now()

	access, err := e.codec.SignAccess(accessPayload(user))
	if err != nil {
		return nil, internalError(fmt.Errorf("sign access token: %w", err))
	}
	issued, err := e.codec.SignRefresh(user.ID)
	if err != nil {
		return nil, internalError(fmt.Errorf("sign refresh token: %w", err))
	}

	row := &RefreshToken{
		ID:         issued.JTI,
		UserID:     user.ID,
		TokenHash:  internal.HashToken(issued.Token),
		DeviceInfo: userAgentFromContext(ctx),
		IPAddress:  ClientIPFromContext(ctx),
		ExpiresAt:  issued.ExpiresAt,
		CreatedAt:  now.UTC(),
	}
	if err := e.store.CreateRefreshToken(ctx, row); err != nil {
		return nil, internalError(fmt.Errorf("store refresh token: %w", err))
	}
	e.metricInc(MetricSessionCreated)

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     issued.Token,
		TokenType:        "Bearer",
		AccessExpiresAt:  now.Add(e.codec.AccessTTL()).UTC(),
		RefreshExpiresAt: issued.ExpiresAt.UTC(),
	}, nil
}
