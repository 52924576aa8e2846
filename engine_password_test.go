package lscauth

import (
	"context"
	"testing"
)

func TestChangePasswordRevokesSessions(t *testing.T) {
	te := newTestEngine(t)
	user := te.registerVerified(t, "alice@example.com", testPassword)
	session := te.login(t, "alice@example.com", testPassword)

	if err := te.ChangePassword(context.Background(), user.ID, testPassword, testOtherPassword); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	te.flush()

	_, err := te.Refresh(context.Background(), session.Tokens.RefreshToken)
	requireKind(t, err, ErrTokenRevoked)
	_, err = te.Login(context.Background(), "alice@example.com", testPassword)
	requireKind(t, err, ErrInvalidCredentials)
	te.login(t, "alice@example.com", testOtherPassword)

	if got := te.mailer.changedCount(); got != 1 {
		t.Fatalf("expected 1 password changed email, got %d", got)
	}
	if got := te.metrics.Value(MetricPasswordChangeSuccess); got != 1 {
		t.Fatalf("expected 1 password change, got %d", got)
	}
}

func TestChangePasswordWrongCurrentPassword(t *testing.T) {
	te := newTestEngine(t)
	user := te.registerVerified(t, "alice@example.com", testPassword)

	err := te.ChangePassword(context.Background(), user.ID, "Wr0ng$ecurePass!", testOtherPassword)
	requireKind(t, err, ErrInvalidCredentials)

	entries := te.auditActions(auditActionPasswordChanged)
	if len(entries) != 1 || entries[0].Success || entries[0].Metadata["reason"] != "invalid_current_password" {
		t.Fatalf("expected failed password change audit, got %+v", entries)
	}
}

func TestChangePasswordRejectsReuseAndWeakPasswords(t *testing.T) {
	te := newTestEngine(t)
	user := te.registerVerified(t, "alice@example.com", testPassword)

	err := te.ChangePassword(context.Background(), user.ID, testPassword, testPassword)
	requireKind(t, err, ErrWeakPassword)
	if !containsString(err.(*Error).Violations, passwordReuseViolation) {
		t.Fatalf("expected reuse violation, got %v", err.(*Error).Violations)
	}

	err = te.ChangePassword(context.Background(), user.ID, testPassword, "weak")
	requireKind(t, err, ErrWeakPassword)

	err = te.ChangePassword(context.Background(), user.ID, "", testOtherPassword)
	requireKind(t, err, ErrValidation)
	err = te.ChangePassword(context.Background(), "missing", testPassword, testOtherPassword)
	requireKind(t, err, ErrUserNotFound)

	if got := te.metrics.Value(MetricPasswordChangeFailure); got != 4 {
		t.Fatalf("expected 4 failed changes, got %d", got)
	}
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
