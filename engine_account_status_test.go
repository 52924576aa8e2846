package lscauth

import (
	"context"
	"testing"
)

func TestSuspendRevokesSessionsAndBlocksLogin(t *testing.T) {
	te := newTestEngine(t)
	user := te.registerVerified(t, "alice@example.com", testPassword)
	session := te.login(t, "alice@example.com", testPassword)

	updated, err := te.SuspendAccount(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("SuspendAccount failed: %v", err)
	}
	if updated.Status != StatusSuspended {
		t.Fatalf("expected suspended status, got %s", updated.Status)
	}

	_, err = te.Refresh(context.Background(), session.Tokens.RefreshToken)
	requireKind(t, err, ErrTokenRevoked)
	_, err = te.Login(context.Background(), "alice@example.com", testPassword)
	requireKind(t, err, ErrAccountSuspended)

	// Access tokens are stateless and remain valid until they expire.
	if _, err := te.ValidateAccess(context.Background(), session.Tokens.AccessToken); err != nil {
		t.Fatalf("expected issued access token to stay valid: %v", err)
	}

	entries := te.auditActions(auditActionAccountStatusChanged)
	if len(entries) != 1 {
		t.Fatalf("expected 1 status audit entry, got %d", len(entries))
	}
	md := entries[0].Metadata
	if md["from"] != string(StatusActive) || md["to"] != string(StatusSuspended) || md["revoked"] != "1" {
		t.Fatalf("unexpected status audit metadata %v", md)
	}

	if _, err := te.ReactivateAccount(context.Background(), user.ID); err != nil {
		t.Fatalf("ReactivateAccount failed: %v", err)
	}
	te.login(t, "alice@example.com", testPassword)
}

func TestDeletedIsTerminal(t *testing.T) {
	te := newTestEngine(t)
	user := te.registerVerified(t, "alice@example.com", testPassword)

	if _, err := te.DeleteAccount(context.Background(), user.ID); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	_, err := te.ReactivateAccount(context.Background(), user.ID)
	requireKind(t, err, ErrAccountDeleted)

	_, err = te.Login(context.Background(), "alice@example.com", testPassword)
	requireKind(t, err, ErrAccountDeleted)

	// Same status is a no-op.
	if _, err := te.DeleteAccount(context.Background(), user.ID); err != nil {
		t.Fatalf("repeated DeleteAccount failed: %v", err)
	}
}

func TestUpdateAccountStatusValidation(t *testing.T) {
	te := newTestEngine(t)
	user := te.registerVerified(t, "alice@example.com", testPassword)

	_, err := te.UpdateAccountStatus(context.Background(), user.ID, StatusPendingVerification)
	requireKind(t, err, ErrValidation)
	_, err = te.UpdateAccountStatus(context.Background(), user.ID, AccountStatus("BANNED"))
	requireKind(t, err, ErrValidation)
	_, err = te.UpdateAccountStatus(context.Background(), "", StatusActive)
	requireKind(t, err, ErrValidation)
	_, err = te.UpdateAccountStatus(context.Background(), "missing", StatusSuspended)
	requireKind(t, err, ErrUserNotFound)

	if got := te.metrics.Value(MetricAccountStatusChange); got != 0 {
		t.Fatalf("expected no status changes, got %d", got)
	}
}
