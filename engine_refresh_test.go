package lscauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lsc-studio/lscauth/internal"
)

func TestRefreshRotatesToken(t *testing.T) {
	te := newTestEngine(t)
	te.registerVerified(t, "alice@example.com", testPassword)
	login := te.login(t, "alice@example.com", testPassword)

	next, err := te.Refresh(context.Background(), login.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if next.RefreshToken == login.Tokens.RefreshToken {
		t.Fatal("expected a new refresh token")
	}
	if _, err := te.ValidateAccess(context.Background(), next.AccessToken); err != nil {
		t.Fatalf("expected refreshed access token to validate: %v", err)
	}

	old, err := te.store.FindRefreshTokenByHash(context.Background(), internal.HashToken(login.Tokens.RefreshToken))
	if err != nil {
		t.Fatalf("FindRefreshTokenByHash failed: %v", err)
	}
	if old.RevokedAt == nil {
		t.Fatal("expected rotated token to be revoked")
	}
	if got := te.metrics.Value(MetricRefreshSuccess); got != 1 {
		t.Fatalf("expected 1 refresh success, got %d", got)
	}
}

func TestRefreshWithoutRotationKeepsToken(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.JWT.RotateRefreshTokens = false
	})
	te.registerVerified(t, "alice@example.com", testPassword)
	login := te.login(t, "alice@example.com", testPassword)

	for i := 0; i < 2; i++ {
		next, err := te.Refresh(context.Background(), login.Tokens.RefreshToken)
		if err != nil {
			t.Fatalf("Refresh %d failed: %v", i, err)
		}
		if next.RefreshToken != login.Tokens.RefreshToken {
			t.Fatal("expected the same refresh token without rotation")
		}
		if !next.RefreshExpiresAt.Equal(login.Tokens.RefreshExpiresAt) {
			t.Fatalf("expected unchanged expiry, got %v want %v", next.RefreshExpiresAt, login.Tokens.RefreshExpiresAt)
		}
	}
}

func TestRefreshReuseRevokesAllSessions(t *testing.T) {
	te := newTestEngine(t)
	user := te.registerVerified(t, "alice@example.com", testPassword)
	first := te.login(t, "alice@example.com", testPassword)
	other := te.login(t, "alice@example.com", testPassword)

	b, err := te.Refresh(context.Background(), first.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	_, err = te.Refresh(context.Background(), first.Tokens.RefreshToken)
	requireKind(t, err, ErrTokenRevoked)

	// The successor and unrelated sessions are gone too.
	_, err = te.Refresh(context.Background(), b.RefreshToken)
	requireKind(t, err, ErrTokenRevoked)
	_, err = te.Refresh(context.Background(), other.Tokens.RefreshToken)
	requireKind(t, err, ErrTokenRevoked)

	if got := te.metrics.Value(MetricRefreshReuseDetected); got != 3 {
		t.Fatalf("expected 3 reuse detections, got %d", got)
	}
	entries := te.auditActions(auditActionRefreshTokenReuse)
	if len(entries) == 0 || entries[0].UserID != user.ID || entries[0].Error != string(KindTokenRevoked) {
		t.Fatalf("expected reuse audit entry, got %+v", entries)
	}
	if entries[0].Metadata["revoked"] != "2" {
		t.Fatalf("expected the first cascade to revoke 2 rows, got %q", entries[0].Metadata["revoked"])
	}
}

func TestRefreshConcurrentRotationHasOneWinner(t *testing.T) {
	te := newTestEngine(t)
	te.registerVerified(t, "alice@example.com", testPassword)
	login := te.login(t, "alice@example.com", testPassword)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		revoked   int
	)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := te.Refresh(context.Background(), login.Tokens.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrTokenRevoked):
				revoked++
			}
		}()
	}
	wg.Wait()

	if successes != 1 || revoked != callers-1 {
		t.Fatalf("expected 1 success and %d revoked, got %d and %d", callers-1, successes, revoked)
	}
}

func TestRefreshExpiredTokenIsInvalidWithoutCascade(t *testing.T) {
	te := newTestEngine(t)
	te.registerVerified(t, "alice@example.com", testPassword)
	stale := te.login(t, "alice@example.com", testPassword)

	te.clock.Advance(8 * 24 * time.Hour)
	fresh := te.login(t, "alice@example.com", testPassword)

	_, err := te.Refresh(context.Background(), stale.Tokens.RefreshToken)
	requireKind(t, err, ErrInvalidToken)

	if _, err := te.Refresh(context.Background(), fresh.Tokens.RefreshToken); err != nil {
		t.Fatalf("expected unrelated session to survive, got %v", err)
	}
}

func TestRefreshRejectsGarbageAndAccessTokens(t *testing.T) {
	te := newTestEngine(t)
	te.registerVerified(t, "alice@example.com", testPassword)
	login := te.login(t, "alice@example.com", testPassword)

	for _, token := range []string{"", "garbage", login.Tokens.AccessToken} {
		_, err := te.Refresh(context.Background(), token)
		requireKind(t, err, ErrInvalidToken)
	}
}

func TestRefreshSuspendedAccount(t *testing.T) {
	te := newTestEngine(t)
	user := te.registerVerified(t, "alice@example.com", testPassword)
	login := te.login(t, "alice@example.com", testPassword)

	// Flip the status behind the engine's back so the session row survives.
	stored, _ := te.store.FindUserByID(context.Background(), user.ID)
	stored.Status = StatusSuspended
	if err := te.store.UpdateUser(context.Background(), stored); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}

	_, err := te.Refresh(context.Background(), login.Tokens.RefreshToken)
	requireKind(t, err, ErrAccountSuspended)
}

func TestLogoutThenRefreshIsRevoked(t *testing.T) {
	te := newTestEngine(t)
	te.registerVerified(t, "alice@example.com", testPassword)
	login := te.login(t, "alice@example.com", testPassword)

	if err := te.Logout(context.Background(), login.Tokens.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	_, err := te.Refresh(context.Background(), login.Tokens.RefreshToken)
	requireKind(t, err, ErrTokenRevoked)

	if got := len(te.auditActions(auditActionLogout)); got != 1 {
		t.Fatalf("expected 1 logout audit entry, got %d", got)
	}
}

func TestLogoutUnknownTokenSucceedsSilently(t *testing.T) {
	te := newTestEngine(t)
	te.registerVerified(t, "alice@example.com", testPassword)
	login := te.login(t, "alice@example.com", testPassword)

	for _, token := range []string{"", "garbage", login.Tokens.AccessToken} {
		if err := te.Logout(context.Background(), token); err != nil {
			t.Fatalf("Logout(%q) failed: %v", token, err)
		}
	}
	if err := te.Logout(context.Background(), login.Tokens.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if err := te.Logout(context.Background(), login.Tokens.RefreshToken); err != nil {
		t.Fatalf("second Logout failed: %v", err)
	}
	if got := te.metrics.Value(MetricLogout); got != 1 {
		t.Fatalf("expected 1 effective logout, got %d", got)
	}
}

func TestLogoutAllIsIdempotent(t *testing.T) {
	te := newTestEngine(t)
	user := te.registerVerified(t, "alice@example.com", testPassword)
	a := te.login(t, "alice@example.com", testPassword)
	te.login(t, "alice@example.com", testPassword)

	revoked, err := te.LogoutAll(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}
	if revoked != 2 {
		t.Fatalf("expected 2 revoked sessions, got %d", revoked)
	}

	revoked, err = te.LogoutAll(context.Background(), user.ID)
	if err != nil || revoked != 0 {
		t.Fatalf("expected idempotent LogoutAll, got %d, %v", revoked, err)
	}

	_, err = te.Refresh(context.Background(), a.Tokens.RefreshToken)
	requireKind(t, err, ErrTokenRevoked)

	_, err = te.LogoutAll(context.Background(), "")
	requireKind(t, err, ErrValidation)
}
