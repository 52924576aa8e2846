package lscauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lsc-studio/lscauth/apikey"
)

func TestPurgeExpiredRemovesEveryKind(t *testing.T) {
	te := newTestEngine(t)
	te.register(t, "alice@example.com", testPassword)
	te.registerVerified(t, "bob@example.com", testPassword)
	te.login(t, "bob@example.com", testPassword)
	requestReset(t, te, "bob@example.com")

	res, err := te.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if res != (PurgeResult{}) {
		t.Fatalf("expected nothing to purge yet, got %+v", res)
	}

	te.clock.Advance(8 * 24 * time.Hour)
	res, err = te.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if res.RefreshTokens != 1 || res.VerificationTokens != 1 || res.ResetTokens != 1 {
		t.Fatalf("unexpected purge result %+v", res)
	}
}

func TestNewAPIKeyUsesConfiguredEnvironment(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.APIKey.Environment = apikey.EnvLive
	})

	key, err := te.NewAPIKey()
	if err != nil {
		t.Fatalf("NewAPIKey failed: %v", err)
	}
	if !strings.HasPrefix(key.Raw, "lsc_live_") {
		t.Fatalf("unexpected key %q", key.Raw)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	te := newTestEngine(t)
	te.Close()
	te.Close()

	var nilEngine *Engine
	nilEngine.Close()
}

func TestGetUserHidesPasswordHash(t *testing.T) {
	te := newTestEngine(t)
	user := te.registerVerified(t, "alice@example.com", testPassword)

	got, err := te.GetUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Email != "alice@example.com" || got.PasswordHash != "" {
		t.Fatalf("unexpected public user %+v", got)
	}

	if _, err := te.GetUser(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}

func TestHealthReportsRedis(t *testing.T) {
	te := newTestEngine(t)
	if h := te.Health(context.Background()); !h.Healthy() || h.RedisEnabled {
		t.Fatalf("expected healthy memory engine, got %+v", h)
	}

	mr, client := newTestRedis(t)
	engine, err := New().WithConfig(testConfig()).WithStore(NewMemoryStore()).WithRedis(client).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	withRedis := engine
	if h := withRedis.Health(context.Background()); !h.Healthy() || !h.RedisAvailable {
		t.Fatalf("expected redis to be available, got %+v", h)
	}
	mr.Close()
	if h := withRedis.Health(context.Background()); h.Healthy() || h.RedisAvailable {
		t.Fatalf("expected redis outage to be reported, got %+v", h)
	}
}
