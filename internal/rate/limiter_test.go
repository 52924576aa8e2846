package rate

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type failingBackend struct{}

func (failingBackend) Hit(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("connection refused")
}

func TestDefaultPolicies(t *testing.T) {
	want := map[string]struct {
		window time.Duration
		max    int
	}{
		PolicyLogin:              {15 * time.Minute, 5},
		PolicyRegister:           {time.Hour, 3},
		PolicyResetRequest:       {time.Hour, 3},
		PolicyResendVerification: {time.Hour, 3},
		PolicyVerifyEmail:        {time.Hour, 10},
		PolicyRefresh:            {time.Minute, 10},
		PolicyGeneral:            {time.Minute, 20},
	}

	got := DefaultPolicies()
	if len(got) != len(want) {
		t.Fatalf("expected %d policies, got %d", len(want), len(got))
	}
	for name, w := range want {
		p, ok := got[name]
		if !ok {
			t.Fatalf("missing policy %s", name)
		}
		if p.Name != name || p.Window != w.window || p.Max != w.max || !p.Validate() {
			t.Fatalf("policy %s = %+v", name, p)
		}
	}
}

func TestKeys(t *testing.T) {
	if got := LoginKey("10.0.0.1", "  Alice@Example.COM "); got != "login:10.0.0.1:alice@example.com" {
		t.Fatalf("unexpected login key %q", got)
	}
	if got := IPKey(PolicyRefresh, ""); got != "refresh:unknown" {
		t.Fatalf("unexpected ip key %q", got)
	}
}

func TestRedisBackendFixedWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	limiter := New(NewRedisBackend(rdb), "", nil)
	policy := DefaultPolicies()[PolicyLogin]
	key := LoginKey("10.0.0.1", "alice@example.com")

	for i := 1; i <= policy.Max; i++ {
		d, err := limiter.Allow(context.Background(), policy, key)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("attempt %d unexpectedly rejected", i)
		}
		if d.Remaining != policy.Max-i {
			t.Fatalf("attempt %d: remaining %d", i, d.Remaining)
		}
	}

	d, err := limiter.Allow(context.Background(), policy, key)
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if d.Allowed || d.Remaining != 0 || d.Limit != policy.Max {
		t.Fatalf("expected sixth attempt rejected, got %+v", d)
	}
	if d.ResetIn <= 0 || d.ResetIn > policy.Window {
		t.Fatalf("unexpected reset %v", d.ResetIn)
	}

	ttl := mr.TTL("rl:" + key)
	if ttl <= 0 || ttl > policy.Window {
		t.Fatalf("expected TTL within window, got %v", ttl)
	}

	other, err := limiter.Allow(context.Background(), policy, LoginKey("10.0.0.1", "bob@example.com"))
	if err != nil || !other.Allowed {
		t.Fatalf("expected a different email to have its own budget: %+v %v", other, err)
	}

	mr.FastForward(policy.Window + time.Second)
	d, err = limiter.Allow(context.Background(), policy, key)
	if err != nil || !d.Allowed {
		t.Fatalf("expected window to reset: %+v %v", d, err)
	}
}

func TestRedisBackendRepairsMissingTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	if err := mr.Set("rl:general:10.0.0.9", "3"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	limiter := New(NewRedisBackend(rdb), "", nil)
	policy := DefaultPolicies()[PolicyGeneral]
	d, err := limiter.Allow(context.Background(), policy, IPKey(PolicyGeneral, "10.0.0.9"))
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if d.Remaining != policy.Max-4 {
		t.Fatalf("unexpected remaining %d", d.Remaining)
	}
	if ttl := mr.TTL("rl:general:10.0.0.9"); ttl <= 0 {
		t.Fatalf("expected TTL to be repaired, got %v", ttl)
	}
}

func TestBackendFailureFailsOpen(t *testing.T) {
	var logs bytes.Buffer
	limiter := New(failingBackend{}, "", slog.New(slog.NewTextHandler(&logs, nil)))
	policy := DefaultPolicies()[PolicyRefresh]

	d, err := limiter.Allow(context.Background(), policy, IPKey(PolicyRefresh, "10.0.0.1"))
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if !d.Allowed {
		t.Fatal("expected backend failure to allow the request")
	}
	if !strings.Contains(logs.String(), "level=WARN") {
		t.Fatalf("expected warning log, got %q", logs.String())
	}
}

func TestRedisDownFailsOpen(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()

	limiter := New(NewRedisBackend(rdb), "", slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	d, err := limiter.Allow(context.Background(), DefaultPolicies()[PolicyLogin], LoginKey("1.1.1.1", "a@b.c"))
	if err == nil || !d.Allowed {
		t.Fatalf("expected fail-open with error, got %+v %v", d, err)
	}
}

func TestMemoryBackendWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	backend := NewMemoryBackend(func() time.Time { return now })
	limiter := New(backend, "test", nil)
	policy := Policy{Name: "custom", Window: time.Minute, Max: 2}

	for i := 0; i < 2; i++ {
		if d, _ := limiter.Allow(context.Background(), policy, "k"); !d.Allowed {
			t.Fatalf("attempt %d unexpectedly rejected", i+1)
		}
	}

	now = now.Add(20 * time.Second)
	d, err := limiter.Allow(context.Background(), policy, "k")
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected third attempt rejected")
	}
	if d.ResetIn != 40*time.Second || d.ResetSeconds() != 40 {
		t.Fatalf("unexpected reset %v", d.ResetIn)
	}

	now = now.Add(40 * time.Second)
	if d, _ := limiter.Allow(context.Background(), policy, "k"); !d.Allowed || d.Remaining != 1 {
		t.Fatalf("expected new window, got %+v", d)
	}
}

func TestMemoryBackendSweepsClosedWindows(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	backend := NewMemoryBackend(func() time.Time { return now })

	for i := 0; i < memorySweepEvery-1; i++ {
		if _, _, err := backend.Hit(context.Background(), "key-"+time.Duration(i).String(), time.Second); err != nil {
			t.Fatalf("Hit error: %v", err)
		}
	}
	now = now.Add(2 * time.Second)
	if _, _, err := backend.Hit(context.Background(), "fresh", time.Second); err != nil {
		t.Fatalf("Hit error: %v", err)
	}
	if backend.Len() != 1 {
		t.Fatalf("expected closed windows to be swept, %d keys left", backend.Len())
	}
}

func TestMemoryBackendConcurrentHitsAreCounted(t *testing.T) {
	backend := NewMemoryBackend(nil)
	limiter := New(backend, "", nil)
	policy := Policy{Name: "burst", Window: time.Minute, Max: 50}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := limiter.Allow(context.Background(), policy, "shared")
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != policy.Max {
		t.Fatalf("expected exactly %d allowed, got %d", policy.Max, allowed)
	}
}

func TestDecisionResetSecondsFloor(t *testing.T) {
	if got := (Decision{ResetIn: 10 * time.Millisecond}).ResetSeconds(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := (Decision{ResetIn: 1500 * time.Millisecond}).ResetSeconds(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}
