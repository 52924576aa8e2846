package lscauth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword      = "Sup3r$ecurePass!"
	testOtherPassword = "An0ther$ecurePass"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMailer struct {
	mu           sync.Mutex
	verification map[string][]string
	reset        map[string][]string
	changed      []string
	err          error
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{
		verification: make(map[string][]string),
		reset:        make(map[string][]string),
	}
}

func (m *recordingMailer) SendVerificationEmail(_ context.Context, email, rawToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verification[email] = append(m.verification[email], rawToken)
	return m.err
}

func (m *recordingMailer) SendPasswordResetEmail(_ context.Context, email, rawToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset[email] = append(m.reset[email], rawToken)
	return m.err
}

func (m *recordingMailer) SendPasswordChangedEmail(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changed = append(m.changed, email)
	return m.err
}

func (m *recordingMailer) verificationTokens(email string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.verification[email]...)
}

func (m *recordingMailer) resetTokens(email string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reset[email]...)
}

func (m *recordingMailer) changedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.changed)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte(strings.Repeat("a", 32))
	cfg.JWT.RefreshSecret = []byte(strings.Repeat("r", 32))
	cfg.Password.Cost = bcrypt.MinCost
	cfg.EmailVerification.TokenCost = bcrypt.MinCost
	cfg.RateLimit.Enabled = false
	cfg.Audit.Async = false
	return cfg
}

type testEngine struct {
	*Engine
	store  *MemoryStore
	mailer *recordingMailer
	clock  *testClock
}

func newTestEngine(t *testing.T, mutate ...func(*Config)) *testEngine {
	t.Helper()
	return newTestEngineWithStore(t, NewMemoryStore(), mutate...)
}

func newTestEngineWithStore(t *testing.T, store *MemoryStore, mutate ...func(*Config)) *testEngine {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	te := &testEngine{
		store:  store,
		mailer: newRecordingMailer(),
		clock:  newTestClock(),
	}
	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithMailer(te.mailer).
		WithClock(te.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	te.Engine = engine
	return te
}

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

// flush waits for background email deliveries and token sweeps.
func (te *testEngine) flush() {
	te.background.Wait()
}

func (te *testEngine) register(t *testing.T, email, password string) string {
	t.Helper()
	if _, err := te.Register(context.Background(), RegisterInput{Email: email, Password: password}); err != nil {
		t.Fatalf("Register(%s) failed: %v", email, err)
	}
	te.flush()

	tokens := te.mailer.verificationTokens(email)
	if len(tokens) == 0 {
		t.Fatalf("expected verification email for %s", email)
	}
	return tokens[len(tokens)-1]
}

func (te *testEngine) registerVerified(t *testing.T, email, password string) *User {
	t.Helper()
	token := te.register(t, email, password)
	user, err := te.VerifyEmail(context.Background(), token)
	if err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	return user
}

func (te *testEngine) login(t *testing.T, email, password string) *LoginResult {
	t.Helper()
	res, err := te.Login(context.Background(), email, password)
	if err != nil {
		t.Fatalf("Login(%s) failed: %v", email, err)
	}
	return res
}

func (te *testEngine) auditActions(action string) []AuditLogEntry {
	var out []AuditLogEntry
	for _, entry := range te.store.AuditLog() {
		if entry.Action == action {
			out = append(out, entry)
		}
	}
	return out
}

func requireKind(t *testing.T, err error, want *Error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Kind, err)
	}
}

var errTestMail = errors.New("smtp unavailable")
