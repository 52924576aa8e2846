package rate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every counter key.
const DefaultKeyPrefix = "rl"

// Backend counts hits inside fixed windows.
//
// Hit increments the counter of key, starting a new window of the given length when none
// is open, and returns the count so far together with the time left in the window.
type Backend interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// ResetSeconds is ResetIn rounded up to whole seconds, never below one.
func (d Decision) ResetSeconds() int {
	secs := int(math.Ceil(d.ResetIn.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter applies policies to a Backend.
type Limiter struct {
	backend Backend
	prefix  string
	logger  *slog.Logger
}

// New creates a [Limiter]. An empty prefix means DefaultKeyPrefix.
func New(backend Backend, prefix string, logger *slog.Logger) *Limiter {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{backend: backend, prefix: prefix, logger: logger}
}

// Allow records a hit for key under p and reports whether it is within budget.
//
// Every call counts, allowed or not. When the backend fails the hit is allowed and the
// returned error wraps ErrBackendUnavailable.
func (l *Limiter) Allow(ctx context.Context, p Policy, key string) (Decision, error) {
	count, resetIn, err := l.backend.Hit(ctx, l.prefix+":"+key, p.Window)
	if err != nil {
		l.logger.WarnContext(ctx, "rate limit backend failed, allowing request",
			"policy", p.Name,
			"error", err,
		)
		return Decision{Allowed: true, Limit: p.Max, Remaining: p.Max, ResetIn: p.Window},
			fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	remaining := int64(p.Max) - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(p.Max),
		Limit:     p.Max,
		Remaining: int(remaining),
		ResetIn:   resetIn,
	}, nil
}

// RedisBackend keeps counters in Redis.
type RedisBackend struct {
	redis redis.UniversalClient
}

// NewRedisBackend creates a [RedisBackend].
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{redis: client}
}

// Hit implements Backend.
func (b *RedisBackend) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := b.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := b.redis.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}

	ttl, err := b.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if ttl < 0 {
		// A counter without expiry would block the key forever.
		if err := b.redis.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = window
	}
	return count, ttl, nil
}

const memorySweepEvery = 1024

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryBackend keeps counters in process memory. It suits tests and single-instance
// deployments.
type MemoryBackend struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
	hits    uint64
	now     func() time.Time
}

// NewMemoryBackend creates a [MemoryBackend]. A nil clock means time.Now.
func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{windows: make(map[string]memoryWindow), now: now}
}

// Hit implements Backend.
func (b *MemoryBackend) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	if window <= 0 {
		return 0, 0, errors.New("window must be positive")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.hits++
	if b.hits%memorySweepEvery == 0 {
		b.sweepLocked(now)
	}

	w, ok := b.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = memoryWindow{resetAt: now.Add(window)}
	}
	w.count++
	b.windows[key] = w

	return w.count, w.resetAt.Sub(now), nil
}

// Len reports the number of tracked keys, closed windows included until the next sweep.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.windows)
}

func (b *MemoryBackend) sweepLocked(now time.Time) {
	for key, w := range b.windows {
		if !now.Before(w.resetAt) {
			delete(b.windows, key)
		}
	}
}
