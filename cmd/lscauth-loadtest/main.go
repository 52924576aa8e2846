package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/lsc-studio/lscauth"
	"github.com/lsc-studio/lscauth/password"
	"github.com/redis/go-redis/v9"
)

const (
	loadPassword = "load-test-Passw0rd!"
	loadHashCost = 4
)

type sessionState struct {
	access  string
	refresh string
	ip      string
	mu      sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 1000, "number of accounts to seed and log in")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (validate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		rotate      = flag.Bool("rotate", true, "rotate refresh tokens on every refresh")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := lscauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte(strings.Repeat("a", 32))
	cfg.JWT.RefreshSecret = []byte(strings.Repeat("r", 32))
	cfg.JWT.RotateRefreshTokens = *rotate
	cfg.Password.Cost = loadHashCost
	cfg.Audit.Enabled = false
	// Counters still go through redis, but the budgets must not bind during a run.
	for _, class := range []string{lscauth.RateClassGeneral, lscauth.RateClassRefresh} {
		policy := cfg.RateLimit.Policies[class]
		policy.Max = *ops * 2
		cfg.RateLimit.Policies[class] = policy
	}

	store := lscauth.NewMemoryStore()
	engine, err := lscauth.New().
		WithConfig(cfg).
		WithStore(store).
		WithRedis(client).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states, err := seed(ctx, engine, store, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	validateStats := runValidatePhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
}

// seed inserts active accounts sharing one password hash and logs each of them in.
func seed(ctx context.Context, engine *lscauth.Engine, store lscauth.Store, users int) ([]sessionState, error) {
	hasher, err := password.NewBcrypt(loadHashCost)
	if err != nil {
		return nil, err
	}
	hash, err := hasher.Hash(loadPassword)
	if err != nil {
		return nil, err
	}

	fmt.Printf("seeding %d accounts...\n", users)
	start := time.Now()
	states := make([]sessionState, users)
	for i := range states {
		now := time.Now()
		email := fmt.Sprintf("load-%d@example.com", i)
		err := store.CreateUser(ctx, &lscauth.User{
			ID:            uuid.NewString(),
			Email:         email,
			PasswordHash:  hash,
			PlatformRole:  "USER",
			Status:        lscauth.StatusActive,
			EmailVerified: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", email, err)
		}

		ip := fmt.Sprintf("10.0.%d.%d", (i/250)%250, i%250+1)
		res, err := engine.Login(lscauth.WithClientIP(ctx, ip), email, loadPassword)
		if err != nil {
			return nil, fmt.Errorf("login %s: %w", email, err)
		}
		states[i] = sessionState{
			access:  res.Tokens.AccessToken,
			refresh: res.Tokens.RefreshToken,
			ip:      ip,
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(start).Round(time.Millisecond))
	return states, nil
}

// runValidatePhase mirrors an authenticated request: one general rate limit hit followed
// by access token validation.
func runValidatePhase(ctx context.Context, engine *lscauth.Engine, states []sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]
				state.mu.Lock()
				token, ip := state.access, state.ip
				state.mu.Unlock()

				t0 := time.Now()
				_, err := engine.AllowRequest(ctx, lscauth.RateClassGeneral, ip)
				if err == nil {
					_, err = engine.ValidateAccess(ctx, token)
				}
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runRefreshPhase(ctx context.Context, engine *lscauth.Engine, states []sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				// A rotated token is single use, so refreshes of one session are serialized.
				state.mu.Lock()
				t0 := time.Now()
				pair, err := engine.Refresh(lscauth.WithClientIP(ctx, state.ip), state.refresh)
				d := time.Since(t0)
				if err == nil {
					state.access = pair.AccessToken
					state.refresh = pair.RefreshToken
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
