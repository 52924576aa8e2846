package lscauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/lsc-studio/lscauth/apikey"
	"github.com/lsc-studio/lscauth/internal/flows"
	"github.com/lsc-studio/lscauth/internal/rate"
	"github.com/lsc-studio/lscauth/jwt"
	"github.com/lsc-studio/lscauth/password"
	"github.com/redis/go-redis/v9"
)

// Rate limit classes accepted by [Engine.AllowRequest].
const (
	RateClassLogin              = rate.PolicyLogin
	RateClassRegister           = rate.PolicyRegister
	RateClassResetRequest       = rate.PolicyResetRequest
	RateClassResendVerification = rate.PolicyResendVerification
	RateClassVerifyEmail        = rate.PolicyVerifyEmail
	RateClassRefresh            = rate.PolicyRefresh
	RateClassGeneral            = rate.PolicyGeneral
)

// Engine is the auth service. It orchestrates hashing, token signing, single-use tokens,
// rate limiting and auditing over a [Store].
//
// Engine instances are immutable after Build and safe for concurrent use.
type Engine struct {
	config      Config
	store       Store
	mailer      Mailer
	logger      *slog.Logger
	codec       *jwt.Codec
	hasher      *password.Bcrypt
	tokenHasher *password.Bcrypt
	policy      password.Policy
	limiter     *rate.Limiter
	redis       redis.UniversalClient
	audit       *auditDispatcher
	auditSink   AuditSink
	metrics     *Metrics
	flows       flows.Deps
	now         func() time.Time
	dummyHash   string

	background sync.WaitGroup
	closeOnce  sync.Once
}

// RateDecision is the outcome of one rate limit check.
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// PurgeResult counts the rows removed by [Engine.PurgeExpired].
type PurgeResult struct {
	RefreshTokens      int64
	VerificationTokens int64
	ResetTokens        int64
}

// Close waits for background email deliveries and sweeps, then flushes the audit buffer.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.background.Wait()
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped reports audit entries discarded because the async buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine metrics; counters keep moving after it is
// taken.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
			Sums:       map[MetricID]time.Duration{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// ValidateAccess returns the claims of a valid access token. Access tokens are stateless:
// account status changes take effect when the token expires.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*AccessPayload, error) {
	start := time.Now()
	payload := e.codec.VerifyAccess(token)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	if payload == nil {
		return nil, ErrInvalidToken
	}
	return payload, nil
}

// NewAPIKey generates an API key for the configured environment. Persist Prefix and Hash;
// hand Raw to the client once.
func (e *Engine) NewAPIKey() (apikey.Key, error) {
	key, err := apikey.Generate(e.config.APIKey.Environment)
	if err != nil {
		return apikey.Key{}, internalError(err)
	}
	return key, nil
}

// AllowRequest records one hit of class for ip. It returns a RATE_LIMITED error once the
// class budget is spent. Classes without a configured policy fall back to the general one.
func (e *Engine) AllowRequest(ctx context.Context, class, ip string) (RateDecision, error) {
	if _, ok := e.config.RateLimit.Policies[class]; !ok {
		class = rate.PolicyGeneral
	}
	return e.checkRate(ctx, class, rate.IPKey(class, ip))
}

func (e *Engine) checkRate(ctx context.Context, policy, key string) (RateDecision, error) {
	if e.limiter == nil {
		return RateDecision{Allowed: true}, nil
	}
	p, ok := e.config.RateLimit.Policies[policy]
	if !ok {
		return RateDecision{Allowed: true}, nil
	}

	d, err := e.limiter.Allow(ctx, p, key)
	if err != nil {
		e.metricInc(MetricRateLimitBackendError)
	}
	decision := RateDecision{
		Allowed:   d.Allowed,
		Limit:     d.Limit,
		Remaining: d.Remaining,
		ResetIn:   d.ResetIn,
	}
	if d.Allowed {
		return decision, nil
	}

	e.emitRateLimit(ctx, policy, "", nil)
	return decision, rateLimitedError(d.Limit, time.Duration(d.ResetSeconds())*time.Second)
}

// PurgeExpired deletes expired refresh tokens, verification tokens and reset tokens. Each
// kind is attempted even when an earlier one fails.
func (e *Engine) PurgeExpired(ctx context.Context) (PurgeResult, error) {
	now := e.now()
	var (
		res  PurgeResult
		errs []error
		err  error
	)

	if res.RefreshTokens, err = e.store.DeleteExpiredRefreshTokens(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("refresh tokens: %w", err))
	}
	if res.VerificationTokens, err = e.store.DeleteExpiredVerificationTokens(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("verification tokens: %w", err))
	}
	if res.ResetTokens, err = e.store.DeleteExpiredPasswordResetTokens(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("password reset tokens: %w", err))
	}

	if len(errs) > 0 {
		return res, internalError(errors.Join(errs...))
	}
	return res, nil
}

// goBackground runs fn detached from the request. ctx keeps its values but not its
// cancellation, so an answered request does not abort the work.
func (e *Engine) goBackground(ctx context.Context, timeout time.Duration, fn func(ctx context.Context)) {
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (e *Engine) findUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := e.store.FindUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return user, err
}

func (e *Engine) findUserByID(ctx context.Context, id string) (*User, error) {
	user, err := e.store.FindUserByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return user, err
}

func accountStatusError(status AccountStatus) error {
	switch status {
	case StatusSuspended:
		return ErrAccountSuspended
	case StatusDeleted:
		return ErrAccountDeleted
	default:
		return nil
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validEmail accepts a bare address, no display name.
func validEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// publicError passes *Error values through and hides everything else behind
// INTERNAL_ERROR.
func publicError(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return internalError(err)
}
