package lscauth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lsc-studio/lscauth/internal/rate"
	"github.com/lsc-studio/lscauth/jwt"
	"github.com/lsc-studio/lscauth/password"
)

// dummyPassword is hashed once at Build so logins for unknown emails spend the same bcrypt
// time as logins for known ones.
const dummyPassword = "lscauth-timing-equalizer"

// Builder assembles an [Engine].
//
// Builder instances are intended to be configured during initialization and used once.
type Builder struct {
	config      Config
	store       Store
	mailer      Mailer
	logger      *slog.Logger
	breach      password.BreachChecker
	rateBackend rate.Backend
	redis       redis.UniversalClient
	auditSink   AuditSink
	now         func() time.Time

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the persistence collaborator. It is required.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithMailer sets the email collaborator. Without one, emails are discarded.
func (b *Builder) WithMailer(mailer Mailer) *Builder {
	b.mailer = mailer
	return b
}

// WithLogger sets the logger used by the Engine and the components it builds.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithBreachChecker enables the breached-password lookup of the strength policy.
func (b *Builder) WithBreachChecker(checker password.BreachChecker) *Builder {
	b.breach = checker
	return b
}

// WithRedis keeps rate limit counters in Redis. Without it, counters live in process
// memory and are not shared between replicas.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	if client == nil {
		b.rateBackend = nil
		return b
	}
	b.rateBackend = rate.NewRedisBackend(client)
	return b
}

// WithAuditSink replaces the default sink, which appends entries to the Store.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the wall clock used for token expiry and audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready Engine. A Builder can be built
// once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("store required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	mailer := b.mailer
	if mailer == nil {
		mailer = NoOpMailer{}
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	codec, err := jwt.NewCodec(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Logger:        logger,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	hasher, err := password.NewBcrypt(cfg.Password.Cost)
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}
	tokenHasher, err := password.NewBcrypt(cfg.EmailVerification.TokenCost)
	if err != nil {
		return nil, fmt.Errorf("verification token hasher: %w", err)
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	engine := &Engine{
		config:      cfg,
		store:       b.store,
		mailer:      mailer,
		logger:      logger,
		codec:       codec,
		hasher:      hasher,
		tokenHasher: tokenHasher,
		policy: password.Policy{
			MinLength: cfg.Password.MinLength,
			MaxLength: cfg.Password.MaxLength,
			Breach:    b.breach,
			Logger:    logger,
		},
		metrics:   NewMetrics(cfg.Metrics),
		redis:     b.redis,
		now:       now,
		dummyHash: dummyHash,
	}

	if cfg.RateLimit.Enabled {
		backend := b.rateBackend
		if backend == nil {
			backend = rate.NewMemoryBackend(now)
		}
		engine.limiter = rate.New(backend, cfg.RateLimit.KeyPrefix, logger)
	}

	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = storeAuditSink{store: b.store, logger: logger, metrics: engine.metrics}
		}
		engine.audit = newAuditDispatcher(cfg.Audit, sink)
		if engine.audit == nil {
			engine.auditSink = sink
		}
	}

	engine.flows = engine.flowDeps()

	b.built = true

	return engine, nil
}
