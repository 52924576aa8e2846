package lscauth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lsc-studio/lscauth/apikey"
	"github.com/lsc-studio/lscauth/internal/rate"
	"github.com/lsc-studio/lscauth/jwt"
	"github.com/lsc-studio/lscauth/password"
)

// Config is the complete Engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as
// immutable. Build clones the value it is given.
type Config struct {
	JWT               JWTConfig
	Password          PasswordConfig
	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig
	RateLimit         RateLimitConfig
	APIKey            APIKeyConfig
	Mail              MailConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the signing material of access and refresh tokens.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration

	// RotateRefreshTokens replaces the refresh token on every use.
	RotateRefreshTokens bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines hashing cost and strength policy.
type PasswordConfig struct {
	Cost           int
	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

/*
====================================
SINGLE-USE TOKEN CONFIG
====================================
*/

// EmailVerificationConfig defines verification token lifetime and bcrypt cost.
type EmailVerificationConfig struct {
	TokenTTL  time.Duration
	TokenCost int
}

// PasswordResetConfig defines reset token lifetime.
type PasswordResetConfig struct {
	TokenTTL time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RatePolicy is a fixed window: at most Max hits per key within Window.
type RatePolicy = rate.Policy

// RateLimitConfig defines the per-class fixed windows, keyed by RateClass* names.
type RateLimitConfig struct {
	Enabled   bool
	KeyPrefix string
	Policies  map[string]RatePolicy
}

/*
====================================
MISC CONFIG
====================================
*/

// APIKeyConfig selects the environment segment of generated API keys.
type APIKeyConfig struct {
	Environment string
}

// MailConfig bounds every outbound email call.
type MailConfig struct {
	Timeout time.Duration
}

// AuditConfig controls the audit pipeline. With Async set, entries go through a bounded
// buffer and are dropped when it is full if DropIfFull is set.
type AuditConfig struct {
	Enabled    bool
	Async      bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and the access validation histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the recommended configuration. Signing secrets are left empty
// and must be provided.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:           jwt.DefaultAccessTTL,
			RefreshTTL:          jwt.DefaultRefreshTTL,
			Issuer:              "lscauth",
			Audience:            "lsc-api",
			RotateRefreshTokens: true,
		},
		Password: PasswordConfig{
			Cost:           password.DefaultCost,
			MinLength:      12,
			MaxLength:      password.MaxPasswordBytes,
			UpgradeOnLogin: true,
		},
		EmailVerification: EmailVerificationConfig{
			TokenTTL:  24 * time.Hour,
			TokenCost: 10,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL: 15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			KeyPrefix: rate.DefaultKeyPrefix,
			Policies:  rate.DefaultPolicies(),
		},
		APIKey: APIKeyConfig{
			Environment: apikey.EnvTest,
		},
		Mail: MailConfig{
			Timeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			Async:      true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	if cfg.RateLimit.Policies != nil {
		out.RateLimit.Policies = make(map[string]rate.Policy, len(cfg.RateLimit.Policies))
		for name, p := range cfg.RateLimit.Policies {
			out.RateLimit.Policies[name] = p
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

var requiredPolicies = []string{
	rate.PolicyLogin,
	rate.PolicyRegister,
	rate.PolicyResetRequest,
	rate.PolicyResendVerification,
	rate.PolicyVerifyEmail,
	rate.PolicyRefresh,
	rate.PolicyGeneral,
}

// Validate reports the first configuration problem, or nil.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) < jwt.MinSecretLength {
		return fmt.Errorf("JWT AccessSecret must be at least %d bytes", jwt.MinSecretLength)
	}
	if len(c.JWT.RefreshSecret) < jwt.MinSecretLength {
		return fmt.Errorf("JWT RefreshSecret must be at least %d bytes", jwt.MinSecretLength)
	}
	if subtle.ConstantTimeCompare(c.JWT.AccessSecret, c.JWT.RefreshSecret) == 1 {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("JWT AccessTTL must be shorter than RefreshTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	if c.Password.Cost < bcrypt.MinCost || c.Password.Cost > bcrypt.MaxCost {
		return fmt.Errorf("Password Cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength || c.Password.MaxLength > password.MaxPasswordBytes {
		return fmt.Errorf("Password MaxLength must be between MinLength and %d", password.MaxPasswordBytes)
	}

	// Single-use tokens
	if c.EmailVerification.TokenTTL <= 0 {
		return errors.New("EmailVerification TokenTTL must be > 0")
	}
	if c.EmailVerification.TokenCost < bcrypt.MinCost || c.EmailVerification.TokenCost > bcrypt.MaxCost {
		return fmt.Errorf("EmailVerification TokenCost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}

	// Rate limiting
	if c.RateLimit.Enabled {
		for _, name := range requiredPolicies {
			p, ok := c.RateLimit.Policies[name]
			if !ok {
				return fmt.Errorf("RateLimit policy %q is missing", name)
			}
			if !p.Validate() || p.Name != name {
				return fmt.Errorf("RateLimit policy %q is invalid", name)
			}
		}
	}

	if !apikey.ValidEnvironment(c.APIKey.Environment) {
		return errors.New("APIKey Environment must be 'live' or 'test'")
	}

	if c.Mail.Timeout <= 0 {
		return errors.New("Mail Timeout must be > 0")
	}

	if c.Audit.Enabled && c.Audit.Async && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 in async mode")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
