package jwt

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TypeAccess is the type discriminator carried by access tokens.
	TypeAccess = "access"
	// TypeRefresh is the type discriminator carried by refresh tokens.
	TypeRefresh = "refresh"

	// MinSecretLength is the shortest signing secret NewCodec accepts.
	MinSecretLength = 32

	// DefaultAccessTTL is the lifetime of access tokens when none is configured.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL is the lifetime of refresh tokens when none is configured.
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Config defines the signing material and validation rules of a Codec.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	Logger        *slog.Logger

	// Now is the clock used for iat, exp and validation. Defaults to time.Now.
	Now func() time.Time
}

// Membership is an organization grant embedded in access tokens.
type Membership struct {
	OrganizationID string `json:"id"`
	Role           string `json:"role"`
}

// AccessPayload is the claim set callers sign into and read back from access tokens.
type AccessPayload struct {
	Subject       string
	Email         string
	PlatformRole  string
	Organizations []Membership
	Type          string
}

// RefreshPayload is the minimal claim set of a refresh token.
type RefreshPayload struct {
	Subject string
	JTI     string
	Type    string
}

// RefreshIssue is a freshly signed refresh token with its correlation id.
type RefreshIssue struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

type accessClaims struct {
	Email         string       `json:"email"`
	PlatformRole  string       `json:"platformRole"`
	Organizations []Membership `json:"organizations"`
	Type          string       `json:"type"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access and refresh tokens with HS256 and distinct secrets.
//
// Codec instances are immutable after construction and safe for concurrent use.
type Codec struct {
	config Config
	now    func() time.Time
}

// NewCodec rejects secrets shorter than MinSecretLength, identical access and refresh
// secrets, and non-positive TTLs.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) < MinSecretLength {
		return nil, fmt.Errorf("access secret must be at least %d bytes", MinSecretLength)
	}
	if len(cfg.RefreshSecret) < MinSecretLength {
		return nil, fmt.Errorf("refresh secret must be at least %d bytes", MinSecretLength)
	}
	if subtle.ConstantTimeCompare(cfg.AccessSecret, cfg.RefreshSecret) == 1 {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	cfg.AccessSecret = append([]byte(nil), cfg.AccessSecret...)
	cfg.RefreshSecret = append([]byte(nil), cfg.RefreshSecret...)

	return &Codec{config: cfg, now: now}, nil
}

// AccessTTL reports the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration {
	return c.config.AccessTTL
}

// RefreshTTL reports the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration {
	return c.config.RefreshTTL
}

// SignAccess signs an access token. The type claim is always "access", whatever p.Type
// holds.
func (c *Codec) SignAccess(p AccessPayload) (string, error) {
	if p.Subject == "" {
		return "", errors.New("access token subject required")
	}

	now := c.now()
	claims := accessClaims{
		Email:         p.Email,
		PlatformRole:  p.PlatformRole,
		Organizations: p.Organizations,
		Type:          TypeAccess,
		RegisteredClaims: c.registered(p.Subject, "", now, c.config.AccessTTL),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.AccessSecret)
}

// SignRefresh signs a refresh token for subject. Every call mints a new random jti that
// correlates the token with its stored row.
func (c *Codec) SignRefresh(subject string) (RefreshIssue, error) {
	if subject == "" {
		return RefreshIssue{}, errors.New("refresh token subject required")
	}

	jti := uuid.NewString()
	now := c.now()
	claims := refreshClaims{
		Type:             TypeRefresh,
		RegisteredClaims: c.registered(subject, jti, now, c.config.RefreshTTL),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.RefreshSecret)
	if err != nil {
		return RefreshIssue{}, err
	}

	return RefreshIssue{
		Token:     token,
		JTI:       jti,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// VerifyAccess returns the payload of a valid access token and nil otherwise.
func (c *Codec) VerifyAccess(token string) *AccessPayload {
	claims := &accessClaims{}
	if err := c.parse(token, claims, c.config.AccessSecret); err != nil {
		c.config.Logger.Debug("access token rejected", "reason", err.Error())
		return nil
	}
	if claims.Type != TypeAccess {
		c.config.Logger.Debug("access token rejected", "reason", "type mismatch")
		return nil
	}
	if claims.Subject == "" {
		c.config.Logger.Debug("access token rejected", "reason", "missing subject")
		return nil
	}

	return &AccessPayload{
		Subject:       claims.Subject,
		Email:         claims.Email,
		PlatformRole:  claims.PlatformRole,
		Organizations: claims.Organizations,
		Type:          claims.Type,
	}
}

// VerifyRefresh returns the payload of a valid refresh token and nil otherwise.
func (c *Codec) VerifyRefresh(token string) *RefreshPayload {
	claims := &refreshClaims{}
	if err := c.parse(token, claims, c.config.RefreshSecret); err != nil {
		c.config.Logger.Debug("refresh token rejected", "reason", err.Error())
		return nil
	}
	if claims.Type != TypeRefresh {
		c.config.Logger.Debug("refresh token rejected", "reason", "type mismatch")
		return nil
	}
	if claims.Subject == "" || claims.ID == "" {
		c.config.Logger.Debug("refresh token rejected", "reason", "missing subject or jti")
		return nil
	}

	return &RefreshPayload{
		Subject: claims.Subject,
		JTI:     claims.ID,
		Type:    claims.Type,
	}
}

func (c *Codec) registered(subject, jti string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        jti,
		Issuer:    c.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if c.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{c.config.Audience}
	}
	return rc
}

func (c *Codec) parse(token string, claims jwt.Claims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		options = append(options, jwt.WithAudience(c.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}
