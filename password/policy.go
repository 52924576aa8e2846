package password

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

const (
	// DefaultMinLength is the shortest password the policy accepts.
	DefaultMinLength = 12
	// DefaultMaxLength matches MaxPasswordBytes.
	DefaultMaxLength = MaxPasswordBytes

	minLocalPartForSimilarity = 3
)

// BreachChecker reports how often a password appears in known breach corpora.
type BreachChecker interface {
	BreachCount(ctx context.Context, password string) (int, error)
}

// Policy validates password strength.
//
// A nil Breach disables the corpus lookup. Lookup failures are logged and never block
// validation.
type Policy struct {
	MinLength int
	MaxLength int
	Breach    BreachChecker
	Logger    *slog.Logger
}

// DefaultPolicy returns the length bounds used across the service with no breach lookup.
func DefaultPolicy() Policy {
	return Policy{
		MinLength: DefaultMinLength,
		MaxLength: DefaultMaxLength,
	}
}

// Validate returns one message per violated rule. An empty result means the password is
// acceptable.
func (p Policy) Validate(ctx context.Context, password, email string) []string {
	minLength := p.MinLength
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	maxLength := p.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	var violations []string

	if len(password) < minLength {
		violations = append(violations, fmt.Sprintf("Password must be at least %d characters long", minLength))
	}
	if len(password) > maxLength {
		violations = append(violations, fmt.Sprintf("Password must be at most %d characters long", maxLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		violations = append(violations, "Password must contain at least one uppercase letter")
	}
	if !hasLower {
		violations = append(violations, "Password must contain at least one lowercase letter")
	}
	if !hasDigit {
		violations = append(violations, "Password must contain at least one number")
	}
	if !hasSpecial {
		violations = append(violations, "Password must contain at least one special character")
	}

	if similarToEmail(password, email) {
		violations = append(violations, "Password must not be similar to your email address")
	}

	// Over-length input is already rejected; do not ship it to a third party.
	if p.Breach != nil && len(password) <= maxLength {
		count, err := p.Breach.BreachCount(ctx, password)
		if err != nil {
			p.logger().WarnContext(ctx, "password breach lookup failed", "error", err)
		} else if count > 0 {
			violations = append(violations, fmt.Sprintf("Password has appeared in %d known data breaches", count))
		}
	}

	return violations
}

func (p Policy) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func similarToEmail(password, email string) bool {
	local, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	if len(local) < minLocalPartForSimilarity {
		return false
	}
	pw := strings.ToLower(password)
	if pw == "" {
		return false
	}
	return strings.Contains(pw, local) || strings.Contains(local, pw)
}
