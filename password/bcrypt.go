package password

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MaxPasswordBytes bounds the CPU cost of a single hash or verify call.
	MaxPasswordBytes = 128
	// DefaultCost lands around 250ms per hash on commodity hardware.
	DefaultCost = 12

	bcryptInputLimit = 72
)

var (
	// ErrPasswordEmpty is returned by Hash for empty input.
	ErrPasswordEmpty = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned by Hash when the input exceeds MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
)

// Bcrypt hashes and verifies credentials with an adaptive bcrypt cost.
//
// Bcrypt instances are immutable after construction and safe for concurrent use.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a hasher producing hashes at cost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// Cost reports the configured work factor.
func (b *Bcrypt) Cost() int {
	return b.cost
}

// Hash rejects empty input and input longer than MaxPasswordBytes. Each call embeds a fresh
// random salt, so hashing the same password twice yields different strings.
func (b *Bcrypt) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrPasswordEmpty
	}
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports false for empty or over-length input, malformed hashes and mismatches.
// It never returns an error so callers cannot distinguish the failure class.
func (b *Bcrypt) Verify(password, encodedHash string) bool {
	if password == "" || encodedHash == "" || len(password) > MaxPasswordBytes {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(encodedHash), bcryptInput(password)) == nil
}

// NeedsRehash is true when the embedded cost is below the configured cost or the hash
// cannot be parsed. Callers re-hash after the next successful login.
func (b *Bcrypt) NeedsRehash(encodedHash string) bool {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return true
	}
	return cost < b.cost
}

// bcryptInput pre-hashes inputs bcrypt would reject. Passwords up to 72 bytes pass through
// unchanged; longer ones become a 44-byte base64 SHA-256 digest.
func bcryptInput(password string) []byte {
	if len(password) <= bcryptInputLimit {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
