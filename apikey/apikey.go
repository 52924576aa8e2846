package apikey

import (
	"errors"
	"strings"

	"github.com/lsc-studio/lscauth/internal"
)

const (
	// Scheme is the leading segment of every key.
	Scheme = "lsc"

	// EnvLive marks production keys.
	EnvLive = "live"
	// EnvTest marks sandbox keys.
	EnvTest = "test"

	// PrefixRandomLength is how many characters of the random segment the public prefix keeps.
	PrefixRandomLength = 8
)

var (
	// ErrInvalidEnvironment is returned for environments other than EnvLive and EnvTest.
	ErrInvalidEnvironment = errors.New("api key environment must be live or test")
	// ErrMalformedKey is returned by Parse for input that is not a well-formed key.
	ErrMalformedKey = errors.New("malformed api key")
)

// Key is a freshly generated API key.
//
// Raw is shown to the caller exactly once. Prefix is stored in clear for lookup and Hash is
// the only form of the full key that should be persisted.
type Key struct {
	Raw    string
	Prefix string
	Hash   string
}

// ValidEnvironment reports whether env is EnvLive or EnvTest.
func ValidEnvironment(env string) bool {
	return env == EnvLive || env == EnvTest
}

// Generate returns a new key for env. The key has the form
// lsc_{env}_{43 url-safe characters}.
func Generate(env string) (Key, error) {
	if !ValidEnvironment(env) {
		return Key{}, ErrInvalidEnvironment
	}

	random, err := internal.NewOpaqueToken()
	if err != nil {
		return Key{}, err
	}

	head := Scheme + "_" + env + "_"
	raw := head + random
	return Key{
		Raw:    raw,
		Prefix: head + random[:PrefixRandomLength],
		Hash:   internal.HashToken(raw),
	}, nil
}

// Parse splits a raw key into its environment and random segment.
func Parse(raw string) (env string, random string, err error) {
	rest, ok := strings.CutPrefix(raw, Scheme+"_")
	if !ok {
		return "", "", ErrMalformedKey
	}
	env, random, ok = strings.Cut(rest, "_")
	if !ok || !ValidEnvironment(env) {
		return "", "", ErrMalformedKey
	}
	if !internal.IsOpaqueToken(random) {
		return "", "", ErrMalformedKey
	}
	return env, random, nil
}

// PrefixOf returns the public lookup prefix of a raw key.
func PrefixOf(raw string) (string, error) {
	env, random, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return Scheme + "_" + env + "_" + random[:PrefixRandomLength], nil
}

// Verify reports whether raw hashes to hash. The comparison is constant time.
func Verify(raw, hash string) bool {
	if _, _, err := Parse(raw); err != nil {
		return false
	}
	return internal.EqualHash(internal.HashToken(raw), hash)
}
