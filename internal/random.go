package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// OpaqueTokenBytes is the entropy of every opaque token. Encoded base64url without
// padding it is 43 characters long.
const OpaqueTokenBytes = 32

// OpaqueTokenLength is the encoded length of tokens produced by NewOpaqueToken.
var OpaqueTokenLength = base64.RawURLEncoding.EncodedLen(OpaqueTokenBytes)

// NewOpaqueToken returns a URL-safe random token with OpaqueTokenBytes of entropy.
func NewOpaqueToken() (string, error) {
	var raw [OpaqueTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashToken returns the hex SHA-256 digest of a high-entropy token. No salt is needed
// because the input is never guessable.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// EqualHash compares two digests in constant time. Inputs of different byte length
// never match.
func EqualHash(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// IsOpaqueToken reports whether raw has the shape NewOpaqueToken produces.
func IsOpaqueToken(raw string) bool {
	if len(raw) != OpaqueTokenLength {
		return false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	return err == nil && len(decoded) == OpaqueTokenBytes
}
