package flows

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lsc-studio/lscauth/internal"
)

// TokenCandidate is a flow-local single-use token row.
type TokenCandidate struct {
	ID        string
	UserID    string
	Email     string
	Hash      string
	ExpiresAt time.Time
}

// MatchVerification finds the candidate whose bcrypt hash matches raw.
//
// Every candidate is compared, even after a hit, so the running time depends on the number
// of live tokens and not on which of them matched. Do not replace this with an indexed
// lookup: bcrypt hashes are salted per row and cannot be looked up by value anyway.
func MatchVerification(raw string, candidates []TokenCandidate) (TokenCandidate, bool) {
	var (
		hit   TokenCandidate
		found bool
	)
	for _, c := range candidates {
		ok := bcrypt.CompareHashAndPassword([]byte(c.Hash), []byte(raw)) == nil
		if ok && !found {
			hit, found = c, true
		}
	}
	return hit, found
}

// MatchReset finds the candidate whose SHA-256 digest matches raw.
//
// Like MatchVerification it visits every candidate and compares each with a length-checked
// constant-time comparison.
func MatchReset(raw string, candidates []TokenCandidate) (TokenCandidate, bool) {
	digest := internal.HashToken(raw)

	var (
		hit   TokenCandidate
		found bool
	)
	for _, c := range candidates {
		ok := internal.EqualHash(digest, c.Hash)
		if ok && !found {
			hit, found = c, true
		}
	}
	return hit, found
}
