// Package password implements credential hashing and password strength checks.
//
// # Output format
//
// Hashes are standard bcrypt strings:
//
//	$2a$<cost>$<22-char salt><31-char hash>
//
// [Bcrypt.NeedsRehash] parses the embedded cost so callers can transparently upgrade
// hashes produced with a lower work factor on the next successful login.
//
// # Strength policy
//
// [Policy] enforces length bounds, character-class coverage and email similarity, and can
// consult a [BreachChecker]. [PwnedClient] is the k-anonymity implementation; its failures
// are logged and never block validation.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other lscauth package.
//   - Log plaintext passwords.
package password
