// Package flows contains pure-function orchestrators for the Engine's token lifecycles.
//
// Each flow function (RunLogin, RunRefresh, RunLogout, RunRedeem) accepts a typed
// dependency struct and returns results without side-effects beyond those
// dependencies. Results carry a failure-kind enum that the Engine maps to its public
// error kinds.
//
// # Single-use token matching
//
// MatchVerification and MatchReset scan every live candidate with a constant-time
// comparison and never exit early. The scan is linear in the number of live tokens on
// purpose: it keeps the response time independent of which token, if any, matched.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import lscauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
