// Package internal contains helpers that are private to lscauth, chiefly secure random
// token generation and constant-time digest comparison.
//
// # Sub-packages
//
//   - flows: pure-function orchestrators for the refresh and token-redemption flows
//   - rate: fixed-window rate limiting over Redis or process memory
//
// # What this package must NOT do
//
//   - Export types that appear in the public lscauth API.
//   - Be imported by any package outside the lscauth module.
package internal
