// Package middleware adapts lscauth.Engine to net/http.
//
// # Handlers
//
//   - [RequestContext] stores the client IP and User-Agent for the Engine.
//   - [Guard] verifies "Authorization: Bearer" access tokens and stores the claims.
//   - [RequirePlatformRole] gates a route on the platform role claim.
//   - [RateLimit] enforces an endpoint class budget per client IP.
//
// Every rejection is written with [WriteError], which renders the JSON error envelope and
// the status mapped from the error kind.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs directly (delegates to Engine).
//   - Access Redis or the Store (Engine handles I/O).
package middleware
