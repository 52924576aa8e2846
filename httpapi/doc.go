// Package httpapi exposes lscauth.Engine as a JSON HTTP API on net/http.
//
// Errors are rendered as {"error":{"code","message"}} with the status of their kind;
// WEAK_PASSWORD adds "violations" and RATE_LIMITED adds Retry-After and RateLimit-*
// headers. Registration, resend-verification and forgot-password answer identically for
// known and unknown emails.
package httpapi
