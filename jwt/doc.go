// Package jwt signs and verifies the access and refresh tokens of lscauth.
//
// Access and refresh tokens are HS256 tokens signed with distinct secrets and carry a
// type claim, so neither kind can stand in for the other. Verification collapses every
// failure to a nil payload; the reason is only logged at debug level.
package jwt
