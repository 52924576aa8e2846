// Package rate implements fixed-window rate limiting for the authentication endpoints.
//
// # Window semantics
//
// A window opens on the first hit of a key and lasts Policy.Window. Every hit counts,
// including rejected ones, so failed attempts cannot be used to probe a threshold for free.
// The Redis backend uses INCR plus PEXPIRE on the first hit and repairs keys that lost
// their TTL.
//
// Keys are {prefix}:{policy}:{ip}, except login which is {prefix}:login:{ip}:{email}.
//
// # Failure mode
//
// Backend errors fail open. A Redis outage degrades protection, not authentication.
package rate
