package rate

import "errors"

// ErrBackendUnavailable wraps counter store failures. Limiter.Allow still returns an
// allowing Decision alongside it.
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")
