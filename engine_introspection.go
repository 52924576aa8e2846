package lscauth

import (
	"context"
	"time"
)

// Pinger is implemented by stores that can report connectivity, such as store/postgres.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
	RedisEnabled   bool
	RedisAvailable bool
	RedisLatency   time.Duration
}

// Healthy reports whether every configured backend answered.
func (h HealthStatus) Healthy() bool {
	return h.StoreAvailable && (!h.RedisEnabled || h.RedisAvailable)
}

// GetUser returns the public view of the account with id userID.
//
// GetUser returns USER_NOT_FOUND for unknown ids and INTERNAL_ERROR when the store fails.
func (e *Engine) GetUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	user, err := e.findUserByID(ctx, userID)
	if err != nil {
		return nil, internalError(err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user.Public(), nil
}

// Health pings the store, when it implements [Pinger], and the Redis client configured
// with [Builder.WithRedis]. Stores without Ping are reported available.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	var status HealthStatus

	status.StoreAvailable = true
	if p, ok := e.store.(Pinger); ok {
		start := time.Now()
		status.StoreAvailable = p.Ping(ctx) == nil
		status.StoreLatency = time.Since(start)
	}

	if e.redis != nil {
		status.RedisEnabled = true
		start := time.Now()
		status.RedisAvailable = e.redis.Ping(ctx).Err() == nil
		status.RedisLatency = time.Since(start)
	}

	return status
}
