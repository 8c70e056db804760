// Package ratelimit provides Redis backed request quotas that hold across
// horizontally scaled instances.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of a single quota check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// Limiter checks and consumes one unit of quota for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Config describes a fixed window quota.
type Config struct {
	Limit  int
	Window time.Duration
	Prefix string
}

// fixedWindow increments the counter and starts the window on the first hit.
// A key left without expiry is repaired so it can never block forever.
var fixedWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if n == 1 or ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// RedisLimiter is a fixed window limiter using an atomic INCR + PEXPIRE script.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
}

// NewRedisLimiter builds a limiter. Limit and Window must be positive.
func NewRedisLimiter(client *redis.Client, cfg Config) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("ratelimit: redis client required")
	}
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		return nil, fmt.Errorf("ratelimit: invalid config limit=%d window=%s", cfg.Limit, cfg.Window)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "ratelimit"
	}
	return &RedisLimiter{client: client, cfg: cfg}, nil
}

// Allow consumes one request for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := fixedWindow.Run(ctx, l.client, []string{l.cfg.Prefix + ":" + key}, l.cfg.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: allow: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("ratelimit: allow: unexpected reply of %d values", len(res))
	}
	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	remaining := l.cfg.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:    count <= l.cfg.Limit,
		Limit:      l.cfg.Limit,
		Remaining:  remaining,
		ResetAfter: ttl,
	}, nil
}

// Reset clears the counter for key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.cfg.Prefix+":"+key).Err()
}

var _ Limiter = (*RedisLimiter)(nil)
