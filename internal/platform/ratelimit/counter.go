package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"
)

// Counter implements httprate.LimitCounter on Redis so the sliding window
// estimate is shared by every instance behind the load balancer.
type Counter struct {
	client  *redis.Client
	prefix  string
	window  time.Duration
	timeout time.Duration
}

// NewCounter builds a Redis backed httprate counter.
func NewCounter(client *redis.Client, prefix string) *Counter {
	if prefix == "" {
		prefix = "httprate"
	}
	return &Counter{client: client, prefix: prefix, window: time.Minute, timeout: time.Second}
}

// Config is called by httprate with the limiter's settings.
func (c *Counter) Config(requestLimit int, windowLength time.Duration) {
	c.window = windowLength
}

// Increment adds one hit to the current window.
func (c *Counter) Increment(key string, currentWindow time.Time) error {
	return c.IncrementBy(key, currentWindow, 1)
}

// IncrementBy adds amount hits to the current window.
func (c *Counter) IncrementBy(key string, currentWindow time.Time, amount int) error {
	if c.client == nil {
		return errors.New("ratelimit: counter not configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	k := c.key(key, currentWindow)
	pipe := c.client.TxPipeline()
	pipe.IncrBy(ctx, k, int64(amount))
	pipe.Expire(ctx, k, 2*c.window)
	_, err := pipe.Exec(ctx)
	return err
}

// Get returns hit counts for the current and previous windows.
func (c *Counter) Get(key string, currentWindow, previousWindow time.Time) (int, int, error) {
	if c.client == nil {
		return 0, 0, errors.New("ratelimit: counter not configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	vals, err := c.client.MGet(ctx, c.key(key, currentWindow), c.key(key, previousWindow)).Result()
	if err != nil {
		return 0, 0, err
	}
	return toInt(vals[0]), toInt(vals[1]), nil
}

func (c *Counter) key(key string, window time.Time) string {
	return c.prefix + ":" + key + ":" + strconv.FormatInt(window.Unix(), 10)
}

func toInt(v any) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

var _ httprate.LimitCounter = (*Counter)(nil)
