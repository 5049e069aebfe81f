package mirror

import (
	"context"
	"errors"
	"time"
)

// RedisClient is the subset of a Redis client the mirror needs. Its shape
// follows github.com/redis/go-redis/v9; wrap that client's concrete command
// types to satisfy it.
type RedisClient interface {
	Get(ctx context.Context, key string) RedisStringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) RedisStatusCmd
	Del(ctx context.Context, keys ...string) RedisIntCmd
}

// RedisStringCmd represents a Redis string command result.
type RedisStringCmd interface {
	Result() (string, error)
}

// RedisStatusCmd represents a Redis status command result.
type RedisStatusCmd interface {
	Err() error
}

// RedisIntCmd represents a Redis int command result.
type RedisIntCmd interface {
	Err() error
}

// ErrRedisNil is returned by Get for a missing key.
// This should match redis.Nil from go-redis.
var ErrRedisNil = errors.New("redis: nil")

// Redis is a mirror store in Redis, scoped to one session. It suits
// deployments where a tab's session may reconnect to another server.
type Redis struct {
	client  RedisClient
	prefix  string
	session string
	ttl     time.Duration
	timeout time.Duration
}

// RedisOption configures Redis.
type RedisOption func(*redisConfig)

type redisConfig struct {
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// WithRedisPrefix sets the key prefix.
// Default: "hashstate:mirror:".
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *redisConfig) {
		c.prefix = prefix
	}
}

// WithRedisTTL sets how long an entry lives after its last write. Zero
// means no expiry. Default: 30 minutes.
func WithRedisTTL(d time.Duration) RedisOption {
	return func(c *redisConfig) {
		c.ttl = d
	}
}

// WithRedisTimeout bounds each Redis call. Default: 2 seconds.
func WithRedisTimeout(d time.Duration) RedisOption {
	return func(c *redisConfig) {
		c.timeout = d
	}
}

// NewRedis returns a mirror store for session.
func NewRedis(client RedisClient, session string, opts ...RedisOption) *Redis {
	cfg := &redisConfig{
		prefix:  "hashstate:mirror:",
		ttl:     30 * time.Minute,
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Redis{
		client:  client,
		prefix:  cfg.prefix,
		session: session,
		ttl:     cfg.ttl,
		timeout: cfg.timeout,
	}
}

// key returns the Redis key for a mirror key.
func (r *Redis) key(key string) string {
	return r.prefix + r.session + ":" + key
}

// Read returns the value stored under key.
func (r *Redis) Read(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	v, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if err.Error() == ErrRedisNil.Error() {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

// Write stores encoded under key and refreshes its TTL.
func (r *Redis) Write(key, encoded string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	return r.client.Set(ctx, r.key(key), encoded, r.ttl).Err()
}

// Remove deletes key.
func (r *Redis) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	return r.client.Del(ctx, r.key(key)).Err()
}

// Prefix returns the key prefix.
func (r *Redis) Prefix() string {
	return r.prefix
}
