package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection parameters for the persistent tier.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`

	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix namespaces every key written by the store.
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// DefaultRedisConfig returns a RedisConfig pointing at a local server.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		KeyPrefix:    "varcache:",
	}
}

func (c RedisConfig) validate() error {
	if c.Addr == "" {
		return &ConfigError{Field: "Redis.Addr", Message: "cannot be empty"}
	}
	if c.DB < 0 || c.DB > 15 {
		return &ConfigError{Field: "Redis.DB", Message: "must be between 0 and 15"}
	}
	if c.PoolSize < 0 {
		return &ConfigError{Field: "Redis.PoolSize", Message: "cannot be negative"}
	}
	return nil
}

// RedisCmdable is the subset of the go-redis client used by RedisStore.
type RedisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore is a byte store on Redis. No retries are attempted: failures
// surface as ErrUnavailable and callers fall back to recomputation.
type RedisStore struct {
	client RedisCmdable
	prefix string
	closer func() error
}

// NewRedisStore dials a go-redis client for cfg.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid redis configuration: %w", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   -1,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	return &RedisStore{client: client, prefix: cfg.KeyPrefix, closer: client.Close}, nil
}

// NewRedisStoreWithClient wraps an existing client, mainly for tests.
func NewRedisStoreWithClient(client RedisCmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Get returns the stored bytes, ErrMiss when absent.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("%w: redis get %q: %v", ErrUnavailable, key, err)
	}
	return data, nil
}

// Set stores value with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: redis del %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Close releases the underlying connection pool when the store owns it.
func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
