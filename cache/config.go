package cache

import (
	"fmt"
	"io"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/goliatone/go-variation-cache/internal/cacheinfra"
)

// DefaultTTL is the lifetime of persisted aggregates.
const DefaultTTL = cacheinfra.DefaultTTL

// Backend names a persistent tier implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendDynamo Backend = "dynamodb"
)

type (
	// RedisConfig holds Redis connection parameters.
	RedisConfig = cacheinfra.RedisConfig
	// DynamoConfig holds the DynamoDB table settings.
	DynamoConfig = cacheinfra.DynamoConfig
	// RedisClient is the subset of the go-redis client the Redis tier uses.
	RedisClient = cacheinfra.RedisCmdable
	// DynamoAPI is the subset of the DynamoDB client the DynamoDB tier uses.
	DynamoAPI = cacheinfra.DynamoAPI
)

// Config exposes cache configuration options for consumers of the cache package.
// The sturdyc settings size the read-through CacheService and the memory backend.
type Config struct {
	Capacity             int                 `json:"capacity" yaml:"capacity"`
	NumShards            int                 `json:"num_shards" yaml:"num_shards"`
	TTL                  time.Duration       `json:"ttl" yaml:"ttl"`
	EvictionPercentage   int                 `json:"eviction_percentage" yaml:"eviction_percentage"`
	EarlyRefresh         *EarlyRefreshConfig `json:"early_refresh" yaml:"early_refresh"`
	MissingRecordStorage bool                `json:"missing_record_storage" yaml:"missing_record_storage"`
	EvictionInterval     time.Duration       `json:"eviction_interval" yaml:"eviction_interval"`

	Backend Backend       `json:"backend" yaml:"backend"`
	Redis   RedisConfig   `json:"redis" yaml:"redis"`
	Dynamo  DynamoConfig  `json:"dynamo" yaml:"dynamo"`
	Breaker BreakerConfig `json:"breaker" yaml:"breaker"`
}

// EarlyRefreshConfig mirrors the underlying sturdyc early refresh options.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration `json:"min_async_refresh_time" yaml:"min_async_refresh_time"`
	MaxAsyncRefreshTime time.Duration `json:"max_async_refresh_time" yaml:"max_async_refresh_time"`
	SyncRefreshTime     time.Duration `json:"sync_refresh_time" yaml:"sync_refresh_time"`
	RetryBaseDelay      time.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	cfg := convertFromInternal(cacheinfra.DefaultConfig())
	cfg.Backend = BackendMemory
	cfg.Redis = cacheinfra.DefaultRedisConfig()
	cfg.Breaker = DefaultBreakerConfig()
	return cfg
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if err := c.toInternal().Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required,
			validation.In(BackendMemory, BackendRedis, BackendDynamo)),
		validation.Field(&c.Breaker),
	)
}

// NewCacheService constructs the default cache service implementation using the provided configuration.
func NewCacheService(cfg Config) (CacheService, error) {
	return cacheinfra.NewSturdycService(cfg.toInternal())
}

// StoreOption customizes NewStore.
type StoreOption func(*storeOptions)

type storeOptions struct {
	redis  RedisClient
	dynamo DynamoAPI
	logger *zap.Logger
}

// WithRedisClient makes the Redis backend use client instead of dialing cfg.Redis.
func WithRedisClient(client RedisClient) StoreOption {
	return func(o *storeOptions) { o.redis = client }
}

// WithDynamoClient sets the DynamoDB client. It is required for the dynamodb backend.
func WithDynamoClient(client DynamoAPI) StoreOption {
	return func(o *storeOptions) { o.dynamo = client }
}

// WithStoreLogger sets the logger used for breaker state changes.
func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(o *storeOptions) { o.logger = logger }
}

// NewStore builds the persistent tier selected by cfg.Backend, wrapped in a
// breaker when cfg.Breaker.Enabled.
func NewStore(cfg Config, opts ...StoreOption) (*ClosableStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &storeOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	var (
		store  Store
		closer io.Closer
	)

	switch cfg.Backend {
	case BackendMemory:
		mem, err := cacheinfra.NewMemoryStore(cfg.toInternal())
		if err != nil {
			return nil, err
		}
		store = mem
	case BackendRedis:
		if o.redis != nil {
			store = cacheinfra.NewRedisStoreWithClient(o.redis, cfg.Redis.KeyPrefix)
			break
		}
		rs, err := cacheinfra.NewRedisStore(cfg.Redis)
		if err != nil {
			return nil, err
		}
		store, closer = rs, rs
	case BackendDynamo:
		ds, err := cacheinfra.NewDynamoStore(o.dynamo, cfg.Dynamo)
		if err != nil {
			return nil, err
		}
		store = ds
	default:
		return nil, NewValidationError(fmt.Sprintf("unknown cache backend %q", cfg.Backend), nil)
	}

	if cfg.Breaker.Enabled {
		store = NewBreakerStore("cache-"+string(cfg.Backend), store, cfg.Breaker, o.logger)
	}

	return &ClosableStore{Store: store, closer: closer}, nil
}

// ClosableStore is a Store that releases backend connections on Close.
type ClosableStore struct {
	Store
	closer io.Closer
}

// Close releases the backend connection, if any.
func (s *ClosableStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (c Config) toInternal() cacheinfra.Config {
	var early *cacheinfra.EarlyRefreshConfig
	if c.EarlyRefresh != nil {
		early = &cacheinfra.EarlyRefreshConfig{
			MinAsyncRefreshTime: c.EarlyRefresh.MinAsyncRefreshTime,
			MaxAsyncRefreshTime: c.EarlyRefresh.MaxAsyncRefreshTime,
			SyncRefreshTime:     c.EarlyRefresh.SyncRefreshTime,
			RetryBaseDelay:      c.EarlyRefresh.RetryBaseDelay,
		}
	}

	return cacheinfra.Config{
		Capacity:             c.Capacity,
		NumShards:            c.NumShards,
		TTL:                  c.TTL,
		EvictionPercentage:   c.EvictionPercentage,
		EarlyRefresh:         early,
		MissingRecordStorage: c.MissingRecordStorage,
		EvictionInterval:     c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	var early *EarlyRefreshConfig
	if cfg.EarlyRefresh != nil {
		early = &EarlyRefreshConfig{
			MinAsyncRefreshTime: cfg.EarlyRefresh.MinAsyncRefreshTime,
			MaxAsyncRefreshTime: cfg.EarlyRefresh.MaxAsyncRefreshTime,
			SyncRefreshTime:     cfg.EarlyRefresh.SyncRefreshTime,
			RetryBaseDelay:      cfg.EarlyRefresh.RetryBaseDelay,
		}
	}

	return Config{
		Capacity:             cfg.Capacity,
		NumShards:            cfg.NumShards,
		TTL:                  cfg.TTL,
		EvictionPercentage:   cfg.EvictionPercentage,
		EarlyRefresh:         early,
		MissingRecordStorage: cfg.MissingRecordStorage,
		EvictionInterval:     cfg.EvictionInterval,
	}
}
