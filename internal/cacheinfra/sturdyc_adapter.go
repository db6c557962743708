package cacheinfra

import (
	"context"
	"reflect"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
)

// DefaultTTL is the lifetime of persisted aggregates.
const DefaultTTL = 30 * 24 * time.Hour

// Config holds the configuration for the sturdyc backed caches.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	NumShards int

	// TTL is the time-to-live for cached entries. sturdyc applies a single
	// TTL per client, so per-call TTLs passed to the byte store are capped by it.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EarlyRefresh configures early refresh behavior for read-through entries.
	// If nil, early refresh is disabled.
	EarlyRefresh *EarlyRefreshConfig

	// MissingRecordStorage lets read-through entries remember ids whose
	// fetch returned sturdyc.ErrNotFound.
	MissingRecordStorage bool

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// EarlyRefreshConfig configures early refresh behavior.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// Validate checks the refresh windows are non-negative.
func (e EarlyRefreshConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.MinAsyncRefreshTime, validation.Min(time.Duration(0))),
		validation.Field(&e.MaxAsyncRefreshTime, validation.Min(time.Duration(0))),
		validation.Field(&e.SyncRefreshTime, validation.Min(time.Duration(0))),
		validation.Field(&e.RetryBaseDelay, validation.Min(time.Duration(0))),
	)
}

// DefaultConfig returns the in-process defaults. Early refresh is off: the
// byte store holds aggregates whose freshness is governed by epochs.
func DefaultConfig() Config {
	return Config{
		Capacity:             10000,
		NumShards:            256,
		TTL:                  DefaultTTL,
		EvictionPercentage:   10,
		MissingRecordStorage: false,
	}
}

// ToSturdycOptions converts the Config to sturdyc.Option slice.
// Capacity, NumShards, TTL, and EvictionPercentage go to sturdyc.New directly.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}

	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Duration(1))),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EarlyRefresh),
	)
}

func newClient[T any](cfg Config) (*sturdyc.Client[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return sturdyc.New[T](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	), nil
}

// sturdycService wraps a sturdyc client providing read-through caching.
type sturdycService struct {
	client *sturdyc.Client[any]
}

// NewSturdycService creates a read-through cache service backed by sturdyc.
func NewSturdycService(cfg Config) (*sturdycService, error) {
	client, err := newClient[any](cfg)
	if err != nil {
		return nil, err
	}
	return &sturdycService{client: client}, nil
}

// validateFetchFn checks fetchFn has the signature func(context.Context) (T, error).
func validateFetchFn(fetchFn any) error {
	if fetchFn == nil {
		return &ConfigError{Field: "fetchFn", Message: "cannot be nil"}
	}

	fnType := reflect.TypeOf(fetchFn)
	if fnType.Kind() != reflect.Func {
		return &ConfigError{Field: "fetchFn", Message: "must be a function"}
	}

	if fnType.NumIn() != 1 || fnType.NumOut() != 2 {
		return &ConfigError{Field: "fetchFn", Message: "must have signature func(context.Context) (T, error)"}
	}

	contextType := reflect.TypeOf((*context.Context)(nil)).Elem()
	if !fnType.In(0).Implements(contextType) {
		return &ConfigError{Field: "fetchFn", Message: "first parameter must be context.Context"}
	}

	errorType := reflect.TypeOf((*error)(nil)).Elem()
	if !fnType.Out(1).Implements(errorType) {
		return &ConfigError{Field: "fetchFn", Message: "second return value must be error"}
	}

	return nil
}

// GetOrFetch returns the cached value for key or stores the result of fetchFn.
func (s *sturdycService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	if err := validateFetchFn(fetchFn); err != nil {
		return nil, err
	}

	typedFetchFn := func(ctx context.Context) (any, error) {
		return callFetchFunction(ctx, fetchFn)
	}

	return s.client.GetOrFetch(ctx, key, typedFetchFn)
}

// callFetchFunction calls a pre-validated func(context.Context) (T, error).
func callFetchFunction(ctx context.Context, fetchFn any) (any, error) {
	if fn, ok := fetchFn.(func(context.Context) (any, error)); ok {
		return fn(ctx)
	}

	results := reflect.ValueOf(fetchFn).Call([]reflect.Value{reflect.ValueOf(ctx)})

	var result any
	if rv := results[0]; rv.IsValid() && rv.CanInterface() {
		result = rv.Interface()
	}

	var err error
	if ev := results[1]; ev.IsValid() && !ev.IsNil() {
		err = ev.Interface().(error)
	}

	return result, err
}

// Delete removes a single read-through entry.
func (s *sturdycService) Delete(ctx context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// DeleteByPrefix removes every read-through entry whose key starts with prefix.
func (s *sturdycService) DeleteByPrefix(ctx context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// MemoryStore is an in-process byte store backed by sturdyc. It serves as the
// persistent tier for single-process deployments and tests.
type MemoryStore struct {
	client *sturdyc.Client[[]byte]
}

// NewMemoryStore creates a byte store using the sturdyc settings in cfg.
func NewMemoryStore(cfg Config) (*MemoryStore, error) {
	client, err := newClient[[]byte](cfg)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{client: client}, nil
}

// Get returns the stored bytes or ErrMiss.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok := m.client.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return append([]byte(nil), value...), nil
}

// Set stores value under key. The sturdyc client TTL applies to every entry.
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.client.Set(key, append([]byte(nil), value...))
	return nil
}

// Delete removes key.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.client.Delete(key)
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	return m.client.Size()
}
