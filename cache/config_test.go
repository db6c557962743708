package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	data map[string]string
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, DefaultTTL, cfg.TTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Breaker.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Backend = "memcached" }, wantErr: true},
		{name: "empty backend", mutate: func(c *Config) { c.Backend = "" }, wantErr: true},
		{name: "zero capacity", mutate: func(c *Config) { c.Capacity = 0 }, wantErr: true},
		{name: "bad breaker", mutate: func(c *Config) { c.Breaker.FailureThreshold = 2 }, wantErr: true},
		{name: "disabled breaker", mutate: func(c *Config) { c.Breaker = BreakerConfig{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
				return
			}
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestNewStore_Backends(t *testing.T) {
	ctx := context.Background()

	t.Run("memory with breaker", func(t *testing.T) {
		store, err := NewStore(DefaultConfig())
		require.NoError(t, err)
		_, isBreaker := store.Store.(*BreakerStore)
		assert.True(t, isBreaker)
		assert.NoError(t, store.Close())
	})

	t.Run("redis with injected client", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Backend = BackendRedis
		client := &fakeRedis{data: map[string]string{}}

		store, err := NewStore(cfg, WithRedisClient(client))
		require.NoError(t, err)

		require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
		assert.Equal(t, "v", client.data["varcache:k"])

		got, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)
		assert.NoError(t, store.Close())
	})

	t.Run("dynamodb requires a client", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Backend = BackendDynamo
		cfg.Dynamo.Table = "varcache"

		_, err := NewStore(cfg)
		assert.Error(t, err)
	})
}
