// Package epoch keeps the invalidation tokens of cache domains. Entries tagged
// with a token other than the current one are treated as stale; bumping a
// domain voids all of them at once without deleting anything.
package epoch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/goliatone/go-variation-cache/cache"
)

// DomainProduct is the cache domain of product aggregates.
const DomainProduct = "product"

// Source reports the current token of a domain.
type Source interface {
	Current(ctx context.Context, domain string) (string, error)
}

// Registry is a Source whose tokens can be advanced.
type Registry interface {
	Source
	Bump(ctx context.Context, domain string) (string, error)
}

// TokenFunc mints a new token. Successive tokens must compare greater than
// the previous ones.
type TokenFunc func() (string, error)

// NewV7Token mints a time ordered UUIDv7 token.
func NewV7Token() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("mint epoch token: %w", err)
	}
	return id.String(), nil
}

// Option configures a registry.
type Option func(*options)

type options struct {
	newToken TokenFunc
	logger   *zap.Logger
}

// WithTokenFunc replaces the token generator.
func WithTokenFunc(fn TokenFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.newToken = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{newToken: NewV7Token, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// MemoryRegistry holds tokens in process memory.
type MemoryRegistry struct {
	tokens   *xsync.MapOf[string, string]
	newToken TokenFunc
}

// NewMemoryRegistry creates an empty in-process registry.
func NewMemoryRegistry(opts ...Option) *MemoryRegistry {
	o := buildOptions(opts)
	return &MemoryRegistry{
		tokens:   xsync.NewMapOf[string, string](),
		newToken: o.newToken,
	}
}

// Current returns the token of domain, minting one on first use.
func (r *MemoryRegistry) Current(ctx context.Context, domain string) (string, error) {
	if token, ok := r.tokens.Load(domain); ok {
		return token, nil
	}

	var mintErr error
	token, _ := r.tokens.Compute(domain, func(old string, loaded bool) (string, bool) {
		if loaded {
			return old, false
		}
		fresh, err := r.newToken()
		if err != nil {
			mintErr = err
			return "", true
		}
		return fresh, false
	})
	if mintErr != nil {
		return "", mintErr
	}
	return token, nil
}

// Bump replaces the token of domain and returns the new one.
func (r *MemoryRegistry) Bump(ctx context.Context, domain string) (string, error) {
	var mintErr error
	token, _ := r.tokens.Compute(domain, func(old string, loaded bool) (string, bool) {
		fresh, err := r.newToken()
		if err != nil {
			mintErr = err
			return old, !loaded
		}
		return fresh, false
	})
	if mintErr != nil {
		return "", mintErr
	}
	return token, nil
}

// StoreRegistry keeps tokens in the persistent tier so every process sharing
// the store sees the same epoch.
type StoreRegistry struct {
	store    cache.Store
	newToken TokenFunc
	logger   *zap.Logger
	fallback *MemoryRegistry
}

// NewStoreRegistry creates a registry over store.
func NewStoreRegistry(store cache.Store, opts ...Option) *StoreRegistry {
	o := buildOptions(opts)
	return &StoreRegistry{
		store:    store,
		newToken: o.newToken,
		logger:   o.logger,
		fallback: NewMemoryRegistry(WithTokenFunc(o.newToken)),
	}
}

// Current returns the stored token of domain. A missing token is minted and
// stored without expiry. While the store is unreachable a process local token
// is returned, which never matches a persisted entry.
func (r *StoreRegistry) Current(ctx context.Context, domain string) (string, error) {
	key := cache.VersionKey(domain)

	data, err := r.store.Get(ctx, key)
	switch {
	case err == nil && len(data) > 0:
		return string(data), nil
	case err == nil, errors.Is(err, cache.ErrMiss):
		token, err := r.mint(ctx, domain)
		if err == nil || !cache.IsUnavailable(err) {
			return token, err
		}
		return r.degrade(ctx, key, domain, err)
	default:
		return r.degrade(ctx, key, domain, err)
	}
}

func (r *StoreRegistry) degrade(ctx context.Context, key, domain string, err error) (string, error) {
	r.logger.Warn("epoch store unavailable, using local token",
		zap.String("key", key),
		zap.Error(err),
	)
	return r.fallback.Current(ctx, domain)
}

// Bump stores a fresh token for domain.
func (r *StoreRegistry) Bump(ctx context.Context, domain string) (string, error) {
	return r.mint(ctx, domain)
}

func (r *StoreRegistry) mint(ctx context.Context, domain string) (string, error) {
	token, err := r.newToken()
	if err != nil {
		return "", err
	}
	if err := r.store.Set(ctx, cache.VersionKey(domain), []byte(token), 0); err != nil {
		return "", fmt.Errorf("store epoch token for %s: %w", domain, err)
	}
	return token, nil
}
