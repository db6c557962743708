package storecache

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/goliatone/go-variation-cache/cache"
	"github.com/goliatone/go-variation-cache/catalog"
	"github.com/goliatone/go-variation-cache/epoch"
)

// Interface assertion to ensure CachedStore implements catalog.Store
var _ catalog.Store = (*CachedStore)(nil)

// Method names used as cache key prefixes.
const (
	methodProduct   = "Product"
	methodVariation = "Variation"
	methodTerms     = "Terms"
)

// CachedStore decorates a catalog.Store with read-through caching of entity
// lookups. Set queries, stock and price index calls pass through.
type CachedStore struct {
	catalog.Store
	cache         cache.CacheService
	keySerializer cache.KeySerializer
	keyRegistry   *sync.Map // Track active cache keys for invalidation
	epochs        epoch.Source
	tokenMu       sync.Mutex
	token         string
	logger        *zap.Logger
}

// Option customizes a CachedStore.
type Option func(*CachedStore)

// WithEpochs scopes every cache key to the current product epoch of src, so
// a bump in any process retires the cached entities. Lookups go straight to
// the base store while the epoch cannot be read.
func WithEpochs(src epoch.Source) Option {
	return func(c *CachedStore) { c.epochs = src }
}

// New creates a CachedStore that wraps base. A nil logger is replaced with a
// no-op logger.
func New(base catalog.Store, cacheService cache.CacheService, keySerializer cache.KeySerializer, logger *zap.Logger, opts ...Option) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &CachedStore{
		Store:         base,
		cache:         cacheService,
		keySerializer: keySerializer,
		keyRegistry:   &sync.Map{},
		logger:        logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Product returns a copy of the cached parent product.
func (c *CachedStore) Product(ctx context.Context, id int64) (*catalog.Product, error) {
	key, ok := c.cacheKey(ctx, methodProduct, id)
	if !ok {
		return c.Store.Product(ctx, id)
	}
	c.trackKey(key)
	p, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (catalog.Product, error) {
		p, err := c.Store.Product(ctx, id)
		if err != nil {
			return catalog.Product{}, err
		}
		return *p, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneProduct(p), nil
}

// Variation returns a copy of the cached variation.
func (c *CachedStore) Variation(ctx context.Context, id int64) (*catalog.Variation, error) {
	key, ok := c.cacheKey(ctx, methodVariation, id)
	if !ok {
		return c.Store.Variation(ctx, id)
	}
	c.trackKey(key)
	v, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (catalog.Variation, error) {
		v, err := c.Store.Variation(ctx, id)
		if err != nil {
			return catalog.Variation{}, err
		}
		return *v, nil
	})
	if err != nil {
		return nil, err
	}
	v.Attributes = maps.Clone(v.Attributes)
	return &v, nil
}

// Terms returns the cached term slugs of a product.
func (c *CachedStore) Terms(ctx context.Context, productID int64, taxonomy string) ([]string, error) {
	key, ok := c.cacheKey(ctx, methodTerms, productID, taxonomy)
	if !ok {
		return c.Store.Terms(ctx, productID, taxonomy)
	}
	c.trackKey(key)
	terms, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) ([]string, error) {
		return c.Store.Terms(ctx, productID, taxonomy)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(terms), nil
}

// SaveProduct writes through and drops the cached product.
func (c *CachedStore) SaveProduct(ctx context.Context, p *catalog.Product) error {
	if err := c.Store.SaveProduct(ctx, p); err != nil {
		return err
	}
	c.InvalidateProduct(ctx, p.ID)
	return nil
}

// SetStockStatus writes through and drops the cached variation when it changed.
func (c *CachedStore) SetStockStatus(ctx context.Context, id int64, status catalog.StockStatus) (bool, error) {
	changed, err := c.Store.SetStockStatus(ctx, id, status)
	if err == nil && changed {
		c.InvalidateVariation(ctx, id)
	}
	return changed, err
}

// InvalidateProduct drops the cached product and its terms under every epoch.
func (c *CachedStore) InvalidateProduct(ctx context.Context, id int64) {
	c.invalidateEntity(ctx, c.keySerializer.SerializeKey(methodProduct, id))
	c.invalidateByPrefix(ctx, c.keySerializer.SerializeKey(methodTerms, id)+cache.KeySeparator)
}

// InvalidateVariation drops the cached variation under every epoch.
func (c *CachedStore) InvalidateVariation(ctx context.Context, id int64) {
	c.invalidateEntity(ctx, c.keySerializer.SerializeKey(methodVariation, id))
}

// cacheKey builds the key of a lookup. With an epoch source the product
// token is appended; ok is false when it cannot be read.
func (c *CachedStore) cacheKey(ctx context.Context, method string, args ...any) (string, bool) {
	if c.epochs == nil {
		return c.keySerializer.SerializeKey(method, args...), true
	}
	token, err := c.epochs.Current(ctx, epoch.DomainProduct)
	if err != nil {
		c.logger.Warn("epoch unavailable, bypassing entity cache", zap.String("method", method), zap.Error(err))
		return "", false
	}
	c.retireEpochs(ctx, token)
	return c.keySerializer.SerializeKey(method, append(args, token)...), true
}

// retireEpochs drops the entries of earlier epochs the first time token is seen.
func (c *CachedStore) retireEpochs(ctx context.Context, token string) {
	c.tokenMu.Lock()
	if c.token == token {
		c.tokenMu.Unlock()
		return
	}
	previous := c.token
	c.token = token
	c.tokenMu.Unlock()
	if previous == "" {
		return
	}

	suffix := cache.KeySeparator + token
	var stale []string
	c.keyRegistry.Range(func(k, v any) bool {
		if key, ok := k.(string); ok && !strings.HasSuffix(key, suffix) {
			stale = append(stale, key)
		}
		return true
	})
	for _, key := range stale {
		c.invalidateKey(ctx, key)
	}
	c.logger.Debug("entity cache epoch advanced", zap.String("epoch", token), zap.Int("retired", len(stale)))
}

// invalidateEntity drops the unscoped key and every epoch scoped key of an entity.
func (c *CachedStore) invalidateEntity(ctx context.Context, base string) {
	c.invalidateKey(ctx, base)
	c.invalidateByPrefix(ctx, base+cache.KeySeparator)
}

// trackKey registers a cache key in the key registry for later invalidation
func (c *CachedStore) trackKey(key string) {
	c.keyRegistry.Store(key, struct{}{})
}

func (c *CachedStore) invalidateKey(ctx context.Context, key string) {
	if err := c.cache.Delete(ctx, key); err != nil {
		c.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
	c.keyRegistry.Delete(key)
}

// invalidateByPrefix removes all cached keys that start with the given prefix
func (c *CachedStore) invalidateByPrefix(ctx context.Context, prefix string) {
	var keysToDelete []string
	c.keyRegistry.Range(func(k, v any) bool {
		if key, ok := k.(string); ok && strings.HasPrefix(key, prefix) {
			keysToDelete = append(keysToDelete, key)
		}
		return true
	})

	for _, key := range keysToDelete {
		c.invalidateKey(ctx, key)
	}
}

func cloneProduct(p catalog.Product) *catalog.Product {
	p.Attributes = slices.Clone(p.Attributes)
	p.Children = slices.Clone(p.Children)
	p.VisibleChildren = slices.Clone(p.VisibleChildren)
	p.VariationAttributes = maps.Clone(p.VariationAttributes)
	p.Prices = p.Prices.Clone()
	p.PricesIncludingTax = p.PricesIncludingTax.Clone()
	return &p
}
