// Package storecache provides a read-through caching decorator for
// catalog.Store.
//
// CachedStore keeps parent products, variations and term lists in the
// in-process cache.CacheService (sturdyc by default) under keys built by a
// cache.KeySerializer:
//
//	Product::1
//	Variation::101
//	Terms::1::pa_color
//
// WithEpochs appends the current product epoch token to every key
// (Product::1::<token>), so an epoch bump made by any process retires the
// cached entities without an explicit invalidation.
//
// Callers always receive copies, so mutating a returned product does not
// change the cached entry. SaveProduct and SetStockStatus write through to
// the wrapped store and drop the affected entries. Writes made around the
// decorator must call InvalidateProduct or InvalidateVariation.
//
// Child id queries, presence checks, stock lookups and the price index are
// not cached here; the variation package persists child sets itself.
//
// Usage:
//
//	base := catalogstore.New(db, logger)
//	service, _ := cache.NewCacheService(cache.DefaultConfig())
//	store := storecache.New(base, service, cache.NewDefaultKeySerializer(), logger,
//		storecache.WithEpochs(registry))
package storecache
