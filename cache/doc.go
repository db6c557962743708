// Package cache provides the two cache surfaces used by the variation core.
//
// # Overview
//
//   - Store: the persistent tier. Opaque bytes with a TTL, backed by sturdyc
//     in memory, Redis or DynamoDB (see Config.Backend and NewStore).
//   - CacheService: an in-process read-through cache used to decorate entity
//     lookups. GetOrFetch adds type safety on top of it.
//   - KeySerializer: builds stable keys from a method name and arguments. The
//     pricing package hashes its output to produce price fingerprints.
//
// # Persistent tier
//
// Values are encoded with msgpack through the generic Get and Set helpers:
//
//	entry, err := cache.Get[childSet](ctx, store, cache.ChildrenKey(parentID))
//	switch {
//	case cache.IsMiss(err), cache.IsMalformed(err):
//		// recompute
//	case cache.IsUnavailable(err):
//		// recompute, skip the write
//	}
//
// Helpers return *Error values with one of four types: Miss, Unavailable,
// Malformed and Validation. Nothing in this package retries. When
// Config.Breaker is enabled the backend sits behind a gobreaker circuit
// breaker; misses count as successful calls and an open breaker is reported
// as Unavailable without touching the backend.
//
// # Key serialization
//
// The default key serializer uses reflection:
//
//   - Functions: runtime symbol name, so keys are stable across processes
//   - Text marshalers (decimals, times): their text form
//   - Slices/arrays: recursive serialization of elements
//   - Maps: sorted key=value pairs
//   - Structs: exported fields with Name:value pairs
//   - Anything else: JSON fallback
//
// Closures share the symbol name of their enclosing function. Callers that
// need to tell two closures apart must pass an explicit identity alongside.
package cache
