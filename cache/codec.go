package cache

import (
	"context"
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes v with msgpack.
func Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode deserializes msgpack data into v.
func Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// Get loads key from store and decodes it into a T.
//
// Errors are always *Error values: a missing key is ErrorTypeMiss, a payload
// that fails to decode is ErrorTypeMalformed and anything else coming from the
// store is ErrorTypeUnavailable.
func Get[T any](ctx context.Context, store Store, key string) (T, error) {
	var zero T

	data, err := store.Get(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, ErrMiss):
		return zero, NewMissError(key)
	default:
		var cacheErr *Error
		if errors.As(err, &cacheErr) {
			return zero, cacheErr
		}
		return zero, NewUnavailableError(key, "persistent cache read failed", err)
	}

	var value T
	if err := Decode(data, &value); err != nil {
		return zero, NewMalformedError(key, "cannot decode cached value", err)
	}
	return value, nil
}

// Set encodes value and writes it under key with ttl.
func Set[T any](ctx context.Context, store Store, key string, value T, ttl time.Duration) error {
	data, err := Encode(value)
	if err != nil {
		return NewValidationError("cannot encode value for "+key, err)
	}
	if err := store.Set(ctx, key, data, ttl); err != nil {
		var cacheErr *Error
		if errors.As(err, &cacheErr) {
			return cacheErr
		}
		return NewUnavailableError(key, "persistent cache write failed", err)
	}
	return nil
}
