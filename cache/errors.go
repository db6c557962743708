package cache

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-variation-cache/internal/cacheinfra"
)

var (
	// ErrMiss matches lookups of keys with no live entry.
	ErrMiss = cacheinfra.ErrMiss
	// ErrUnavailable matches persistent tier failures.
	ErrUnavailable = cacheinfra.ErrUnavailable
)

// ErrorType represents the type of cache error
type ErrorType int

const (
	// ErrorTypeMiss indicates the key has no entry
	ErrorTypeMiss ErrorType = iota
	// ErrorTypeUnavailable indicates the backend could not be reached
	ErrorTypeUnavailable
	// ErrorTypeMalformed indicates a stored value failed to decode or lacks expected fields
	ErrorTypeMalformed
	// ErrorTypeValidation indicates invalid input to a cache operation
	ErrorTypeValidation
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeMiss:
		return "MISS"
	case ErrorTypeUnavailable:
		return "UNAVAILABLE"
	case ErrorTypeMalformed:
		return "MALFORMED"
	case ErrorTypeValidation:
		return "VALIDATION"
	default:
		return "UNKNOWN"
	}
}

// Error is a cache error with the key it concerns.
type Error struct {
	Type    ErrorType
	Key     string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("cache error [%s]", e.Type)
	if e.Key != "" {
		msg += fmt.Sprintf(" for key '%s'", e.Key)
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same type, and the ErrMiss and
// ErrUnavailable sentinels for the corresponding types.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Type == t.Type
	}
	switch e.Type {
	case ErrorTypeMiss:
		return target == ErrMiss
	case ErrorTypeUnavailable:
		return target == ErrUnavailable
	}
	return false
}

// NewError creates a new Error
func NewError(errType ErrorType, key, message string, cause error) *Error {
	return &Error{Type: errType, Key: key, Message: message, Cause: cause}
}

// NewMissError creates a miss error
func NewMissError(key string) *Error {
	return NewError(ErrorTypeMiss, key, "key not found in cache", nil)
}

// NewUnavailableError creates an error for a failed backend call
func NewUnavailableError(key, message string, cause error) *Error {
	return NewError(ErrorTypeUnavailable, key, message, cause)
}

// NewMalformedError creates an error for a stored value that cannot be used
func NewMalformedError(key, message string, cause error) *Error {
	return NewError(ErrorTypeMalformed, key, message, cause)
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *Error {
	return NewError(ErrorTypeValidation, "", message, cause)
}

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}

// IsUnavailable reports whether err is a backend failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsMalformed reports whether err is a decode failure of a stored value.
func IsMalformed(err error) bool {
	var cacheErr *Error
	return errors.As(err, &cacheErr) && cacheErr.Type == ErrorTypeMalformed
}
