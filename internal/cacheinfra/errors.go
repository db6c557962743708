package cacheinfra

import "errors"

var (
	// ErrMiss is returned by stores when a key has no live entry.
	ErrMiss = errors.New("cache miss")
	// ErrUnavailable wraps backend failures (connection, timeout, throttling).
	ErrUnavailable = errors.New("cache unavailable")
)

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
