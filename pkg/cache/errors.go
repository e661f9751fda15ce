package cache

import (
	"errors"
	"fmt"
	"strings"
)

// Standard errors returned by cache layers.
var (
	// ErrKeyNotFound is returned when a requested key does not exist.
	ErrKeyNotFound = errors.New("cache: key not found")

	// ErrCacheMiss is an alias for ErrKeyNotFound.
	ErrCacheMiss = ErrKeyNotFound

	// ErrInvalidKey is returned when a cache key fails validation.
	ErrInvalidKey = errors.New("cache: invalid key")

	// ErrInvalidValue is returned when a value cannot be stored.
	ErrInvalidValue = errors.New("cache: invalid value")

	// ErrLayerUnavailable is returned when a layer is temporarily down.
	ErrLayerUnavailable = errors.New("cache: layer unavailable")

	// ErrTimeout is returned when an operation exceeds its deadline.
	ErrTimeout = errors.New("cache: operation timeout")

	// ErrCircuitOpen is returned while a layer's circuit breaker is open.
	ErrCircuitOpen = errors.New("cache: circuit breaker open")
)

// IsNotFound reports whether err indicates a cache miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsTimeout reports whether err indicates an operation timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsUnavailable reports whether err indicates an unavailable layer.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrLayerUnavailable)
}

// IsCircuitOpen reports whether err indicates an open circuit breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// ClassifyError maps an error to a low-cardinality label for metrics.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_breaker_open"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, ErrLayerUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "connection", "connect", "dial"):
		return "connection"
	case containsAny(msg, "marshal", "unmarshal", "encode", "decode"):
		return "serialization"
	case containsAny(msg, "redis"):
		return "backend"
	default:
		return "other"
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// WrapError annotates err with the layer and operation it came from.
func WrapError(err error, layer, operation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("cache layer %s %s: %w", layer, operation, err)
}
