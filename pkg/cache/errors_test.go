package cache

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, "none"},
		{"not found", ErrKeyNotFound, "key_not_found"},
		{"wrapped not found", fmt.Errorf("layer L1: %w", ErrKeyNotFound), "key_not_found"},
		{"timeout", ErrTimeout, "timeout"},
		{"circuit open", ErrCircuitOpen, "circuit_breaker_open"},
		{"unavailable", ErrLayerUnavailable, "unavailable"},
		{"invalid key", ErrInvalidKey, "invalid_key"},
		{"invalid value", ErrInvalidValue, "invalid_value"},
		{"connection refused", errors.New("dial tcp: connection refused"), "connection"},
		{"serialization", errors.New("json: cannot unmarshal"), "serialization"},
		{"redis backend", errors.New("redis: server closed"), "backend"},
		{"unknown", errors.New("something odd"), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.expected {
				t.Errorf("ClassifyError(%v) = %q, expected %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	wrapped := WrapError(ErrKeyNotFound, "L1", "get")

	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should see through WrapError")
	}
	if IsTimeout(wrapped) {
		t.Error("IsTimeout should be false for a wrapped miss")
	}
	if !IsCircuitOpen(fmt.Errorf("x: %w", ErrCircuitOpen)) {
		t.Error("IsCircuitOpen should match wrapped ErrCircuitOpen")
	}
	if !IsUnavailable(fmt.Errorf("x: %w", ErrLayerUnavailable)) {
		t.Error("IsUnavailable should match wrapped ErrLayerUnavailable")
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, "L1", "get") != nil {
		t.Error("WrapError(nil) should be nil")
	}

	err := WrapError(ErrTimeout, "L2", "set")
	if !errors.Is(err, ErrTimeout) {
		t.Error("wrapped error should still match its sentinel")
	}
}

func TestCacheMissAlias(t *testing.T) {
	if !errors.Is(ErrCacheMiss, ErrKeyNotFound) {
		t.Error("ErrCacheMiss should alias ErrKeyNotFound")
	}
}
