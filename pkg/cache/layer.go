package cache

import (
	"context"
	"time"
)

// Layer is the contract every cache tier implements, from the in-process L1
// map down to Redis. Values are opaque byte slices: callers serialize domain
// objects once at the edge (JSON in this repo) so every layer, local or
// remote, stores the same representation.
type Layer interface {
	// Get retrieves the value stored under key.
	// Returns ErrKeyNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for the given time-to-live.
	// A zero ttl lets the layer apply its configured default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the layer in logs and metrics (e.g. "L1-memory").
	Name() string

	// Close releases resources held by the layer.
	Close() error
}
