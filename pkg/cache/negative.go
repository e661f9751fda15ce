package cache

import (
	"context"
	"sync"
	"time"
)

// NegativeLayer wraps a Layer with negative caching: "not found" results are
// remembered for a short TTL so repeated lookups of missing IDs (a favorite
// cache-penetration vector) skip the wrapped layer entirely.
type NegativeLayer struct {
	layer       Layer
	negative    map[string]time.Time
	negativeTTL time.Duration
	mu          sync.RWMutex
	stop        chan struct{}
	done        chan struct{}
}

// NewNegativeLayer wraps layer, caching misses for negativeTTL
// (default one minute).
func NewNegativeLayer(layer Layer, negativeTTL time.Duration) *NegativeLayer {
	if negativeTTL <= 0 {
		negativeTTL = time.Minute
	}

	nl := &NegativeLayer{
		layer:       layer,
		negative:    make(map[string]time.Time),
		negativeTTL: negativeTTL,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go nl.cleanup()
	return nl
}

func (nl *NegativeLayer) Name() string { return nl.layer.Name() + "-negative" }

// Get checks the negative cache before touching the wrapped layer, and
// records a fresh miss when the wrapped layer reports one.
func (nl *NegativeLayer) Get(ctx context.Context, key string) ([]byte, error) {
	if nl.isNegative(key) {
		return nil, ErrKeyNotFound
	}

	value, err := nl.layer.Get(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			nl.markNegative(key)
		}
		return nil, err
	}

	nl.clearNegative(key)
	return value, nil
}

// Set stores the value and clears any remembered miss for the key.
func (nl *NegativeLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	nl.clearNegative(key)
	return nl.layer.Set(ctx, key, value, ttl)
}

// Delete removes the key and remembers the resulting absence.
func (nl *NegativeLayer) Delete(ctx context.Context, key string) error {
	err := nl.layer.Delete(ctx, key)
	if err == nil {
		nl.markNegative(key)
	}
	return err
}

// Close stops the cleanup goroutine and closes the wrapped layer.
func (nl *NegativeLayer) Close() error {
	close(nl.stop)
	<-nl.done
	return nl.layer.Close()
}

// NegativeCount returns the number of remembered misses, for stats handlers.
func (nl *NegativeLayer) NegativeCount() int {
	nl.mu.RLock()
	defer nl.mu.RUnlock()
	return len(nl.negative)
}

func (nl *NegativeLayer) isNegative(key string) bool {
	nl.mu.RLock()
	defer nl.mu.RUnlock()
	expiry, ok := nl.negative[key]
	return ok && time.Now().Before(expiry)
}

func (nl *NegativeLayer) markNegative(key string) {
	nl.mu.Lock()
	nl.negative[key] = time.Now().Add(nl.negativeTTL)
	nl.mu.Unlock()
}

func (nl *NegativeLayer) clearNegative(key string) {
	nl.mu.Lock()
	delete(nl.negative, key)
	nl.mu.Unlock()
}

func (nl *NegativeLayer) cleanup() {
	defer close(nl.done)

	ticker := time.NewTicker(nl.negativeTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			nl.mu.Lock()
			for key, expiry := range nl.negative {
				if now.After(expiry) {
					delete(nl.negative, key)
				}
			}
			nl.mu.Unlock()
		case <-nl.stop:
			return
		}
	}
}
