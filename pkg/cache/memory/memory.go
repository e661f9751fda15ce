// Package memory provides the in-process L1 cache layer.
package memory

import (
	"context"
	"sync"
	"time"

	"ledgercache/pkg/cache"
)

// Cache is a thread-safe in-memory cache with TTL expiry and LRU eviction.
// It is the L1 of the chain: hits here cost a map lookup under RWMutex.
type Cache struct {
	data   map[string]*entry
	mu     sync.RWMutex
	config Config
	ttl    cache.LayerConfig

	janitor *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
}

type entry struct {
	value      []byte
	expiresAt  time.Time
	accessedAt time.Time
}

// Config holds memory cache configuration.
type Config struct {
	// Name is the layer identifier. Default "memory".
	Name string

	// MaxSize is the entry limit; the least recently used entry is evicted
	// beyond it. Zero means unlimited.
	MaxSize int

	// DefaultTTL applies when Set is called with a zero ttl. Default 1h.
	DefaultTTL time.Duration

	// MaxTTL caps every entry's ttl. Zero means uncapped.
	MaxTTL time.Duration

	// CleanupInterval is the expired-entry sweep period. Default 1m.
	CleanupInterval time.Duration
}

// New creates a memory cache and starts its background sweep.
func New(config Config) *Cache {
	if config.Name == "" {
		config.Name = "memory"
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = time.Hour
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Minute
	}

	c := &Cache{
		data:   make(map[string]*entry),
		config: config,
		ttl: cache.LayerConfig{
			Name:       config.Name,
			DefaultTTL: config.DefaultTTL,
			MaxTTL:     config.MaxTTL,
		},
		janitor: time.NewTicker(config.CleanupInterval),
		stop:    make(chan struct{}),
	}

	c.wg.Add(1)
	go c.sweep()

	return c
}

// Get returns the value stored under key, or cache.ErrKeyNotFound.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()

	if !ok {
		return nil, cache.ErrKeyNotFound
	}

	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return nil, cache.ErrKeyNotFound
	}

	c.mu.Lock()
	e.accessedAt = time.Now()
	c.mu.Unlock()

	return e.value, nil
}

// Set stores value under key, evicting the LRU entry when full.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	now := time.Now()
	expiresAt := now.Add(c.ttl.EffectiveTTL(ttl))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.MaxSize > 0 && len(c.data) >= c.config.MaxSize {
		if _, exists := c.data[key]; !exists {
			c.evictLRU()
		}
	}

	c.data[key] = &entry{
		value:      value,
		expiresAt:  expiresAt,
		accessedAt: now,
	}
	return nil
}

// evictLRU removes the least recently used entry. Caller holds the lock.
func (c *Cache) evictLRU() {
	var lruKey string
	var lruTime time.Time
	for k, e := range c.data {
		if lruKey == "" || e.accessedAt.Before(lruTime) {
			lruKey = k
			lruTime = e.accessedAt
		}
	}
	if lruKey != "" {
		delete(c.data, lruKey)
	}
}

// Delete removes key. Absent keys are not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
	return nil
}

// Name returns the layer identifier.
func (c *Cache) Name() string { return c.config.Name }

// Close stops the sweep goroutine and drops all entries.
func (c *Cache) Close() error {
	c.janitor.Stop()
	close(c.stop)
	c.wg.Wait()

	c.mu.Lock()
	c.data = nil
	c.mu.Unlock()
	return nil
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func (c *Cache) sweep() {
	defer c.wg.Done()
	for {
		select {
		case <-c.janitor.C:
			c.removeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.data {
		if now.After(e.expiresAt) {
			delete(c.data, key)
		}
	}
}
