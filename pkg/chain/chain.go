// Package chain composes cache layers into a read-through hierarchy.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ledgercache/pkg/cache"
	"ledgercache/pkg/logging"
	"ledgercache/pkg/metrics"
	"ledgercache/pkg/resilience"
	"ledgercache/pkg/writer"

	"golang.org/x/sync/singleflight"
)

// Chain manages ordered cache layers with fallback and warm-up. Layers run
// fastest to slowest (L1..LN); every layer is wrapped with resilience
// protection, and hits below L1 warm the layers above through async writers.
type Chain struct {
	layers  []cache.Layer
	writers []*writer.AsyncWriter
	sf      singleflight.Group
	ttl     TTLStrategy
	warmTTL time.Duration
	metrics metrics.Collector
	logger  *logging.Logger
}

// Config customizes chain construction.
type Config struct {
	// ResilientConfigs provides per-layer protection settings, positionally.
	// Missing positions fall back to defaults scaled by depth.
	ResilientConfigs []resilience.Config

	// TTLStrategy resolves per-layer TTLs for warm-up and Set.
	// Defaults to UniformTTL.
	TTLStrategy TTLStrategy

	// WarmTTL is the base TTL used when warming upper layers after a deep
	// hit. Default 1h.
	WarmTTL time.Duration

	// Metrics receives chain and layer events. Default NoOp.
	Metrics metrics.Collector

	// Logger defaults to the global logger.
	Logger *logging.Logger
}

// New creates a chain with default configuration.
func New(layers ...cache.Layer) (*Chain, error) {
	return NewWithConfig(Config{}, layers...)
}

// NewWithConfig creates a chain from explicit configuration.
func NewWithConfig(config Config, layers ...cache.Layer) (*Chain, error) {
	if len(layers) == 0 {
		return nil, errors.New("chain: at least one layer required")
	}

	if config.Metrics == nil {
		config.Metrics = metrics.NoOpCollector{}
	}
	if config.Logger == nil {
		config.Logger = logging.L()
	}
	if config.TTLStrategy == nil {
		config.TTLStrategy = &UniformTTL{}
	}
	if config.WarmTTL <= 0 {
		config.WarmTTL = time.Hour
	}

	resilient := make([]cache.Layer, len(layers))
	for i, layer := range layers {
		rc := resilience.DefaultConfig()
		if i < len(config.ResilientConfigs) {
			rc = config.ResilientConfigs[i]
		} else if i == 0 {
			// L1 is in-process; anything slow there is a bug.
			rc = rc.WithTimeout(100 * time.Millisecond)
		} else {
			rc = rc.WithTimeout(time.Second)
		}
		resilient[i] = resilience.NewWithMetrics(layer, rc, config.Metrics)
	}

	writers := make([]*writer.AsyncWriter, len(resilient))
	for i, layer := range resilient {
		writers[i] = writer.NewWithMetrics(layer, writer.Config{
			QueueSize:   1000,
			Workers:     2,
			MaxWaitTime: 10 * time.Millisecond,
		}, config.Metrics)
	}

	return &Chain{
		layers:  resilient,
		writers: writers,
		ttl:     config.TTLStrategy,
		warmTTL: config.WarmTTL,
		metrics: config.Metrics,
		logger:  config.Logger.Named("chain"),
	}, nil
}

// Get traverses layers in order until a hit, then warms the layers above the
// hit asynchronously. Concurrent Gets for the same key collapse into one
// traversal via singleflight.
func (c *Chain) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.getWithFallback(ctx, key)
	})
	if err != nil {
		c.metrics.RecordChainGet(false, -1, time.Since(start))
		return nil, err
	}

	hit := result.(hitResult)
	c.metrics.RecordChainGet(true, hit.layerIndex, time.Since(start))
	return hit.value, nil
}

type hitResult struct {
	value      []byte
	layerIndex int
}

func (c *Chain) getWithFallback(ctx context.Context, key string) (interface{}, error) {
	var lastErr error

	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := layer.Get(ctx, key)
		if err != nil {
			// A miss falls through like any layer failure; deeper layers
			// may still hold the key.
			lastErr = err
			continue
		}

		if i > 0 {
			c.warmUpperLayers(ctx, key, value, i)
		}
		return hitResult{value: value, layerIndex: i}, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, cache.ErrKeyNotFound
}

// warmUpperLayers enqueues the value into every layer above the hit. Writes
// go through the async writers so the read path never waits.
func (c *Chain) warmUpperLayers(ctx context.Context, key string, value []byte, hitIndex int) {
	for i := hitIndex - 1; i >= 0; i-- {
		ttl := c.ttl.TTLFor(i, len(c.layers), c.warmTTL)
		if err := c.writers[i].Write(ctx, key, value, ttl); err != nil && !errors.Is(err, writer.ErrQueueFull) {
			c.logger.Debug("warm-up write rejected")
		}
	}
}

// Set writes the value to every layer with its strategy-resolved TTL.
// Per-layer failures do not stop the fan-out; the last error is returned.
func (c *Chain) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var lastErr error
	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := layer.Set(ctx, key, value, c.ttl.TTLFor(i, len(c.layers), ttl)); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Delete removes the key from every layer. Per-layer failures do not stop
// the fan-out; the last error is returned.
func (c *Chain) Delete(ctx context.Context, key string) error {
	var lastErr error
	for _, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := layer.Delete(ctx, key); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close closes writers first (draining pending warm-ups), then layers.
func (c *Chain) Close() error {
	var lastErr error
	for _, w := range c.writers {
		if err := w.Close(); err != nil {
			lastErr = err
		}
	}
	for _, layer := range c.layers {
		if err := layer.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Layers returns a copy of the layer slice for inspection.
func (c *Chain) Layers() []cache.Layer {
	layers := make([]cache.Layer, len(c.layers))
	copy(layers, c.layers)
	return layers
}

// Len returns the number of layers.
func (c *Chain) Len() int { return len(c.layers) }

// Name identifies the chain when it is used as a cache.Layer itself.
func (c *Chain) Name() string { return "chain" }

// String renders the chain topology, e.g. "chain(2 layers): L1 -> L2".
func (c *Chain) String() string {
	names := make([]string, len(c.layers))
	for i, layer := range c.layers {
		names[i] = layer.Name()
	}
	return fmt.Sprintf("chain(%d layers): %s", len(c.layers), strings.Join(names, " -> "))
}
