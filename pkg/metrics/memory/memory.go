// Package memory provides an in-memory metrics collector for tests.
package memory

import (
	"strconv"
	"sync"
	"time"

	"ledgercache/pkg/metrics"
)

// Collector accumulates events in maps guarded by a mutex. Tests assert on
// snapshots; nothing is exported anywhere.
type Collector struct {
	mu sync.RWMutex

	layers map[string]*LayerStats

	chainHits        int64
	chainMisses      int64
	chainHitsByLayer map[int]int64
}

// LayerStats holds the accumulated counters for one layer.
type LayerStats struct {
	Hits          int64
	Misses        int64
	Sets          int64
	Deletes       int64
	Errors        int64
	CircuitState  metrics.CircuitState
	CircuitOpens  int64
	QueueDepth    int
	DroppedWrites int64
	AsyncWrites   int64
	AsyncErrors   int64
}

// New creates an empty collector.
func New() *Collector {
	return &Collector{
		layers:           make(map[string]*LayerStats),
		chainHitsByLayer: make(map[int]int64),
	}
}

func (c *Collector) layer(name string) *LayerStats {
	ls, ok := c.layers[name]
	if !ok {
		ls = &LayerStats{}
		c.layers[name] = ls
	}
	return ls
}

func (c *Collector) RecordGet(layer string, hit bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls := c.layer(layer)
	if hit {
		ls.Hits++
	} else {
		ls.Misses++
	}
}

func (c *Collector) RecordSet(layer string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls := c.layer(layer)
	ls.Sets++
	if !success {
		ls.Errors++
	}
}

func (c *Collector) RecordDelete(layer string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls := c.layer(layer)
	ls.Deletes++
	if !success {
		ls.Errors++
	}
}

func (c *Collector) RecordCircuitState(layer string, state metrics.CircuitState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls := c.layer(layer)
	if state == metrics.CircuitOpen && ls.CircuitState != metrics.CircuitOpen {
		ls.CircuitOpens++
	}
	ls.CircuitState = state
}

func (c *Collector) RecordQueueDepth(layer string, depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layer(layer).QueueDepth = depth
}

func (c *Collector) RecordWriteDropped(layer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layer(layer).DroppedWrites++
}

func (c *Collector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls := c.layer(layer)
	ls.AsyncWrites++
	if !success {
		ls.AsyncErrors++
	}
}

func (c *Collector) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.chainHits++
		c.chainHitsByLayer[layerIndex]++
	} else {
		c.chainMisses++
	}
}

// Layer returns a copy of the stats for one layer.
func (c *Collector) Layer(name string) LayerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ls, ok := c.layers[name]; ok {
		return *ls
	}
	return LayerStats{}
}

// ChainHits returns total chain-level hits.
func (c *Collector) ChainHits() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chainHits
}

// ChainMisses returns total chain-level misses.
func (c *Collector) ChainMisses() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chainMisses
}

// ChainHitsAtLayer returns how many chain gets were served by layer index i.
func (c *Collector) ChainHitsAtLayer(i int) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chainHitsByLayer[i]
}

// Snapshot renders the collector as a map for debug endpoints.
func (c *Collector) Snapshot() map[string]LayerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]LayerStats, len(c.layers))
	for name, ls := range c.layers {
		out[name] = *ls
	}
	if len(c.chainHitsByLayer) > 0 {
		for idx, hits := range c.chainHitsByLayer {
			out["chain-L"+strconv.Itoa(idx)] = LayerStats{Hits: hits}
		}
	}
	return out
}
