// Package bloom guards a cache layer against penetration by keys that were
// never written.
package bloom

import (
	"context"
	"sync"
	"time"

	"ledgercache/pkg/cache"

	"github.com/bits-and-blooms/bloom/v3"
)

// Layer wraps a cache.Layer with a bloom filter. Reads for keys the filter
// has never seen are rejected without touching the wrapped layer, which keeps
// scans for invented account IDs away from the backing store.
//
// The filter only grows; deletes leave it untouched, so a deleted key still
// passes the filter and resolves to a miss one level down. That is the usual
// bloom trade: false positives cost a lookup, false negatives never happen.
type Layer struct {
	layer  cache.Layer
	filter *bloom.BloomFilter
	mu     sync.RWMutex

	queries        uint64
	rejected       uint64
	falsePositives uint64
}

// New wraps layer with a filter sized for expectedItems at the given false
// positive rate (defaults: 10000 items, 1%).
func New(layer cache.Layer, expectedItems uint, falsePositiveRate float64) *Layer {
	if expectedItems == 0 {
		expectedItems = 10000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	return &Layer{
		layer:  layer,
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
	}
}

func (bl *Layer) Name() string { return "bloom(" + bl.layer.Name() + ")" }

// Get rejects keys the filter has never seen, otherwise defers to the
// wrapped layer.
func (bl *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bl.mu.Lock()
	bl.queries++
	mayExist := bl.filter.Test([]byte(key))
	if !mayExist {
		bl.rejected++
		bl.mu.Unlock()
		return nil, cache.ErrKeyNotFound
	}
	bl.mu.Unlock()

	value, err := bl.layer.Get(ctx, key)
	if cache.IsNotFound(err) {
		bl.mu.Lock()
		bl.falsePositives++
		bl.mu.Unlock()
	}
	return value, err
}

// Set adds the key to the filter and stores the value.
func (bl *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bl.mu.Lock()
	bl.filter.Add([]byte(key))
	bl.mu.Unlock()

	return bl.layer.Set(ctx, key, value, ttl)
}

// Delete removes the key from the wrapped layer. The filter is unchanged.
func (bl *Layer) Delete(ctx context.Context, key string) error {
	return bl.layer.Delete(ctx, key)
}

// Close closes the wrapped layer.
func (bl *Layer) Close() error { return bl.layer.Close() }

// Stats describes the filter's effectiveness so far.
type Stats struct {
	Queries        uint64
	Rejected       uint64
	FalsePositives uint64
}

// Stats returns a snapshot of filter counters.
func (bl *Layer) Stats() Stats {
	bl.mu.RLock()
	defer bl.mu.RUnlock()
	return Stats{
		Queries:        bl.queries,
		Rejected:       bl.rejected,
		FalsePositives: bl.falsePositives,
	}
}
