package cache

import (
	"context"
	"sync"
	"time"
)

// BatchLayer extends Layer with multi-key operations. The service uses
// GetMulti to resolve a batch of account reads against the cache in one
// logical round trip instead of N sequential lookups.
type BatchLayer interface {
	Layer

	// GetMulti retrieves the subset of keys present in the cache.
	// Missing keys are simply absent from the result map.
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)

	// SetMulti stores every key-value pair with the same ttl.
	SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) error

	// DeleteMulti removes every key.
	DeleteMulti(ctx context.Context, keys []string) error
}

// BatchAdapter lifts a plain Layer into a BatchLayer by fanning out the
// single-key operations in parallel.
type BatchAdapter struct {
	layer Layer
}

// NewBatchAdapter wraps layer with parallel multi-key operations.
func NewBatchAdapter(layer Layer) *BatchAdapter {
	return &BatchAdapter{layer: layer}
}

func (ba *BatchAdapter) Name() string { return "batch(" + ba.layer.Name() + ")" }

func (ba *BatchAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	return ba.layer.Get(ctx, key)
}

func (ba *BatchAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return ba.layer.Set(ctx, key, value, ttl)
}

func (ba *BatchAdapter) Delete(ctx context.Context, key string) error {
	return ba.layer.Delete(ctx, key)
}

func (ba *BatchAdapter) Close() error { return ba.layer.Close() }

// GetMulti retrieves keys in parallel. Per-key misses and failures leave the
// key out of the result; only context cancellation fails the whole call.
func (ba *BatchAdapter) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	results := make(map[string][]byte, len(keys))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, key := range keys {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if value, err := ba.layer.Get(ctx, k); err == nil {
				mu.Lock()
				results[k] = value
				mu.Unlock()
			}
		}(key)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// SetMulti stores items in parallel, returning the last per-key error.
func (ba *BatchAdapter) SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var lastErr error

	for key, value := range items {
		wg.Add(1)
		go func(k string, v []byte) {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if err := ba.layer.Set(ctx, k, v, ttl); err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
			}
		}(key, value)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return lastErr
}

// DeleteMulti removes keys in parallel, returning the last per-key error.
func (ba *BatchAdapter) DeleteMulti(ctx context.Context, keys []string) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var lastErr error

	for _, key := range keys {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if err := ba.layer.Delete(ctx, k); err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
			}
		}(key)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return lastErr
}

// AsBatch returns layer as a BatchLayer, wrapping it in a BatchAdapter when
// it does not implement the multi-key operations natively.
func AsBatch(layer Layer) BatchLayer {
	if bl, ok := layer.(BatchLayer); ok {
		return bl
	}
	return NewBatchAdapter(layer)
}
