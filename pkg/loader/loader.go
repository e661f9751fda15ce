// Package loader coalesces concurrent single-key fetches into batched calls.
//
// It is the server-side answer to the N+1 problem: N callers asking for one
// record each within the same wait window produce one batched backend query
// instead of N. The loader does not memoize across batches; cross-request
// reuse belongs to the cache chain, not here.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrMissingKey is wrapped into the per-key error when the batch function's
// result lacks that key.
var ErrMissingKey = errors.New("loader: key not found in batch result")

// ErrLoaderClosed is returned for loads after the loader's context is done.
var ErrLoaderClosed = errors.New("loader: closed")

// BatchFunc resolves a set of keys in one backend call. Keys absent from the
// result map are reported to their callers as ErrMissingKey; a non-nil error
// fails every caller in the batch.
type BatchFunc func(ctx context.Context, keys []string) (map[string]interface{}, error)

// Options tunes batching behavior.
type Options struct {
	// MaxBatch is the flush threshold (default 100).
	MaxBatch int

	// Wait is the collection window: a batch dispatches when it fills or
	// when the window elapses, whichever comes first (default 2ms).
	Wait time.Duration
}

// Loader coalesces Load calls into BatchFunc invocations.
type Loader struct {
	batch   BatchFunc
	opts    Options
	pending chan *request
	ctx     context.Context

	// mu and closed pair with the final drain in run: a request either
	// lands in pending before the flag flips, or is refused.
	mu     sync.RWMutex
	closed bool
}

type request struct {
	key  string
	done chan struct{}
	out  interface{}
	err  error
}

// New starts a loader. It stops accepting loads when ctx is done; in-flight
// batches still complete.
func New(ctx context.Context, batch BatchFunc, opts Options) *Loader {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 100
	}
	if opts.Wait <= 0 {
		opts.Wait = 2 * time.Millisecond
	}

	l := &Loader{
		batch:   batch,
		opts:    opts,
		pending: make(chan *request, opts.MaxBatch),
		ctx:     ctx,
	}
	go l.run()
	return l
}

// Load resolves one key, blocking until the batch it joined completes.
func (l *Loader) Load(ctx context.Context, key string) (interface{}, error) {
	select {
	case <-l.ctx.Done():
		return nil, ErrLoaderClosed
	default:
	}

	r := &request{key: key, done: make(chan struct{})}

	// Enqueue under the read lock so the shutdown drain in run cannot miss
	// a request that already committed to the channel. A sender blocked on
	// a full channel is released by the l.ctx case.
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return nil, ErrLoaderClosed
	}
	select {
	case l.pending <- r:
		l.mu.RUnlock()
	case <-l.ctx.Done():
		l.mu.RUnlock()
		return nil, ErrLoaderClosed
	case <-ctx.Done():
		l.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case <-r.done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run owns the collection loop: gather requests until the batch fills or the
// window closes, then dispatch without blocking the next window.
func (l *Loader) run() {
	timer := time.NewTimer(l.opts.Wait)
	defer timer.Stop()

	var buf []*request

	flush := func() {
		if len(buf) > 0 {
			batch := buf
			buf = nil
			go l.dispatch(batch)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(l.opts.Wait)
	}

	for {
		select {
		case <-l.ctx.Done():
			if len(buf) > 0 {
				go l.dispatch(buf)
				buf = nil
			}
			// Two drains around the closed flag: the first clears the
			// backlog, the flag stops new senders, the second catches
			// senders that had already committed to the channel.
			l.drainPending()
			l.mu.Lock()
			l.closed = true
			l.mu.Unlock()
			l.drainPending()
			return
		case <-timer.C:
			flush()
		case r := <-l.pending:
			buf = append(buf, r)
			if len(buf) >= l.opts.MaxBatch {
				flush()
			}
		}
	}
}

func (l *Loader) drainPending() {
	for {
		select {
		case r := <-l.pending:
			r.err = ErrLoaderClosed
			close(r.done)
		default:
			return
		}
	}
}

// dispatch runs the batch function and fans results back out, deduplicating
// keys requested more than once in the same window.
func (l *Loader) dispatch(batch []*request) {
	byKey := make(map[string][]*request, len(batch))
	keys := make([]string, 0, len(batch))
	for _, r := range batch {
		if _, seen := byKey[r.key]; !seen {
			keys = append(keys, r.key)
		}
		byKey[r.key] = append(byKey[r.key], r)
	}

	results, err := l.batch(l.ctx, keys)

	for key, reqs := range byKey {
		for _, r := range reqs {
			switch {
			case err != nil:
				r.err = err
			default:
				if v, ok := results[key]; ok {
					r.out = v
				} else {
					r.err = fmt.Errorf("%w: %s", ErrMissingKey, key)
				}
			}
			close(r.done)
		}
	}
}
