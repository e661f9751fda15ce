// Package writer provides non-blocking cache writes for chain warm-up.
package writer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ledgercache/pkg/cache"
	"ledgercache/pkg/metrics"
)

// AsyncWriter pushes cache writes through a bounded queue and worker pool so
// warm-up never blocks the read path. When the queue is full past
// MaxWaitTime the write is dropped and counted; warm-up is best effort.
type AsyncWriter struct {
	layer     cache.Layer
	layerName string
	queue     chan writeOp
	config    Config
	metrics   metrics.Collector

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	droppedWrites int64
	totalWrites   int64
	failedWrites  int64

	depthTicker *time.Ticker
	depthStop   chan struct{}
}

type writeOp struct {
	key   string
	value []byte
	ttl   time.Duration
}

// Config configures the async writer.
type Config struct {
	// QueueSize bounds the pending queue (default 1000).
	QueueSize int

	// Workers is the number of concurrent drain goroutines (default 2).
	Workers int

	// MaxWaitTime is how long Write blocks on a full queue before dropping
	// (default 10ms).
	MaxWaitTime time.Duration
}

// New creates an async writer draining into layer. Close it when done.
func New(layer cache.Layer, config Config) *AsyncWriter {
	return NewWithMetrics(layer, config, metrics.NoOpCollector{})
}

// NewWithMetrics creates an async writer reporting to the given collector.
func NewWithMetrics(layer cache.Layer, config Config, collector metrics.Collector) *AsyncWriter {
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxWaitTime == 0 {
		config.MaxWaitTime = 10 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &AsyncWriter{
		layer:       layer,
		layerName:   layer.Name(),
		queue:       make(chan writeOp, config.QueueSize),
		config:      config,
		metrics:     collector,
		ctx:         ctx,
		cancel:      cancel,
		depthTicker: time.NewTicker(5 * time.Second),
		depthStop:   make(chan struct{}),
	}

	for i := 0; i < config.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
	go w.reportDepth()

	return w
}

// Write enqueues a write. It blocks at most MaxWaitTime on a full queue,
// then drops the write and returns ErrQueueFull.
func (w *AsyncWriter) Write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	select {
	case <-w.ctx.Done():
		return ErrWriterClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	op := writeOp{key: key, value: value, ttl: ttl}

	timer := time.NewTimer(w.config.MaxWaitTime)
	defer timer.Stop()

	select {
	case w.queue <- op:
		atomic.AddInt64(&w.totalWrites, 1)
		return nil
	case <-timer.C:
		atomic.AddInt64(&w.droppedWrites, 1)
		w.metrics.RecordWriteDropped(w.layerName)
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return ErrWriterClosed
	}
}

func (w *AsyncWriter) worker() {
	defer w.wg.Done()

	for {
		select {
		case op, ok := <-w.queue:
			if !ok {
				return
			}
			w.apply(op)
		case <-w.ctx.Done():
			// Drain what is left before exiting.
			for {
				select {
				case op, ok := <-w.queue:
					if !ok {
						return
					}
					w.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (w *AsyncWriter) apply(op writeOp) {
	start := time.Now()
	err := w.layer.Set(context.Background(), op.key, op.value, op.ttl)
	w.metrics.RecordAsyncWrite(w.layerName, err == nil, time.Since(start))
	if err != nil {
		atomic.AddInt64(&w.failedWrites, 1)
	}
}

// Flush waits for the queue to drain or the timeout to pass.
func (w *AsyncWriter) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for len(w.queue) > 0 {
		if time.Now().After(deadline) {
			return ErrFlushTimeout
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// Close stops accepting writes and drains the queue before returning.
func (w *AsyncWriter) Close() error {
	close(w.depthStop)
	w.depthTicker.Stop()
	w.cancel()
	w.wg.Wait()
	return nil
}

func (w *AsyncWriter) reportDepth() {
	for {
		select {
		case <-w.depthTicker.C:
			w.metrics.RecordQueueDepth(w.layerName, len(w.queue))
		case <-w.depthStop:
			return
		}
	}
}

// Stats returns a snapshot of writer counters.
func (w *AsyncWriter) Stats() Stats {
	return Stats{
		QueueDepth:    len(w.queue),
		DroppedWrites: atomic.LoadInt64(&w.droppedWrites),
		TotalWrites:   atomic.LoadInt64(&w.totalWrites),
		FailedWrites:  atomic.LoadInt64(&w.failedWrites),
	}
}
