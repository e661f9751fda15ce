// Package prometheus exports cache metrics via client_golang.
package prometheus

import (
	"strconv"
	"time"

	"ledgercache/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements metrics.Collector for Prometheus. It also implements
// prometheus.Collector so it can be registered with a registry directly.
type Collector struct {
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	cacheSets    *prometheus.CounterVec
	cacheDeletes *prometheus.CounterVec
	cacheErrors  *prometheus.CounterVec

	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	queueDepth    *prometheus.GaugeVec
	droppedWrites *prometheus.CounterVec
	asyncWrites   *prometheus.CounterVec

	getLatency   *prometheus.HistogramVec
	setLatency   *prometheus.HistogramVec
	asyncLatency *prometheus.HistogramVec

	chainHits    *prometheus.CounterVec
	chainMisses  prometheus.Counter
	chainLatency prometheus.Histogram
}

// New creates a collector with every metric under the given namespace.
func New(namespace string) *Collector {
	latencyBuckets := prometheus.ExponentialBuckets(0.0001, 2, 15) // 0.1ms to ~3s

	return &Collector{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache hits per layer",
		}, []string{"layer"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache misses per layer",
		}, []string{"layer"}),
		cacheSets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_sets_total",
			Help:      "Cache set operations per layer",
		}, []string{"layer"}),
		cacheDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_deletes_total",
			Help:      "Cache delete operations per layer",
		}, []string{"layer"}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Cache operation errors per layer and operation",
		}, []string{"layer", "operation"}),
		circuitOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_opens_total",
			Help:      "Circuit breaker opens per layer",
		}, []string{"layer"}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state per layer (0=closed, 1=open, 2=half-open)",
		}, []string{"layer"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "writer_queue_depth",
			Help:      "Async writer queue depth per layer",
		}, []string{"layer"}),
		droppedWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_dropped_writes_total",
			Help:      "Async writes dropped by backpressure per layer",
		}, []string{"layer"}),
		asyncWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_async_writes_total",
			Help:      "Async writes per layer and status",
		}, []string{"layer", "status"}),
		getLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_get_duration_seconds",
			Help:      "Cache get latency per layer",
			Buckets:   latencyBuckets,
		}, []string{"layer"}),
		setLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_set_duration_seconds",
			Help:      "Cache set latency per layer",
			Buckets:   latencyBuckets,
		}, []string{"layer"}),
		asyncLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "writer_async_write_duration_seconds",
			Help:      "Async write latency per layer",
			Buckets:   latencyBuckets,
		}, []string{"layer"}),
		chainHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_hits_total",
			Help:      "Chain-level hits by serving layer index",
		}, []string{"layer_index"}),
		chainMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_misses_total",
			Help:      "Chain-level full misses",
		}),
		chainLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chain_get_duration_seconds",
			Help:      "Chain get latency end to end",
			Buckets:   latencyBuckets,
		}),
	}
}

func (c *Collector) RecordGet(layer string, hit bool, duration time.Duration) {
	if hit {
		c.cacheHits.WithLabelValues(layer).Inc()
	} else {
		c.cacheMisses.WithLabelValues(layer).Inc()
	}
	c.getLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

func (c *Collector) RecordSet(layer string, success bool, duration time.Duration) {
	c.cacheSets.WithLabelValues(layer).Inc()
	if !success {
		c.cacheErrors.WithLabelValues(layer, "set").Inc()
	}
	c.setLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

func (c *Collector) RecordDelete(layer string, success bool, duration time.Duration) {
	c.cacheDeletes.WithLabelValues(layer).Inc()
	if !success {
		c.cacheErrors.WithLabelValues(layer, "delete").Inc()
	}
}

func (c *Collector) RecordCircuitState(layer string, state metrics.CircuitState) {
	c.circuitState.WithLabelValues(layer).Set(float64(state))
	if state == metrics.CircuitOpen {
		c.circuitOpens.WithLabelValues(layer).Inc()
	}
}

func (c *Collector) RecordQueueDepth(layer string, depth int) {
	c.queueDepth.WithLabelValues(layer).Set(float64(depth))
}

func (c *Collector) RecordWriteDropped(layer string) {
	c.droppedWrites.WithLabelValues(layer).Inc()
}

func (c *Collector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	status := "ok"
	if !success {
		status = "error"
	}
	c.asyncWrites.WithLabelValues(layer, status).Inc()
	c.asyncLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

func (c *Collector) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {
	if hit {
		c.chainHits.WithLabelValues(strconv.Itoa(layerIndex)).Inc()
	} else {
		c.chainMisses.Inc()
	}
	c.chainLatency.Observe(totalDuration.Seconds())
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, col := range c.collectors() {
		col.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, col := range c.collectors() {
		col.Collect(ch)
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.cacheHits, c.cacheMisses, c.cacheSets, c.cacheDeletes, c.cacheErrors,
		c.circuitOpens, c.circuitState,
		c.queueDepth, c.droppedWrites, c.asyncWrites,
		c.getLatency, c.setLatency, c.asyncLatency,
		c.chainHits, c.chainMisses, c.chainLatency,
	}
}
