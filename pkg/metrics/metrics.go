// Package metrics defines the collector contract the cache stack reports to.
package metrics

import "time"

// Collector receives cache, circuit breaker and writer events. Implementations
// export them to a backend (Prometheus in production, in-memory in tests).
type Collector interface {
	// Per-layer cache operations
	RecordGet(layer string, hit bool, duration time.Duration)
	RecordSet(layer string, success bool, duration time.Duration)
	RecordDelete(layer string, success bool, duration time.Duration)

	// Circuit breaker
	RecordCircuitState(layer string, state CircuitState)

	// Async writer
	RecordQueueDepth(layer string, depth int)
	RecordWriteDropped(layer string)
	RecordAsyncWrite(layer string, success bool, duration time.Duration)

	// Chain-level: which layer served the hit, or -1 for a full miss
	RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration)
}

// CircuitState is the state of a layer's circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns the label value for the state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards every event. It is the default collector.
type NoOpCollector struct{}

func (NoOpCollector) RecordGet(layer string, hit bool, duration time.Duration)        {}
func (NoOpCollector) RecordSet(layer string, success bool, duration time.Duration)    {}
func (NoOpCollector) RecordDelete(layer string, success bool, duration time.Duration) {}
func (NoOpCollector) RecordCircuitState(layer string, state CircuitState)             {}
func (NoOpCollector) RecordQueueDepth(layer string, depth int)                        {}
func (NoOpCollector) RecordWriteDropped(layer string)                                 {}
func (NoOpCollector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
}
func (NoOpCollector) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {
}
