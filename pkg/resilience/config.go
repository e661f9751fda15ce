package resilience

import "time"

// Config configures resilience protection for one cache layer.
type Config struct {
	// Timeout bounds each cache operation.
	Timeout time.Duration

	// CircuitBreaker configures the breaker wrapped around the layer.
	CircuitBreaker BreakerConfig
}

// BreakerConfig mirrors the gobreaker settings this package exposes.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open. Default 1.
	MaxRequests uint32

	// Interval is the closed-state period after which counts reset.
	// Zero means never.
	Interval time.Duration

	// Timeout is the open-state period before probing half-open.
	Timeout time.Duration

	// ReadyToTrip decides when to open; nil trips after 5 consecutive
	// failures.
	ReadyToTrip func(counts Counts) bool
}

// Counts mirrors gobreaker.Counts without leaking the dependency upward.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// DefaultConfig returns defaults tuned for a cache layer: a 5s op timeout
// and a breaker that opens at a 15% failure rate after 20 requests.
func DefaultConfig() Config {
	return Config{
		Timeout: 5 * time.Second,
		CircuitBreaker: BreakerConfig{
			MaxRequests: 5,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts Counts) bool {
				if counts.Requests < 20 {
					return false
				}
				failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRate >= 0.15
			},
		},
	}
}

// WithTimeout returns a copy of the config with the given operation timeout.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}
