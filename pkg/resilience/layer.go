// Package resilience wraps cache layers with circuit breaker and timeout
// protection.
package resilience

import (
	"context"
	"time"

	"ledgercache/pkg/cache"
	"ledgercache/pkg/logging"
	"ledgercache/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Layer wraps a cache.Layer with a gobreaker circuit breaker and a per-op
// timeout. A failing Redis should degrade the chain, not take it down.
type Layer struct {
	layer   cache.Layer
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.Collector
	logger  *logging.Logger
}

// New wraps layer with the given protection config.
func New(layer cache.Layer, config Config) *Layer {
	return NewWithMetrics(layer, config, metrics.NoOpCollector{})
}

// NewWithMetrics wraps layer, reporting breaker transitions and op outcomes
// to the given collector.
func NewWithMetrics(layer cache.Layer, config Config, collector metrics.Collector) *Layer {
	logger := logging.L().Named("resilience").Named(layer.Name())

	rl := &Layer{
		layer:   layer,
		timeout: config.Timeout,
		metrics: collector,
		logger:  logger,
	}

	settings := gobreaker.Settings{
		Name:        layer.Name(),
		MaxRequests: config.CircuitBreaker.MaxRequests,
		Interval:    config.CircuitBreaker.Interval,
		Timeout:     config.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if config.CircuitBreaker.ReadyToTrip != nil {
				return config.CircuitBreaker.ReadyToTrip(Counts{
					Requests:             counts.Requests,
					TotalSuccesses:       counts.TotalSuccesses,
					TotalFailures:        counts.TotalFailures,
					ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
					ConsecutiveFailures:  counts.ConsecutiveFailures,
				})
			}
			return counts.ConsecutiveFailures >= 5
		},
		// A miss is a normal outcome, not a layer failure; counting misses
		// would trip the breaker on every cold cache.
		IsSuccessful: func(err error) bool {
			return err == nil || cache.IsNotFound(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("layer", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)

			var state metrics.CircuitState
			switch to {
			case gobreaker.StateClosed:
				state = metrics.CircuitClosed
			case gobreaker.StateHalfOpen:
				state = metrics.CircuitHalfOpen
			case gobreaker.StateOpen:
				state = metrics.CircuitOpen
			}
			rl.metrics.RecordCircuitState(name, state)
		},
	}
	rl.cb = gobreaker.NewCircuitBreaker(settings)

	return rl
}

// Name returns the wrapped layer's name.
func (rl *Layer) Name() string { return rl.layer.Name() }

// Get runs the wrapped Get through the breaker under the op timeout.
func (rl *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	if rl.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rl.timeout)
		defer cancel()
	}

	result, err := rl.cb.Execute(func() (interface{}, error) {
		return rl.layer.Get(ctx, key)
	})

	duration := time.Since(start)
	rl.metrics.RecordGet(rl.layer.Name(), err == nil, duration)

	if err != nil {
		return nil, rl.translate(ctx, "get", key, duration, err)
	}
	return result.([]byte), nil
}

// Set runs the wrapped Set through the breaker under the op timeout.
func (rl *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()

	if rl.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rl.timeout)
		defer cancel()
	}

	_, err := rl.cb.Execute(func() (interface{}, error) {
		return nil, rl.layer.Set(ctx, key, value, ttl)
	})

	duration := time.Since(start)
	rl.metrics.RecordSet(rl.layer.Name(), err == nil, duration)

	if err != nil {
		return rl.translate(ctx, "set", key, duration, err)
	}
	return nil
}

// Delete runs the wrapped Delete through the breaker under the op timeout.
func (rl *Layer) Delete(ctx context.Context, key string) error {
	start := time.Now()

	if rl.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rl.timeout)
		defer cancel()
	}

	_, err := rl.cb.Execute(func() (interface{}, error) {
		return nil, rl.layer.Delete(ctx, key)
	})

	duration := time.Since(start)
	rl.metrics.RecordDelete(rl.layer.Name(), err == nil, duration)

	if err != nil {
		return rl.translate(ctx, "delete", key, duration, err)
	}
	return nil
}

// Close closes the wrapped layer.
func (rl *Layer) Close() error { return rl.layer.Close() }

// translate maps breaker and deadline errors to the cache sentinels and
// logs anything unexpected. Cache misses pass through silently.
func (rl *Layer) translate(ctx context.Context, op, key string, duration time.Duration, err error) error {
	switch {
	case err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests:
		rl.logger.Warn("circuit breaker rejected request",
			zap.String("operation", op),
			zap.String("key", key),
		)
		return cache.ErrCircuitOpen
	case ctx.Err() == context.DeadlineExceeded:
		rl.logger.Warn("operation timeout",
			zap.String("operation", op),
			zap.String("key", key),
			zap.Duration("timeout", rl.timeout),
			zap.Duration("elapsed", duration),
		)
		return cache.ErrTimeout
	case cache.IsNotFound(err):
		return err
	default:
		rl.logger.Error("operation failed",
			zap.String("operation", op),
			zap.String("key", key),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return err
	}
}
