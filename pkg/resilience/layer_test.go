package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledgercache/pkg/cache"
	"ledgercache/pkg/cache/mock"
)

func TestPassThrough(t *testing.T) {
	inner := mock.New("inner")
	rl := New(inner, DefaultConfig())
	defer rl.Close()

	ctx := context.Background()

	if err := rl.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, err := rl.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(value) != "v" {
		t.Errorf("expected %q, got %q", "v", value)
	}
	if err := rl.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if rl.Name() != "inner" {
		t.Errorf("Name should pass through, got %q", rl.Name())
	}
}

func TestTimeoutTranslated(t *testing.T) {
	inner := mock.New("inner")
	inner.GetFunc = func(ctx context.Context, key string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	rl := New(inner, Config{Timeout: 20 * time.Millisecond})
	defer rl.Close()

	_, err := rl.Get(context.Background(), "k")
	if !cache.IsTimeout(err) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestBreakerOpensOnFailures(t *testing.T) {
	inner := mock.New("inner")
	inner.GetFunc = func(ctx context.Context, key string) ([]byte, error) {
		return nil, errors.New("backend down")
	}

	config := Config{
		Timeout: time.Second,
		CircuitBreaker: BreakerConfig{
			ReadyToTrip: func(counts Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		},
	}
	rl := New(inner, config)
	defer rl.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := rl.Get(ctx, "k"); err == nil {
			t.Fatal("expected failure")
		}
	}

	_, err := rl.Get(ctx, "k")
	if !cache.IsCircuitOpen(err) {
		t.Errorf("expected ErrCircuitOpen after repeated failures, got %v", err)
	}
	if calls := inner.GetCalls(); calls != 3 {
		t.Errorf("open breaker should block the layer, calls = %d", calls)
	}
}

func TestMissesDoNotTripBreaker(t *testing.T) {
	inner := mock.New("inner")

	config := Config{
		Timeout: time.Second,
		CircuitBreaker: BreakerConfig{
			ReadyToTrip: func(counts Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		},
	}
	rl := New(inner, config)
	defer rl.Close()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		if _, err := rl.Get(ctx, "cold"); !cache.IsNotFound(err) {
			t.Fatalf("expected miss, got %v", err)
		}
	}

	// The breaker must still be closed: a cold cache is not an outage.
	_ = rl.Set(ctx, "cold", []byte("v"), time.Minute)
	if _, err := rl.Get(ctx, "cold"); err != nil {
		t.Errorf("breaker should be closed after misses, got %v", err)
	}
}

func TestMissPassesThroughUntranslated(t *testing.T) {
	inner := mock.New("inner")
	rl := New(inner, DefaultConfig())
	defer rl.Close()

	_, err := rl.Get(context.Background(), "absent")
	if !cache.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDefaultConfigTripThreshold(t *testing.T) {
	config := DefaultConfig()

	if config.CircuitBreaker.ReadyToTrip(Counts{Requests: 19, TotalFailures: 19}) {
		t.Error("should not trip below the request floor")
	}
	if !config.CircuitBreaker.ReadyToTrip(Counts{Requests: 20, TotalFailures: 3}) {
		t.Error("should trip at 15% failure rate past the floor")
	}
	if config.CircuitBreaker.ReadyToTrip(Counts{Requests: 100, TotalFailures: 5}) {
		t.Error("should not trip below 15% failure rate")
	}
}
