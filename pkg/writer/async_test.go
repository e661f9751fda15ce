package writer

import (
	"context"
	"testing"
	"time"

	"ledgercache/pkg/cache/mock"
)

func TestWriteApplied(t *testing.T) {
	layer := mock.New("L1")
	w := New(layer, Config{})
	defer w.Close()

	ctx := context.Background()
	if err := w.Write(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Flush(time.Second); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		if v, err := layer.Get(ctx, "k"); err == nil {
			if string(v) != "v" {
				t.Errorf("expected %q, got %q", "v", v)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("write never reached the layer")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestQueueFullDropsWrite(t *testing.T) {
	blocked := make(chan struct{})
	layer := mock.New("L1")
	layer.SetFunc = func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
		<-blocked
		return nil
	}

	w := New(layer, Config{QueueSize: 1, Workers: 1, MaxWaitTime: 10 * time.Millisecond})
	defer w.Close()
	defer close(blocked)

	ctx := context.Background()

	// First write is picked up by the worker and blocks; the second fills the
	// queue; the third must drop.
	_ = w.Write(ctx, "a", []byte("1"), 0)
	_ = w.Write(ctx, "b", []byte("2"), 0)

	var dropped bool
	for i := 0; i < 5; i++ {
		if err := w.Write(ctx, "c", []byte("3"), 0); err == ErrQueueFull {
			dropped = true
			break
		}
	}
	if !dropped {
		t.Fatal("expected ErrQueueFull on a saturated queue")
	}
	if w.Stats().DroppedWrites == 0 {
		t.Error("dropped writes should be counted")
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	layer := mock.New("L1")
	w := New(layer, Config{QueueSize: 100, Workers: 1})

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		if err := w.Write(ctx, "k", []byte("v"), 0); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if layer.SetCalls() != 20 {
		t.Errorf("expected all 20 writes applied before Close returned, got %d", layer.SetCalls())
	}
}

func TestWriteAfterClose(t *testing.T) {
	w := New(mock.New("L1"), Config{})
	_ = w.Close()

	if err := w.Write(context.Background(), "k", []byte("v"), 0); err != ErrWriterClosed {
		t.Errorf("expected ErrWriterClosed, got %v", err)
	}
}

func TestStats(t *testing.T) {
	layer := mock.New("L1")
	w := New(layer, Config{})
	defer w.Close()

	ctx := context.Background()
	_ = w.Write(ctx, "k", []byte("v"), 0)
	_ = w.Flush(time.Second)

	stats := w.Stats()
	if stats.TotalWrites != 1 {
		t.Errorf("expected 1 total write, got %d", stats.TotalWrites)
	}
	if stats.DroppedWrites != 0 {
		t.Errorf("expected no drops, got %d", stats.DroppedWrites)
	}
}
