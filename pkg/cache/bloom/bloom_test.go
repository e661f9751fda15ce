package bloom

import (
	"context"
	"testing"
	"time"

	"ledgercache/pkg/cache"
	"ledgercache/pkg/cache/mock"
)

func TestRejectsUnseenKey(t *testing.T) {
	inner := mock.New("inner")
	bl := New(inner, 1000, 0.01)
	defer bl.Close()

	ctx := context.Background()

	if _, err := bl.Get(ctx, "never-written"); !cache.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if inner.GetCalls() != 0 {
		t.Errorf("rejected key should not reach the wrapped layer, calls = %d", inner.GetCalls())
	}

	stats := bl.Stats()
	if stats.Queries != 1 || stats.Rejected != 1 {
		t.Errorf("expected 1 query 1 rejection, got %+v", stats)
	}
}

func TestPassesAfterSet(t *testing.T) {
	inner := mock.New("inner")
	bl := New(inner, 1000, 0.01)
	defer bl.Close()

	ctx := context.Background()

	if err := bl.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	value, err := bl.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(value) != "v" {
		t.Errorf("expected %q, got %q", "v", value)
	}
	if inner.GetCalls() != 1 {
		t.Errorf("filter member should reach the wrapped layer, calls = %d", inner.GetCalls())
	}
}

func TestDeleteLeavesFilter(t *testing.T) {
	inner := mock.New("inner")
	bl := New(inner, 1000, 0.01)
	defer bl.Close()

	ctx := context.Background()

	_ = bl.Set(ctx, "k", []byte("v"), time.Minute)
	if err := bl.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// Deleted keys still pass the filter and miss one level down, counted as
	// a false positive.
	if _, err := bl.Get(ctx, "k"); !cache.IsNotFound(err) {
		t.Fatalf("expected miss, got %v", err)
	}
	if bl.Stats().FalsePositives != 1 {
		t.Errorf("expected 1 false positive, got %+v", bl.Stats())
	}
}

func TestName(t *testing.T) {
	bl := New(mock.New("inner"), 0, 0)
	defer bl.Close()

	if bl.Name() != "bloom(inner)" {
		t.Errorf("unexpected name %q", bl.Name())
	}
}
