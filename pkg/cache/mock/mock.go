// Package mock provides a scriptable cache layer for tests.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ledgercache/pkg/cache"
)

// Layer is a cache.Layer test double. Behavior is injected through the
// function hooks; call counts are tracked race-free. With no hooks set it
// acts as a trivial map-backed cache.
type Layer struct {
	GetFunc    func(ctx context.Context, key string) ([]byte, error)
	SetFunc    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error
	CloseFunc  func() error

	name string

	getCalls    int64
	setCalls    int64
	deleteCalls int64
	closeCalls  int64

	mu   sync.Mutex
	data map[string][]byte
}

// New creates a mock layer with the given name.
func New(name string) *Layer {
	return &Layer{
		name: name,
		data: make(map[string][]byte),
	}
}

func (m *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	atomic.AddInt64(&m.getCalls, 1)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, cache.ErrKeyNotFound
}

func (m *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	atomic.AddInt64(&m.setCalls, 1)
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Layer) Delete(ctx context.Context, key string) error {
	atomic.AddInt64(&m.deleteCalls, 1)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *Layer) Name() string { return m.name }

func (m *Layer) Close() error {
	atomic.AddInt64(&m.closeCalls, 1)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// GetCalls returns the number of Get invocations.
func (m *Layer) GetCalls() int64 { return atomic.LoadInt64(&m.getCalls) }

// SetCalls returns the number of Set invocations.
func (m *Layer) SetCalls() int64 { return atomic.LoadInt64(&m.setCalls) }

// DeleteCalls returns the number of Delete invocations.
func (m *Layer) DeleteCalls() int64 { return atomic.LoadInt64(&m.deleteCalls) }

// CloseCalls returns the number of Close invocations.
func (m *Layer) CloseCalls() int64 { return atomic.LoadInt64(&m.closeCalls) }
