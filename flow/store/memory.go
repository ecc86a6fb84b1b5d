package store

import (
	"context"
	"sync"

	"github.com/dshills/flowlaws/flow"
)

// MemStore is an in-memory Store.
//
// It is thread-safe and is the default store of the checker's memory kits.
type MemStore[K comparable, V any] struct {
	mu     sync.RWMutex
	data   map[K]V
	merges int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore[K comparable, V any]() *MemStore[K, V] {
	return &MemStore[K, V]{
		data: make(map[K]V),
	}
}

// Merge implements flow.Store.
func (m *MemStore[K, V]) Merge(ctx context.Context, batch []flow.Pair[K, V], plus func(V, V) V) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, kv := range batch {
		if prev, ok := m.data[kv.Key]; ok {
			m.data[kv.Key] = plus(prev, kv.Value)
		} else {
			m.data[kv.Key] = kv.Value
		}
	}
	m.merges++
	return nil
}

// Get implements Store.
func (m *MemStore[K, V]) Get(_ context.Context, key K) (V, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	return v, ok, nil
}

// Keys implements Store.
func (m *MemStore[K, V]) Keys(_ context.Context) ([]K, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]K, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// Snapshot returns a copy of the stored aggregates.
func (m *MemStore[K, V]) Snapshot() map[K]V {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[K]V, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

// Merges returns how many Merge calls have been applied.
func (m *MemStore[K, V]) Merges() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.merges
}
