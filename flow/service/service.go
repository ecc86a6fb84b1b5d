// Package service provides lookup services for join operators.
package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/dshills/flowlaws/flow"
)

// Static is a read-only map-backed service.
type Static[K comparable, J any] struct {
	table map[K]J
}

// NewStatic creates a service answering from a copy of table.
func NewStatic[K comparable, J any](table map[K]J) *Static[K, J] {
	t := make(map[K]J, len(table))
	for k, v := range table {
		t[k] = v
	}
	return &Static[K, J]{table: t}
}

// Lookup implements flow.Service.
func (s *Static[K, J]) Lookup(_ context.Context, key K) (flow.Option[J], error) {
	return s.Get(key), nil
}

// Get is the synchronous view of the service.
func (s *Static[K, J]) Get(key K) flow.Option[J] {
	if v, ok := s.table[key]; ok {
		return flow.Some(v)
	}
	return flow.None[J]()
}

// Len returns the number of keys with a value.
func (s *Static[K, J]) Len() int { return len(s.table) }

// FuncService adapts a function to flow.Service.
type FuncService[K comparable, J any] func(ctx context.Context, key K) (flow.Option[J], error)

// Lookup implements flow.Service.
func (f FuncService[K, J]) Lookup(ctx context.Context, key K) (flow.Option[J], error) {
	return f(ctx, key)
}

// Lookup is one recorded service call.
type Lookup[K comparable, J any] struct {
	Key    K
	Result flow.Option[J]
}

// Recorder wraps a service and records every successful lookup.
type Recorder[K comparable, J any] struct {
	inner flow.Service[K, J]

	mu      sync.Mutex
	lookups []Lookup[K, J]
}

// NewRecorder wraps inner.
func NewRecorder[K comparable, J any](inner flow.Service[K, J]) *Recorder[K, J] {
	return &Recorder[K, J]{inner: inner}
}

// Lookup implements flow.Service.
func (r *Recorder[K, J]) Lookup(ctx context.Context, key K) (flow.Option[J], error) {
	res, err := r.inner.Lookup(ctx, key)
	if err != nil {
		return res, err
	}

	r.mu.Lock()
	r.lookups = append(r.lookups, Lookup[K, J]{Key: key, Result: res})
	r.mu.Unlock()
	return res, nil
}

// Lookups returns a copy of the recorded calls in completion order.
func (r *Recorder[K, J]) Lookups() []Lookup[K, J] {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Lookup[K, J], len(r.lookups))
	copy(out, r.lookups)
	return out
}

// Delayed wraps a service and sleeps a random duration in [0, Max) before
// every lookup. The delays come from a seeded source so a run can be repeated.
type Delayed[K comparable, J any] struct {
	inner flow.Service[K, J]
	max   time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDelayed wraps inner with latency up to max.
func NewDelayed[K comparable, J any](inner flow.Service[K, J], max time.Duration, seed int64) *Delayed[K, J] {
	return &Delayed[K, J]{
		inner: inner,
		max:   max,
		rng:   rand.New(rand.NewSource(seed)), // #nosec G404 -- latency jitter, not security
	}
}

// Lookup implements flow.Service.
func (d *Delayed[K, J]) Lookup(ctx context.Context, key K) (flow.Option[J], error) {
	if d.max > 0 {
		d.mu.Lock()
		delay := time.Duration(d.rng.Int63n(int64(d.max)))
		d.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return flow.None[J](), ctx.Err()
		case <-timer.C:
		}
	}
	return d.inner.Lookup(ctx, key)
}

// Inner returns the wrapped service.
func (d *Delayed[K, J]) Inner() flow.Service[K, J] { return d.inner }
