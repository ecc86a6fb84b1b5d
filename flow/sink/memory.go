// Package sink provides sinks that record the items passing a Write tap.
package sink

import (
	"context"
	"sync"
)

// MemSink records items in memory in arrival order.
//
// Concurrent writers interleave at batch granularity: the items of one Write
// call stay contiguous.
type MemSink[T any] struct {
	mu     sync.Mutex
	items  []T
	writes int
}

// NewMemSink creates an empty in-memory sink.
func NewMemSink[T any]() *MemSink[T] {
	return &MemSink[T]{}
}

// Write implements flow.Sink.
func (s *MemSink[T]) Write(ctx context.Context, items []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, items...)
	s.writes++
	return nil
}

// Items returns a copy of the recorded items. Never nil.
func (s *MemSink[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of recorded items.
func (s *MemSink[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Writes returns the number of Write calls.
func (s *MemSink[T]) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
