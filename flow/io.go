package flow

import "context"

// Source is a bounded input in the representation a platform reads from.
//
// Read calls emit once per item and returns after the last one. It must stop
// and return emit's error if emit fails.
type Source[T any] interface {
	Read(ctx context.Context, emit func(T) error) error
}

// Sink records the items that pass a Write tap.
//
// Engines may call Write concurrently and with batches of any size.
type Sink[T any] interface {
	Write(ctx context.Context, items []T) error
}

// Store is the write side of a key/value aggregate store.
//
// Merge combines every pair of batch into the stored value for its key using
// plus. A key without a stored value takes the pair's value as-is. Engines may
// call Merge concurrently with partial aggregates grouped any way they like.
type Store[K comparable, V any] interface {
	Merge(ctx context.Context, batch []Pair[K, V], plus func(V, V) V) error
}

// Service is a keyed lookup used for enrichment.
//
// A service is read-only for the duration of a run: looking the same key up
// twice yields the same result.
type Service[K comparable, J any] interface {
	Lookup(ctx context.Context, key K) (Option[J], error)
}

// SliceSource is a Source over an in-memory slice.
type SliceSource[T any] []T

// Read implements Source.
func (s SliceSource[T]) Read(ctx context.Context, emit func(T) error) error {
	for _, item := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(item); err != nil {
			return err
		}
	}
	return nil
}
