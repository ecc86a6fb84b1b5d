package flow

import "fmt"

// Pair is a keyed record.
type Pair[K, V any] struct {
	Key   K `json:"key"`
	Value V `json:"value"`
}

// KV builds a Pair.
func KV[K, V any](k K, v V) Pair[K, V] {
	return Pair[K, V]{Key: k, Value: v}
}

// String implements fmt.Stringer.
func (p Pair[K, V]) String() string {
	return fmt.Sprintf("(%v, %v)", p.Key, p.Value)
}

// Option is a value that may be absent.
type Option[T any] struct {
	Value T    `json:"value"`
	Valid bool `json:"valid"`
}

// Some wraps a present value.
func Some[T any](v T) Option[T] {
	return Option[T]{Value: v, Valid: true}
}

// None returns the absent value.
func None[T any]() Option[T] {
	return Option[T]{}
}

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) {
	return o.Value, o.Valid
}

// OrElse returns the value if present and def otherwise.
func (o Option[T]) OrElse(def T) T {
	if o.Valid {
		return o.Value
	}
	return def
}

// String implements fmt.Stringer.
func (o Option[T]) String() string {
	if !o.Valid {
		return "None"
	}
	return fmt.Sprintf("Some(%v)", o.Value)
}

// Joined is the value side of a left join: the original value plus the
// result of looking its key up in a service.
type Joined[U, J any] struct {
	Value  U         `json:"value"`
	Joined Option[J] `json:"joined"`
}

// String implements fmt.Stringer.
func (j Joined[U, J]) String() string {
	return fmt.Sprintf("(%v, %v)", j.Value, j.Joined)
}
