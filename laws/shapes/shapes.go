// Package shapes defines the canonical job shapes twice: as a sequential
// reference computation over slices, and as a pipeline job built from flow
// operators. Executing the pipeline form on any conforming platform must give
// a result equivalent to the reference form.
package shapes

import "github.com/dshills/flowlaws/flow"

// Shape names a job topology.
type Shape string

const (
	// MapOnlyShape writes the flat-mapped items to a sink.
	MapOnlyShape Shape = "map-only"
	// SingleStepShape flat-maps items to pairs and sums them by key.
	SingleStepShape Shape = "single-step"
	// DiamondShape taps the items into a sink, flat-maps them twice, merges
	// both branches and sums by key.
	DiamondShape Shape = "diamond"
	// LeftJoinShape enriches pairs with a service lookup between two
	// flat-maps, then sums by key.
	LeftJoinShape Shape = "left-join"
	// TwinStepShape filter-maps, then flat-maps to pairs, then sums by key.
	TwinStepShape Shape = "twin-step"
	// LookupShape pairs every key with its lookup result in a sink.
	LookupShape Shape = "lookup"
)

// All lists every shape in a stable order.
var All = []Shape{MapOnlyShape, SingleStepShape, DiamondShape, LeftJoinShape, TwinStepShape, LookupShape}

// Valid reports whether s is a known shape.
func (s Shape) Valid() bool {
	for _, known := range All {
		if s == known {
			return true
		}
	}
	return false
}

// SumByKey groups pairs by key and combines each group with m. A key with no
// pairs does not appear in the result.
func SumByKey[K comparable, V any](m flow.Monoid[V], pairs []flow.Pair[K, V]) map[K]V {
	out := make(map[K]V)
	for _, kv := range pairs {
		if prev, ok := out[kv.Key]; ok {
			out[kv.Key] = m.Plus(prev, kv.Value)
		} else {
			out[kv.Key] = kv.Value
		}
	}
	return out
}

func flatMap[T, U any](items []T, fn func(T) []U) []U {
	var out []U
	for _, item := range items {
		out = append(out, fn(item)...)
	}
	return out
}

// MapOnly is the reference map-only shape: the flat-map of items.
// The result is never nil.
func MapOnly[T, U any](items []T, fn func(T) []U) []U {
	out := flatMap(items, fn)
	if out == nil {
		out = []U{}
	}
	return out
}

// SingleStep is the reference single-step shape.
func SingleStep[T any, K comparable, V any](m flow.Monoid[V], items []T, fn func(T) []flow.Pair[K, V]) map[K]V {
	return SumByKey(m, flatMap(items, fn))
}

// Diamond is the reference diamond shape: both branches applied
// independently and concatenated before summing.
func Diamond[T any, K comparable, V any](m flow.Monoid[V], items []T, fnA, fnB func(T) []flow.Pair[K, V]) map[K]V {
	pairs := append(flatMap(items, fnA), flatMap(items, fnB)...)
	return SumByKey(m, pairs)
}

// LeftJoin is the reference left-join shape. view is the synchronous view of
// the service the pipeline joins against.
func LeftJoin[T any, K comparable, U, J, V any](
	m flow.Monoid[V],
	items []T,
	view func(K) flow.Option[J],
	pre func(T) []flow.Pair[K, U],
	post func(flow.Pair[K, flow.Joined[U, J]]) []flow.Pair[K, V],
) map[K]V {
	var pairs []flow.Pair[K, V]
	for _, kv := range flatMap(items, pre) {
		joined := flow.KV(kv.Key, flow.Joined[U, J]{Value: kv.Value, Joined: view(kv.Key)})
		pairs = append(pairs, post(joined)...)
	}
	return SumByKey(m, pairs)
}

// TwinStep is the reference twin-step shape.
func TwinStep[T, U any, K comparable, V any](m flow.Monoid[V], items []T, fnA func(T) (U, bool), fnB func(U) []flow.Pair[K, V]) map[K]V {
	var mid []U
	for _, item := range items {
		if u, ok := fnA(item); ok {
			mid = append(mid, u)
		}
	}
	return SumByKey(m, flatMap(mid, fnB))
}

// Lookup is the reference lookup shape. The result is never nil.
func Lookup[K comparable, J any](keys []K, view func(K) flow.Option[J]) []flow.Pair[K, flow.Option[J]] {
	out := make([]flow.Pair[K, flow.Option[J]], 0, len(keys))
	for _, k := range keys {
		out = append(out, flow.KV(k, view(k)))
	}
	return out
}
