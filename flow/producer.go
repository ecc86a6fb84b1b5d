package flow

import "context"

// Tail is anything that can terminate a job: a Producer or a Summer.
type Tail interface {
	Node() *Node
}

// Producer is a typed handle on a node whose output items have type T.
//
// The zero Producer is invalid; NewJob rejects it.
type Producer[T any] struct {
	node *Node
}

// Node returns the underlying operator.
func (p Producer[T]) Node() *Node { return p.node }

// Summer is the terminal handle returned by SumByKey.
type Summer[K comparable, V any] struct {
	node *Node
}

// Node returns the underlying operator.
func (s Summer[K, V]) Node() *Node { return s.node }

// From starts a pipeline at src.
func From[T any](src Source[T]) Producer[T] {
	return Producer[T]{node: &Node{
		kind:  KindSource,
		label: KindSource.String(),
		read: func(ctx context.Context, emit func(any) error) error {
			return src.Read(ctx, func(item T) error { return emit(item) })
		},
	}}
}

// FlatMap applies fn to every item and emits everything it returns.
func FlatMap[T, U any](p Producer[T], fn func(T) []U) Producer[U] {
	return Producer[U]{node: &Node{
		kind:   KindFlatMap,
		label:  KindFlatMap.String(),
		inputs: []*Node{p.node},
		expand: func(item any) ([]any, error) {
			in, ok := item.(T)
			if !ok {
				return nil, typeMismatch[T]("flatMap", item)
			}
			outs := fn(in)
			res := make([]any, len(outs))
			for i, o := range outs {
				res[i] = o
			}
			return res, nil
		},
	}}
}

// Map applies fn to every item.
func Map[T, U any](p Producer[T], fn func(T) U) Producer[U] {
	return FlatMap(p, func(t T) []U { return []U{fn(t)} })
}

// OptionMap applies fn to every item and keeps the results fn reports as present.
func OptionMap[T, U any](p Producer[T], fn func(T) (U, bool)) Producer[U] {
	return FlatMap(p, func(t T) []U {
		if u, ok := fn(t); ok {
			return []U{u}
		}
		return nil
	})
}

// Filter keeps the items for which keep returns true.
func Filter[T any](p Producer[T], keep func(T) bool) Producer[T] {
	return FlatMap(p, func(t T) []T {
		if keep(t) {
			return []T{t}
		}
		return nil
	})
}

// Merge emits every item of every input. No order is implied between inputs.
func Merge[T any](a, b Producer[T], more ...Producer[T]) Producer[T] {
	inputs := []*Node{a.node, b.node}
	for _, p := range more {
		inputs = append(inputs, p.node)
	}
	return Producer[T]{node: &Node{
		kind:   KindMerge,
		label:  KindMerge.String(),
		inputs: inputs,
	}}
}

// Write records every item into sink and passes it on unchanged.
func Write[T any](p Producer[T], sink Sink[T]) Producer[T] {
	return Producer[T]{node: &Node{
		kind:   KindWrite,
		label:  KindWrite.String(),
		inputs: []*Node{p.node},
		write: func(ctx context.Context, items []any) error {
			batch := make([]T, len(items))
			for i, item := range items {
				v, ok := item.(T)
				if !ok {
					return typeMismatch[T]("write", item)
				}
				batch[i] = v
			}
			return sink.Write(ctx, batch)
		},
	}}
}

// LeftJoin looks up every pair's key in svc. Pairs whose key is missing are
// kept with an absent Joined value.
func LeftJoin[K comparable, U, J any](p Producer[Pair[K, U]], svc Service[K, J]) Producer[Pair[K, Joined[U, J]]] {
	return Producer[Pair[K, Joined[U, J]]]{node: &Node{
		kind:   KindJoin,
		label:  "leftJoin",
		inputs: []*Node{p.node},
		join: func(ctx context.Context, item any) (any, error) {
			in, ok := item.(Pair[K, U])
			if !ok {
				return nil, typeMismatch[Pair[K, U]]("leftJoin", item)
			}
			res, err := svc.Lookup(ctx, in.Key)
			if err != nil {
				return nil, err
			}
			return KV(in.Key, Joined[U, J]{Value: in.Value, Joined: res}), nil
		},
	}}
}

// Lookup pairs every item with the result of looking it up in svc.
func Lookup[K comparable, J any](p Producer[K], svc Service[K, J]) Producer[Pair[K, Option[J]]] {
	return Producer[Pair[K, Option[J]]]{node: &Node{
		kind:   KindJoin,
		label:  "lookup",
		inputs: []*Node{p.node},
		join: func(ctx context.Context, item any) (any, error) {
			key, ok := item.(K)
			if !ok {
				return nil, typeMismatch[K]("lookup", item)
			}
			res, err := svc.Lookup(ctx, key)
			if err != nil {
				return nil, err
			}
			return KV(key, res), nil
		},
	}}
}

// SumByKey combines the values of p per key with m and merges the result into
// st.
func SumByKey[K comparable, V any](p Producer[Pair[K, V]], st Store[K, V], m Monoid[V]) Summer[K, V] {
	return Summer[K, V]{node: &Node{
		kind:   KindSum,
		label:  KindSum.String(),
		inputs: []*Node{p.node},
		split: func(item any) (any, any, error) {
			kv, ok := item.(Pair[K, V])
			if !ok {
				return nil, nil, typeMismatch[Pair[K, V]]("sumByKey", item)
			}
			return kv.Key, kv.Value, nil
		},
		plus: func(a, b any) any {
			return m.Plus(a.(V), b.(V))
		},
		merge: func(ctx context.Context, partial map[any]any) error {
			batch := make([]Pair[K, V], 0, len(partial))
			for k, v := range partial {
				key, ok := k.(K)
				if !ok {
					return typeMismatch[K]("sumByKey", k)
				}
				val, ok := v.(V)
				if !ok {
					return typeMismatch[V]("sumByKey", v)
				}
				batch = append(batch, KV(key, val))
			}
			if len(batch) == 0 {
				return nil
			}
			return st.Merge(ctx, batch, m.Plus)
		},
	}}
}
