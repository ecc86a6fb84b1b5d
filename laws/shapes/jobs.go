package shapes

import "github.com/dshills/flowlaws/flow"

// MapOnlyJob builds From(src) -> FlatMap(fn) -> Write(sink).
func MapOnlyJob[T, U any](src flow.Source[T], sink flow.Sink[U], fn func(T) []U) (*flow.Job, error) {
	out := flow.Write(flow.FlatMap(flow.From(src), fn), sink)
	return flow.NewJob(string(MapOnlyShape), out)
}

// SingleStepJob builds From(src) -> FlatMap(fn) -> SumByKey(st).
func SingleStepJob[T any, K comparable, V any](src flow.Source[T], st flow.Store[K, V], m flow.Monoid[V], fn func(T) []flow.Pair[K, V]) (*flow.Job, error) {
	pairs := flow.FlatMap(flow.From(src), fn)
	return flow.NewJob(string(SingleStepShape), flow.SumByKey(pairs, st, m))
}

// DiamondJob builds
//
//	From(src) -> Write(sink) -+-> FlatMap(fnA) -+-> Merge -> SumByKey(st)
//	                          +-> FlatMap(fnB) -+
func DiamondJob[T any, K comparable, V any](src flow.Source[T], sink flow.Sink[T], st flow.Store[K, V], m flow.Monoid[V], fnA, fnB func(T) []flow.Pair[K, V]) (*flow.Job, error) {
	tap := flow.Write(flow.From(src), sink)
	merged := flow.Merge(flow.FlatMap(tap, fnA), flow.FlatMap(tap, fnB))
	return flow.NewJob(string(DiamondShape), flow.SumByKey(merged, st, m))
}

// LeftJoinJob builds From(src) -> FlatMap(pre) -> LeftJoin(svc) ->
// FlatMap(post) -> SumByKey(st).
func LeftJoinJob[T any, K comparable, U, J, V any](
	src flow.Source[T],
	svc flow.Service[K, J],
	st flow.Store[K, V],
	m flow.Monoid[V],
	pre func(T) []flow.Pair[K, U],
	post func(flow.Pair[K, flow.Joined[U, J]]) []flow.Pair[K, V],
) (*flow.Job, error) {
	joined := flow.LeftJoin(flow.FlatMap(flow.From(src), pre), svc)
	pairs := flow.FlatMap(joined, post)
	return flow.NewJob(string(LeftJoinShape), flow.SumByKey(pairs, st, m))
}

// TwinStepJob builds From(src) -> OptionMap(fnA) -> FlatMap(fnB) -> SumByKey(st).
func TwinStepJob[T, U any, K comparable, V any](src flow.Source[T], st flow.Store[K, V], m flow.Monoid[V], fnA func(T) (U, bool), fnB func(U) []flow.Pair[K, V]) (*flow.Job, error) {
	pairs := flow.FlatMap(flow.OptionMap(flow.From(src), fnA), fnB)
	return flow.NewJob(string(TwinStepShape), flow.SumByKey(pairs, st, m))
}

// LookupJob builds From(src) -> Lookup(svc) -> Write(sink).
func LookupJob[K comparable, J any](src flow.Source[K], svc flow.Service[K, J], sink flow.Sink[flow.Pair[K, flow.Option[J]]]) (*flow.Job, error) {
	out := flow.Write(flow.Lookup(flow.From(src), svc), sink)
	return flow.NewJob(string(LookupShape), out)
}
