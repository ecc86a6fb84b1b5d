package laws

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/dshills/flowlaws/flow"
	"github.com/dshills/flowlaws/laws/gen"
	"github.com/dshills/flowlaws/laws/shapes"
)

const (
	// maxItems bounds the source size of a generated case.
	maxItems = 16
	// maxOut bounds the fan-out of a generated function.
	maxOut = 3
)

// Law is a property over one job shape: for every generated case, the
// pipeline and the reference must agree.
type Law interface {
	// Shape returns the job shape the law covers.
	Shape() shapes.Shape

	// TrialAt draws the case for seed and runs one trial. Failures are
	// returned as a *CaseError wrapping the *TrialError.
	TrialAt(ctx context.Context, seed int) error

	// Check runs the law as a rapid property. On failure rapid shrinks the
	// case and reports the minimal counterexample.
	Check(t *testing.T)
}

type law[C any] struct {
	shape shapes.Shape
	cases *rapid.Generator[C]
	trial func(ctx context.Context, c C) error
}

func (l *law[C]) Shape() shapes.Shape { return l.shape }

func (l *law[C]) TrialAt(ctx context.Context, seed int) error {
	c := l.cases.Example(seed)
	if err := l.trial(ctx, c); err != nil {
		return &CaseError{Seed: seed, Case: fmt.Sprintf("%#v", c), Err: err}
	}
	return nil
}

func (l *law[C]) Check(t *testing.T) {
	t.Helper()
	rapid.Check(t, func(rt *rapid.T) {
		c := l.cases.Draw(rt, "case")
		if err := l.trial(context.Background(), c); err != nil {
			rt.Fatal(err)
		}
	})
}

func pairs[K comparable, V any](key *rapid.Generator[K], value *rapid.Generator[V]) *rapid.Generator[flow.Pair[K, V]] {
	return rapid.Custom(func(t *rapid.T) flow.Pair[K, V] {
		return flow.KV(key.Draw(t, "key"), value.Draw(t, "value"))
	})
}

// MapOnlyCase is one generated map-only trial.
type MapOnlyCase[T comparable, U any] struct {
	Items []T
	Fn    gen.Fn[T, U]
}

// MapOnlyLaw checks sink fidelity of a flat map for items drawn from item and
// outputs drawn from out.
func MapOnlyLaw[T comparable, U any](h *Harness, env MapOnlyEnv[T, U], item *rapid.Generator[T], out *rapid.Generator[U]) Law {
	items := rapid.SliceOfN(item, 0, maxItems)
	fns := gen.FanOut(item, out, maxOut)
	return &law[MapOnlyCase[T, U]]{
		shape: shapes.MapOnlyShape,
		cases: rapid.Custom(func(t *rapid.T) MapOnlyCase[T, U] {
			return MapOnlyCase[T, U]{Items: items.Draw(t, "items"), Fn: fns.Draw(t, "fn")}
		}),
		trial: func(ctx context.Context, c MapOnlyCase[T, U]) error {
			return RunMapOnly(ctx, h, env, c.Items, c.Fn.Apply)
		},
	}
}

// SingleStepCase is one generated single-step trial.
type SingleStepCase[T, K comparable, V any] struct {
	Items []T
	Fn    gen.Fn[T, flow.Pair[K, V]]
}

// SingleStepLaw checks a flat map summed by key.
func SingleStepLaw[T, K comparable, V any](h *Harness, env AggregateEnv[T, K, V], item *rapid.Generator[T], key *rapid.Generator[K], value *rapid.Generator[V]) Law {
	items := rapid.SliceOfN(item, 0, maxItems)
	fns := gen.FanOut(item, pairs(key, value), maxOut)
	return &law[SingleStepCase[T, K, V]]{
		shape: shapes.SingleStepShape,
		cases: rapid.Custom(func(t *rapid.T) SingleStepCase[T, K, V] {
			return SingleStepCase[T, K, V]{Items: items.Draw(t, "items"), Fn: fns.Draw(t, "fn")}
		}),
		trial: func(ctx context.Context, c SingleStepCase[T, K, V]) error {
			return RunSingleStep(ctx, h, env, c.Items, c.Fn.Apply)
		},
	}
}

// DiamondCase is one generated diamond trial.
type DiamondCase[T, K comparable, V any] struct {
	Items []T
	FnA   gen.Fn[T, flow.Pair[K, V]]
	FnB   gen.Fn[T, flow.Pair[K, V]]
}

// DiamondLaw checks two branches of one source merged into a single
// aggregate, with the source also written to a sink.
func DiamondLaw[T, K comparable, V any](h *Harness, env DiamondEnv[T, K, V], item *rapid.Generator[T], key *rapid.Generator[K], value *rapid.Generator[V]) Law {
	items := rapid.SliceOfN(item, 0, maxItems)
	fns := gen.FanOut(item, pairs(key, value), maxOut)
	return &law[DiamondCase[T, K, V]]{
		shape: shapes.DiamondShape,
		cases: rapid.Custom(func(t *rapid.T) DiamondCase[T, K, V] {
			return DiamondCase[T, K, V]{
				Items: items.Draw(t, "items"),
				FnA:   fns.Draw(t, "fnA"),
				FnB:   fns.Draw(t, "fnB"),
			}
		}),
		trial: func(ctx context.Context, c DiamondCase[T, K, V]) error {
			return RunDiamond(ctx, h, env, c.Items, c.FnA.Apply, c.FnB.Apply)
		},
	}
}

// LeftJoinCase is one generated left-join trial. Table is the service
// contents.
type LeftJoinCase[T, K, U, J comparable, V any] struct {
	Items []T
	Table gen.Partial[K, J]
	Pre   gen.Fn[T, flow.Pair[K, U]]
	Post  gen.Fn[flow.Pair[K, flow.Joined[U, J]], flow.Pair[K, V]]
}

// LeftJoinLaw checks enrichment through a service between two flat maps.
// Keys should come from a small domain so that both hits and misses occur.
func LeftJoinLaw[T, K, U, J comparable, V any](
	h *Harness,
	env LeftJoinEnv[T, K, J, V],
	item *rapid.Generator[T],
	key *rapid.Generator[K],
	mid *rapid.Generator[U],
	joined *rapid.Generator[J],
	value *rapid.Generator[V],
) Law {
	items := rapid.SliceOfN(item, 0, maxItems)
	tables := gen.PartialFn(key, joined)
	pres := gen.FanOut(item, pairs(key, mid), maxOut)
	enriched := rapid.Custom(func(t *rapid.T) flow.Pair[K, flow.Joined[U, J]] {
		j := flow.None[J]()
		if rapid.Bool().Draw(t, "hit") {
			j = flow.Some(joined.Draw(t, "joined"))
		}
		return flow.KV(key.Draw(t, "key"), flow.Joined[U, J]{Value: mid.Draw(t, "value"), Joined: j})
	})
	posts := gen.FanOut(enriched, pairs(key, value), maxOut)
	return &law[LeftJoinCase[T, K, U, J, V]]{
		shape: shapes.LeftJoinShape,
		cases: rapid.Custom(func(t *rapid.T) LeftJoinCase[T, K, U, J, V] {
			return LeftJoinCase[T, K, U, J, V]{
				Items: items.Draw(t, "items"),
				Table: tables.Draw(t, "table"),
				Pre:   pres.Draw(t, "pre"),
				Post:  posts.Draw(t, "post"),
			}
		}),
		trial: func(ctx context.Context, c LeftJoinCase[T, K, U, J, V]) error {
			return RunLeftJoin(ctx, h, env, c.Items, c.Table.Table(), c.Pre.Apply, c.Post.Apply)
		},
	}
}

// TwinStepCase is one generated twin-step trial.
type TwinStepCase[T, U, K comparable, V any] struct {
	Items []T
	FnA   gen.Opt[T, U]
	FnB   gen.Fn[U, flow.Pair[K, V]]
}

// TwinStepLaw checks a filter-map chained into a flat map and an aggregate.
func TwinStepLaw[T, U, K comparable, V any](h *Harness, env AggregateEnv[T, K, V], item *rapid.Generator[T], mid *rapid.Generator[U], key *rapid.Generator[K], value *rapid.Generator[V]) Law {
	items := rapid.SliceOfN(item, 0, maxItems)
	fnAs := gen.OptFn(item, mid)
	fnBs := gen.FanOut(mid, pairs(key, value), maxOut)
	return &law[TwinStepCase[T, U, K, V]]{
		shape: shapes.TwinStepShape,
		cases: rapid.Custom(func(t *rapid.T) TwinStepCase[T, U, K, V] {
			return TwinStepCase[T, U, K, V]{
				Items: items.Draw(t, "items"),
				FnA:   fnAs.Draw(t, "fnA"),
				FnB:   fnBs.Draw(t, "fnB"),
			}
		}),
		trial: func(ctx context.Context, c TwinStepCase[T, U, K, V]) error {
			return RunTwinStep(ctx, h, env, c.Items, c.FnA.Apply, c.FnB.Apply)
		},
	}
}

// LookupCase is one generated lookup trial.
type LookupCase[K, J comparable] struct {
	Keys  []K
	Table gen.Partial[K, J]
}

// LookupLaw checks that every key is paired with its lookup result.
func LookupLaw[K, J comparable](h *Harness, env LookupEnv[K, J], key *rapid.Generator[K], joined *rapid.Generator[J]) Law {
	keys := rapid.SliceOfN(key, 0, maxItems)
	tables := gen.PartialFn(key, joined)
	return &law[LookupCase[K, J]]{
		shape: shapes.LookupShape,
		cases: rapid.Custom(func(t *rapid.T) LookupCase[K, J] {
			return LookupCase[K, J]{Keys: keys.Draw(t, "keys"), Table: tables.Draw(t, "table")}
		}),
		trial: func(ctx context.Context, c LookupCase[K, J]) error {
			return RunLookup(ctx, h, env, c.Keys, c.Table.Table())
		},
	}
}
