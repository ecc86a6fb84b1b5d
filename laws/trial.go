package laws

import (
	"context"

	"github.com/dshills/flowlaws/flow"
	"github.com/dshills/flowlaws/flow/service"
	"github.com/dshills/flowlaws/laws/shapes"
)

// MapOnlyEnv supplies the adapters of a map-only trial.
type MapOnlyEnv[T, U any] struct {
	// Source materializes items. Nil uses MemorySources.
	Source SourceFunc[T]
	Sink   SinkKit[U]
}

// AggregateEnv supplies the adapters of the single-step and twin-step
// trials.
type AggregateEnv[T any, K comparable, V any] struct {
	// Source materializes items. Nil uses MemorySources.
	Source SourceFunc[T]
	Store  StoreKit[K, V]
	Monoid flow.Monoid[V]
}

// DiamondEnv supplies the adapters of a diamond trial. The sink receives the
// source items unchanged.
type DiamondEnv[T any, K comparable, V any] struct {
	// Source materializes items. Nil uses MemorySources.
	Source SourceFunc[T]
	Sink   SinkKit[T]
	Store  StoreKit[K, V]
	Monoid flow.Monoid[V]
}

// LeftJoinEnv supplies the adapters of a left-join trial.
type LeftJoinEnv[T any, K comparable, J, V any] struct {
	// Source materializes items. Nil uses MemorySources.
	Source  SourceFunc[T]
	Service ServiceKit[K, J]
	Store   StoreKit[K, V]
	Monoid  flow.Monoid[V]
}

// LookupEnv supplies the adapters of a lookup trial.
type LookupEnv[K comparable, J any] struct {
	// Source materializes keys. Nil uses MemorySources.
	Source  SourceFunc[K]
	Service ServiceKit[K, J]
	Sink    SinkKit[flow.Pair[K, flow.Option[J]]]
}

func sourceOr[T any](f SourceFunc[T]) SourceFunc[T] {
	if f == nil {
		return MemorySources[T]()
	}
	return f
}

func (tr *trial) validate(err error) error {
	if err != nil {
		return tr.fail(CodeSetup, "invalid aggregate", err)
	}
	return nil
}

// RunMapOnly checks that writing FlatMap(fn) of items to a sink delivers
// exactly the reference flat map.
func RunMapOnly[T, U any](ctx context.Context, h *Harness, env MapOnlyEnv[T, U], items []T, fn func(T) []U) error {
	return h.run(ctx, shapes.MapOnlyShape, func(tr *trial) error {
		s, err := freshSink(ctx, tr, env.Sink)
		if err != nil {
			return err
		}
		src := sourceOr(env.Source)(items)

		job, buildErr := shapes.MapOnlyJob(src, s, fn)
		if err := tr.execute(ctx, job, buildErr); err != nil {
			return err
		}
		return checkSink(ctx, tr, env.Sink, s, shapes.MapOnly(items, fn))
	})
}

// RunSingleStep checks that summing FlatMap(fn) of items by key stores the
// reference aggregate.
func RunSingleStep[T any, K comparable, V any](ctx context.Context, h *Harness, env AggregateEnv[T, K, V], items []T, fn func(T) []flow.Pair[K, V]) error {
	return h.run(ctx, shapes.SingleStepShape, func(tr *trial) error {
		if err := tr.validate(env.Monoid.Validate()); err != nil {
			return err
		}
		st, err := freshStore(ctx, tr, env.Store)
		if err != nil {
			return err
		}
		src := sourceOr(env.Source)(items)

		job, buildErr := shapes.SingleStepJob(src, st, env.Monoid, fn)
		if err := tr.execute(ctx, job, buildErr); err != nil {
			return err
		}
		want := shapes.SingleStep(env.Monoid, items, fn)
		return checkStore(ctx, tr, env.Store, st, env.Monoid, want)
	})
}

// RunDiamond checks the diamond shape: the source is written to a sink and
// split into two branches whose outputs are merged and summed by key.
func RunDiamond[T any, K comparable, V any](ctx context.Context, h *Harness, env DiamondEnv[T, K, V], items []T, fnA, fnB func(T) []flow.Pair[K, V]) error {
	return h.run(ctx, shapes.DiamondShape, func(tr *trial) error {
		if err := tr.validate(env.Monoid.Validate()); err != nil {
			return err
		}
		st, err := freshStore(ctx, tr, env.Store)
		if err != nil {
			return err
		}
		s, err := freshSink(ctx, tr, env.Sink)
		if err != nil {
			return err
		}
		src := sourceOr(env.Source)(items)

		job, buildErr := shapes.DiamondJob(src, s, st, env.Monoid, fnA, fnB)
		if err := tr.execute(ctx, job, buildErr); err != nil {
			return err
		}
		want := shapes.Diamond(env.Monoid, items, fnA, fnB)
		if err := checkStore(ctx, tr, env.Store, st, env.Monoid, want); err != nil {
			return err
		}
		return checkSink(ctx, tr, env.Sink, s, append([]T{}, items...))
	})
}

// RunLeftJoin checks the left-join shape against a service answering from
// table. Besides the aggregate, every lookup the pipeline performed must
// agree with the reference view of the service.
func RunLeftJoin[T any, K comparable, U any, J comparable, V any](
	ctx context.Context,
	h *Harness,
	env LeftJoinEnv[T, K, J, V],
	items []T,
	table map[K]J,
	pre func(T) []flow.Pair[K, U],
	post func(flow.Pair[K, flow.Joined[U, J]]) []flow.Pair[K, V],
) error {
	return h.run(ctx, shapes.LeftJoinShape, func(tr *trial) error {
		if err := tr.validate(env.Monoid.Validate()); err != nil {
			return err
		}
		st, err := freshStore(ctx, tr, env.Store)
		if err != nil {
			return err
		}
		svc, view, err := freshService(ctx, tr, env.Service, table)
		if err != nil {
			return err
		}
		rec := service.NewRecorder(svc)
		src := sourceOr(env.Source)(items)

		job, buildErr := shapes.LeftJoinJob(src, rec, st, env.Monoid, pre, post)
		if err := tr.execute(ctx, job, buildErr); err != nil {
			return err
		}
		want := shapes.LeftJoin(env.Monoid, items, view, pre, post)
		if err := checkStore(ctx, tr, env.Store, st, env.Monoid, want); err != nil {
			return err
		}
		return checkLookups(tr, rec.Lookups(), view)
	})
}

// RunTwinStep checks two chained per-element transformations, a filtering
// map followed by a flat map, ending in an aggregate.
func RunTwinStep[T, U any, K comparable, V any](ctx context.Context, h *Harness, env AggregateEnv[T, K, V], items []T, fnA func(T) (U, bool), fnB func(U) []flow.Pair[K, V]) error {
	return h.run(ctx, shapes.TwinStepShape, func(tr *trial) error {
		if err := tr.validate(env.Monoid.Validate()); err != nil {
			return err
		}
		st, err := freshStore(ctx, tr, env.Store)
		if err != nil {
			return err
		}
		src := sourceOr(env.Source)(items)

		job, buildErr := shapes.TwinStepJob(src, st, env.Monoid, fnA, fnB)
		if err := tr.execute(ctx, job, buildErr); err != nil {
			return err
		}
		want := shapes.TwinStep(env.Monoid, items, fnA, fnB)
		return checkStore(ctx, tr, env.Store, st, env.Monoid, want)
	})
}

// RunLookup checks that looking up every key against a service answering from
// table writes the reference results to the sink.
func RunLookup[K, J comparable](ctx context.Context, h *Harness, env LookupEnv[K, J], keys []K, table map[K]J) error {
	return h.run(ctx, shapes.LookupShape, func(tr *trial) error {
		s, err := freshSink(ctx, tr, env.Sink)
		if err != nil {
			return err
		}
		svc, view, err := freshService(ctx, tr, env.Service, table)
		if err != nil {
			return err
		}
		rec := service.NewRecorder(svc)
		src := sourceOr(env.Source)(keys)

		job, buildErr := shapes.LookupJob(src, rec, s)
		if err := tr.execute(ctx, job, buildErr); err != nil {
			return err
		}
		if err := checkLookups(tr, rec.Lookups(), view); err != nil {
			return err
		}
		return checkSink(ctx, tr, env.Sink, s, shapes.Lookup(keys, view))
	})
}
