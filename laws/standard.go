package laws

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/dshills/flowlaws/flow"
	"github.com/dshills/flowlaws/flow/store"
)

// StandardEnv supplies the int-typed adapters of the standard suite. Zero
// kits fall back to the memory kits with unordered sinks.
type StandardEnv struct {
	// Store holds the aggregates of every aggregating shape.
	Store StoreKit[int, int]

	// Sink receives map-only outputs and diamond source items.
	Sink SinkKit[int]

	// Lookups receives lookup-shape results.
	Lookups SinkKit[flow.Pair[int, flow.Option[int]]]

	// Service answers left-join and lookup-shape queries.
	Service ServiceKit[int, int]
}

// MemoryEnv keeps everything in memory.
func MemoryEnv(order Order) StandardEnv {
	return StandardEnv{
		Store:   MemoryStores[int, int](),
		Sink:    MemorySinks[int](order),
		Lookups: MemorySinks[flow.Pair[int, flow.Option[int]]](order),
		Service: StaticServices[int, int](),
	}
}

// SQLEnv keeps aggregates in b and everything else in memory.
func SQLEnv(b *store.Backend, order Order) StandardEnv {
	env := MemoryEnv(order)
	env.Store = SQLStores[int, int](b)
	return env
}

func (env StandardEnv) withDefaults() StandardEnv {
	if env.Store.Empty == nil {
		env.Store = MemoryStores[int, int]()
	}
	if env.Sink.Empty == nil {
		env.Sink = MemorySinks[int](Unordered)
	}
	if env.Lookups.Empty == nil {
		env.Lookups = MemorySinks[flow.Pair[int, flow.Option[int]]](Unordered)
	}
	if env.Service.New == nil {
		env.Service = StaticServices[int, int]()
	}
	return env
}

// Standard returns all six laws over small integers, in shape order. Keys
// come from a five-element domain so aggregates see collisions and joins see
// both hits and misses.
func Standard(h *Harness, env StandardEnv) []Law {
	env = env.withDefaults()
	m := flow.Numeric[int]()

	item := rapid.IntRange(-20, 20)
	key := rapid.IntRange(0, 4)
	value := rapid.IntRange(-50, 50)
	mid := rapid.IntRange(0, 5)
	joined := rapid.IntRange(0, 100)

	agg := AggregateEnv[int, int, int]{Store: env.Store, Monoid: m}
	return []Law{
		MapOnlyLaw(h, MapOnlyEnv[int, int]{Sink: env.Sink}, item, value),
		SingleStepLaw(h, agg, item, key, value),
		DiamondLaw(h, DiamondEnv[int, int, int]{Sink: env.Sink, Store: env.Store, Monoid: m}, item, key, value),
		LeftJoinLaw(h, LeftJoinEnv[int, int, int, int]{Service: env.Service, Store: env.Store, Monoid: m}, item, key, mid, joined, value),
		TwinStepLaw(h, agg, item, mid, key, value),
		LookupLaw(h, LookupEnv[int, int]{Service: env.Service, Sink: env.Lookups}, key, joined),
	}
}

// CheckAll runs each law as a subtest named after its shape.
func CheckAll(t *testing.T, laws ...Law) {
	t.Helper()
	for _, l := range laws {
		t.Run(string(l.Shape()), l.Check)
	}
}
