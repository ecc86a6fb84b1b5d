package laws

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/flowlaws/flow"
	"github.com/dshills/flowlaws/flow/local"
	"github.com/dshills/flowlaws/flow/service"
	"github.com/dshills/flowlaws/flow/store"
)

var errBoom = errors.New("boom")

// dropLast loses the last item of every source.
func dropLast(items []int) flow.Source[int] {
	if len(items) > 0 {
		items = items[:len(items)-1]
	}
	return flow.SliceSource[int](items)
}

// doubleMerge applies every batch twice.
type doubleMerge struct {
	*store.MemStore[int, int]
}

func (d doubleMerge) Merge(ctx context.Context, batch []flow.Pair[int, int], plus func(int, int) int) error {
	if err := d.MemStore.Merge(ctx, batch, plus); err != nil {
		return err
	}
	return d.MemStore.Merge(ctx, batch, plus)
}

// sparse never stores zero values.
type sparse struct {
	*store.MemStore[int, int]
}

func (s sparse) Merge(ctx context.Context, batch []flow.Pair[int, int], plus func(int, int) int) error {
	var kept []flow.Pair[int, int]
	for _, kv := range batch {
		if kv.Value != 0 {
			kept = append(kept, kv)
		}
	}
	return s.MemStore.Merge(ctx, kept, plus)
}

// stale answers every lookup with None while its view reports the current
// table.
type stale struct {
	current *service.Static[int, int]
}

func (stale) Lookup(context.Context, int) (flow.Option[int], error) {
	return flow.None[int](), nil
}

func staleServices() ServiceKit[int, int] {
	return ServiceKit[int, int]{
		New: func(_ context.Context, table map[int]int) (flow.Service[int, int], error) {
			return stale{current: service.NewStatic(table)}, nil
		},
		View: func(svc flow.Service[int, int]) (func(int) flow.Option[int], error) {
			return svc.(stale).current.Get, nil
		},
	}
}

type brokenPlatform struct {
	flow.Platform
	planErr error
	runErr  error
}

func (b brokenPlatform) Plan(job *flow.Job) (flow.Plan, error) {
	if b.planErr != nil {
		return nil, b.planErr
	}
	return b.Platform.Plan(job)
}

func (b brokenPlatform) Run(ctx context.Context, plan flow.Plan) error {
	if b.runErr != nil {
		return b.runErr
	}
	return b.Platform.Run(ctx, plan)
}

func storeKit(empty func() flow.Store[int, int]) StoreKit[int, int] {
	kit := MemoryStores[int, int]()
	kit.Empty = func(context.Context) (flow.Store[int, int], error) { return empty(), nil }
	return kit
}

func aggEnv(kit StoreKit[int, int]) AggregateEnv[int, int, int] {
	return AggregateEnv[int, int, int]{Store: kit, Monoid: flow.Numeric[int]()}
}

func trialError(t *testing.T, err error, code string) *TrialError {
	t.Helper()
	if err == nil {
		t.Fatalf("trial passed, want %s", code)
	}
	var te *TrialError
	if !errors.As(err, &te) {
		t.Fatalf("error %T is not a *TrialError: %v", err, err)
	}
	if te.Code != code {
		t.Fatalf("Code = %s, want %s (%v)", te.Code, code, err)
	}
	return te
}

func TestBroken_DroppedItem(t *testing.T) {
	env := aggEnv(MemoryStores[int, int]())
	env.Source = dropLast

	err := RunSingleStep(context.Background(), New(local.New()), env, []int{1, 2, 3}, parity)
	te := trialError(t, err, CodeValueMismatch)
	if te.Key != 1 || te.Want != 4 || te.Got != 1 {
		t.Errorf("evidence = key %v want %v got %v, want key 1 want 4 got 1", te.Key, te.Want, te.Got)
	}
	if !errors.Is(err, ErrMismatch) {
		t.Error("errors.Is(err, ErrMismatch) = false")
	}
	if errors.Is(err, ErrEngine) {
		t.Error("errors.Is(err, ErrEngine) = true")
	}
	if te.Job == "" {
		t.Error("Job is empty")
	}
}

func TestBroken_DuplicatedMerge(t *testing.T) {
	kit := storeKit(func() flow.Store[int, int] { return doubleMerge{store.NewMemStore[int, int]()} })

	err := RunSingleStep(context.Background(), New(local.New()), aggEnv(kit), []int{1, 2, 3}, parity)
	te := trialError(t, err, CodeValueMismatch)
	if te.Key != 0 || te.Want != 2 || te.Got != 4 {
		t.Errorf("evidence = key %v want %v got %v, want key 0 want 2 got 4", te.Key, te.Want, te.Got)
	}
}

func TestBroken_StaleLookup(t *testing.T) {
	table := map[int]int{1: 10}

	t.Run("left-join", func(t *testing.T) {
		env := LeftJoinEnv[int, int, int, int]{
			Service: staleServices(),
			Store:   MemoryStores[int, int](),
			Monoid:  flow.Numeric[int](),
		}
		pre := func(x int) []flow.Pair[int, int] { return []flow.Pair[int, int]{flow.KV(x, x)} }
		// post ignores the joined value, so only the lookup check can fail.
		post := func(p flow.Pair[int, flow.Joined[int, int]]) []flow.Pair[int, int] {
			return []flow.Pair[int, int]{flow.KV(p.Key, p.Value.Value)}
		}

		err := RunLeftJoin(context.Background(), New(local.New()), env, []int{1, 2}, table, pre, post)
		te := trialError(t, err, CodeLookupDrift)
		if te.Key != 1 {
			t.Errorf("Key = %v, want 1", te.Key)
		}
		if !errors.Is(err, ErrMismatch) {
			t.Error("errors.Is(err, ErrMismatch) = false")
		}
	})

	t.Run("lookup", func(t *testing.T) {
		env := LookupEnv[int, int]{
			Service: staleServices(),
			Sink:    MemorySinks[flow.Pair[int, flow.Option[int]]](Ordered),
		}
		err := RunLookup(context.Background(), New(local.New()), env, []int{1}, table)
		trialError(t, err, CodeLookupDrift)
	})
}

func TestBroken_FailingPlatform(t *testing.T) {
	env := aggEnv(MemoryStores[int, int]())

	tests := []struct {
		name     string
		platform brokenPlatform
		code     string
	}{
		{"run", brokenPlatform{Platform: local.New(), runErr: errBoom}, CodeEngineFailure},
		{"plan", brokenPlatform{Platform: local.New(), planErr: errBoom}, CodePlanFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RunSingleStep(context.Background(), New(tt.platform), env, []int{1}, parity)
			trialError(t, err, tt.code)
			if !errors.Is(err, ErrEngine) {
				t.Error("errors.Is(err, ErrEngine) = false")
			}
			if !errors.Is(err, errBoom) {
				t.Error("cause not wrapped")
			}
		})
	}
}

func TestBroken_SinkOrder(t *testing.T) {
	reversed := func(order Order) SinkKit[int] {
		kit := MemorySinks[int](order)
		contents := kit.Contents
		kit.Contents = func(ctx context.Context, s flow.Sink[int]) ([]int, error) {
			items, err := contents(ctx, s)
			for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
				items[i], items[j] = items[j], items[i]
			}
			return items, err
		}
		return kit
	}
	id := func(x int) []int { return []int{x} }
	h := New(local.New())

	err := RunMapOnly(context.Background(), h, MapOnlyEnv[int, int]{Sink: reversed(Ordered)}, []int{1, 2, 3}, id)
	te := trialError(t, err, CodeSinkMismatch)
	if te.Diff == "" {
		t.Error("Diff is empty")
	}

	if err := RunMapOnly(context.Background(), h, MapOnlyEnv[int, int]{Sink: reversed(Unordered)}, []int{1, 2, 3}, id); err != nil {
		t.Errorf("unordered: %v", err)
	}
}

func TestStrictKeys(t *testing.T) {
	seeded := func(v int) StoreKit[int, int] {
		return storeKit(func() flow.Store[int, int] {
			st := store.NewMemStore[int, int]()
			_ = st.Merge(context.Background(), []flow.Pair[int, int]{flow.KV(99, v)}, func(a, b int) int { return a + b })
			return st
		})
	}

	tests := []struct {
		name   string
		strict bool
		extra  int
		code   string
	}{
		{"lenient", false, 5, ""},
		{"strict non-zero", true, 5, CodeExtraKey},
		{"strict zero", true, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(local.New(), WithStrictKeys(tt.strict))
			err := RunSingleStep(context.Background(), h, aggEnv(seeded(tt.extra)), []int{1, 2, 3}, parity)
			if tt.code == "" {
				if err != nil {
					t.Fatalf("RunSingleStep: %v", err)
				}
				return
			}
			te := trialError(t, err, tt.code)
			if te.Key != 99 {
				t.Errorf("Key = %v, want 99", te.Key)
			}
		})
	}
}

func TestAbsentKeyReadsAsZero(t *testing.T) {
	kit := storeKit(func() flow.Store[int, int] { return sparse{store.NewMemStore[int, int]()} })
	cancel := func(x int) []flow.Pair[int, int] { return []flow.Pair[int, int]{flow.KV(0, x)} }

	if err := RunSingleStep(context.Background(), New(local.New()), aggEnv(kit), []int{1, -1}, cancel); err != nil {
		t.Fatalf("RunSingleStep: %v", err)
	}
}

func TestAdapterFailures(t *testing.T) {
	h := New(local.New())

	t.Run("store read", func(t *testing.T) {
		kit := MemoryStores[int, int]()
		kit.Lookup = func(context.Context, flow.Store[int, int], int) (flow.Option[int], error) {
			return flow.None[int](), errBoom
		}
		err := RunSingleStep(context.Background(), h, aggEnv(kit), []int{1}, parity)
		trialError(t, err, CodeStoreRead)
		if !errors.Is(err, ErrAdapter) {
			t.Error("errors.Is(err, ErrAdapter) = false")
		}
	})

	t.Run("create store", func(t *testing.T) {
		kit := MemoryStores[int, int]()
		kit.Empty = func(context.Context) (flow.Store[int, int], error) { return nil, errBoom }
		err := RunSingleStep(context.Background(), h, aggEnv(kit), []int{1}, parity)
		trialError(t, err, CodeSetup)
	})

	t.Run("invalid monoid", func(t *testing.T) {
		env := AggregateEnv[int, int, int]{Store: MemoryStores[int, int](), Monoid: flow.Monoid[int]{}}
		err := RunSingleStep(context.Background(), h, env, []int{1}, parity)
		trialError(t, err, CodeSetup)
	})

	t.Run("empty sink kit", func(t *testing.T) {
		err := RunMapOnly(context.Background(), h, MapOnlyEnv[int, int]{}, []int{1}, func(x int) []int { return nil })
		trialError(t, err, CodeSetup)
	})

	t.Run("foreign service", func(t *testing.T) {
		kit := StaticServices[int, int]()
		kit.New = func(context.Context, map[int]int) (flow.Service[int, int], error) {
			return service.FuncService[int, int](func(context.Context, int) (flow.Option[int], error) {
				return flow.Some(1), nil
			}), nil
		}
		env := LookupEnv[int, int]{Service: kit, Sink: MemorySinks[flow.Pair[int, flow.Option[int]]](Ordered)}
		err := RunLookup(context.Background(), h, env, []int{1}, map[int]int{1: 1})
		te := trialError(t, err, CodeSetup)
		if !errors.Is(err, ErrAdapter) {
			t.Error("errors.Is(err, ErrAdapter) = false")
		}
		if te.Cause == nil {
			t.Error("setup failure lost its cause")
		}
	})

	t.Run("no platform", func(t *testing.T) {
		err := RunSingleStep(context.Background(), New(nil), aggEnv(MemoryStores[int, int]()), []int{1}, parity)
		trialError(t, err, CodeSetup)
	})
}
