package laws

import (
	"context"
	"testing"
	"time"

	"github.com/dshills/flowlaws/flow"
	"github.com/dshills/flowlaws/flow/service"
)

func TestSinkKit_Matches(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		got   []int
		want  []int
		match bool
	}{
		{"ordered equal", Ordered, []int{1, 2, 2}, []int{1, 2, 2}, true},
		{"ordered swapped", Ordered, []int{2, 1}, []int{1, 2}, false},
		{"ordered nil and empty", Ordered, nil, []int{}, true},
		{"unordered swapped", Unordered, []int{2, 1, 2}, []int{2, 2, 1}, true},
		{"unordered multiplicity", Unordered, []int{1, 1, 2}, []int{1, 2, 2}, false},
		{"unordered length", Unordered, []int{1}, []int{1, 1}, false},
		{"unordered nil and empty", Unordered, []int{}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kit := MemorySinks[int](tt.order)
			if got := kit.matches(tt.got, tt.want); got != tt.match {
				t.Errorf("matches(%v, %v) = %v, want %v", tt.got, tt.want, got, tt.match)
			}
		})
	}
}

func TestSinkKit_CustomMatch(t *testing.T) {
	kit := MemorySinks[int](Ordered)
	kit.Match = func(got, want []int) bool { return len(got) == len(want) }
	if !kit.matches([]int{1, 2}, []int{3, 4}) {
		t.Error("custom Match ignored")
	}
}

func TestOrder_String(t *testing.T) {
	if Ordered.String() != "ordered" || Unordered.String() != "unordered" {
		t.Errorf("got %s and %s", Ordered, Unordered)
	}
}

func TestMemoryStores_Lookup(t *testing.T) {
	ctx := context.Background()
	kit := MemoryStores[string, int]()
	st, err := kit.Empty(ctx)
	if err != nil {
		t.Fatalf("Empty: %v", err)
	}
	if err := st.Merge(ctx, []flow.Pair[string, int]{flow.KV("a", 3)}, func(a, b int) int { return a + b }); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if got, err := kit.Lookup(ctx, st, "a"); err != nil || got != flow.Some(3) {
		t.Errorf("Lookup(a) = %v, %v", got, err)
	}
	if got, err := kit.Lookup(ctx, st, "b"); err != nil || got.Valid {
		t.Errorf("Lookup(b) = %v, %v", got, err)
	}
	keys, err := kit.Keys(ctx, st)
	if err != nil || len(keys) != 1 || keys[0] != "a" {
		t.Errorf("Keys = %v, %v", keys, err)
	}
}

func TestSQLStores_ReleaseDropsNamespace(t *testing.T) {
	ctx := context.Background()
	kit := SQLStores[int, int](newBackend(t))
	st, err := kit.Empty(ctx)
	if err != nil {
		t.Fatalf("Empty: %v", err)
	}
	if err := st.Merge(ctx, []flow.Pair[int, int]{flow.KV(1, 2)}, func(a, b int) int { return a + b }); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := kit.Release(ctx, st); err != nil {
		t.Fatalf("Release: %v", err)
	}
	keys, err := kit.Keys(ctx, st)
	if err != nil || len(keys) != 0 {
		t.Errorf("Keys after Release = %v, %v", keys, err)
	}
}

func TestMemorySinks_RejectsForeignSink(t *testing.T) {
	kit := MemorySinks[int](Ordered)
	jsonl := JSONLSinks[int](t.TempDir(), Ordered)
	s, err := jsonl.Empty(context.Background())
	if err != nil {
		t.Fatalf("Empty: %v", err)
	}
	defer func() { _ = jsonl.Release(context.Background(), s) }()

	if _, err := kit.Contents(context.Background(), s); err == nil {
		t.Error("Contents accepted a JSONL sink")
	}
}

func TestServiceKits_View(t *testing.T) {
	ctx := context.Background()
	table := map[int]string{1: "one"}

	for name, kit := range map[string]ServiceKit[int, string]{
		"static":  StaticServices[int, string](),
		"delayed": DelayedServices[int, string](time.Millisecond, 1),
		"http":    HTTPServices[int, string](),
	} {
		t.Run(name, func(t *testing.T) {
			svc, err := kit.New(ctx, table)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			view, err := kit.View(svc)
			if err != nil {
				t.Fatalf("View: %v", err)
			}
			if got := view(1); got != flow.Some("one") {
				t.Errorf("view(1) = %v", got)
			}
			if got := view(2); got.Valid {
				t.Errorf("view(2) = %v", got)
			}
			got, err := svc.Lookup(ctx, 1)
			if err != nil || got != view(1) {
				t.Errorf("Lookup(1) = %v, %v", got, err)
			}
			if kit.Release != nil {
				if err := kit.Release(ctx, svc); err != nil {
					t.Errorf("Release: %v", err)
				}
			}
		})
	}

	if _, err := StaticServices[int, string]().View(service.FuncService[int, string](nil)); err == nil {
		t.Error("View of a foreign service succeeded")
	}
}

func TestHTTPServices_ReleaseStopsServer(t *testing.T) {
	ctx := context.Background()
	kit := HTTPServices[int, int]()
	svc, err := kit.New(ctx, map[int]int{1: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := kit.Release(ctx, svc); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := svc.Lookup(ctx, 1); err == nil {
		t.Error("Lookup after Release succeeded")
	}
}
