package store

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/dshills/flowlaws/flow"
)

var sum = func(a, b int) int { return a + b }

// testStoreContract runs the behaviour every Store must share.
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store[string, int]) {
	ctx := context.Background()

	t.Run("missing key is not an error", func(t *testing.T) {
		st := newStore(t)
		v, ok, err := st.Get(ctx, "absent")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ok || v != 0 {
			t.Errorf("Get = %d, %v; want 0, false", v, ok)
		}
		keys, err := st.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		if len(keys) != 0 {
			t.Errorf("Keys = %v, want empty", keys)
		}
	})

	t.Run("merge combines with plus", func(t *testing.T) {
		st := newStore(t)
		batch := []flow.Pair[string, int]{flow.KV("a", 1), flow.KV("b", 2), flow.KV("a", 3)}
		if err := st.Merge(ctx, batch, sum); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		if err := st.Merge(ctx, []flow.Pair[string, int]{flow.KV("b", 5)}, sum); err != nil {
			t.Fatalf("Merge: %v", err)
		}

		for key, want := range map[string]int{"a": 4, "b": 7} {
			got, ok, err := st.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get(%q): %v", key, err)
			}
			if !ok || got != want {
				t.Errorf("Get(%q) = %d, %v; want %d", key, got, ok, want)
			}
		}

		keys, err := st.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		sort.Strings(keys)
		if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
			t.Errorf("Keys = %v, want [a b]", keys)
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		st := newStore(t)
		if err := st.Merge(ctx, nil, sum); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		keys, _ := st.Keys(ctx)
		if len(keys) != 0 {
			t.Errorf("Keys = %v, want empty", keys)
		}
	})

	t.Run("concurrent merges", func(t *testing.T) {
		st := newStore(t)
		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for w := 0; w < 10; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				batch := []flow.Pair[string, int]{flow.KV("k", 1), flow.KV("j", 2)}
				if err := st.Merge(ctx, batch, sum); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("Merge: %v", err)
		}

		if got, _, _ := st.Get(ctx, "k"); got != 10 {
			t.Errorf("k = %d, want 10", got)
		}
		if got, _, _ := st.Get(ctx, "j"); got != 20 {
			t.Errorf("j = %d, want 20", got)
		}
	})
}
