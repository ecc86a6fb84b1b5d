package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/flowlaws/flow"
)

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(SQLite, filepath.Join(t.TempDir(), "agg.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSQLStore_SQLiteContract(t *testing.T) {
	b := newTestBackend(t)
	testStoreContract(t, func(*testing.T) Store[string, int] {
		return NewSQLStore[string, int](b)
	})
}

func TestSQLStore_NamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	one := NewSQLStore[string, int](b)
	two := NewSQLStore[string, int](b)
	if one.Namespace() == two.Namespace() {
		t.Fatal("stores should own distinct namespaces")
	}

	if err := one.Merge(ctx, []flow.Pair[string, int]{flow.KV("a", 1)}, sum); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if _, ok, _ := two.Get(ctx, "a"); ok {
		t.Error("second store sees first store's key")
	}

	if err := one.Drop(ctx); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if keys, _ := one.Keys(ctx); len(keys) != 0 {
		t.Errorf("Keys after Drop = %v", keys)
	}
}

func TestSQLStore_StructuredKeys(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	st := NewSQLStore[point, []string](b)

	concat := func(a, b []string) []string { return append(append([]string{}, a...), b...) }
	batch := []flow.Pair[point, []string]{
		flow.KV(point{1, 2}, []string{"a"}),
		flow.KV(point{1, 2}, []string{"b"}),
		flow.KV(point{0, 0}, []string{}),
	}
	if err := st.Merge(ctx, batch, concat); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	got, ok, err := st.Get(ctx, point{1, 2})
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v, %v", got, ok, err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Get = %v, want [a b]", got)
	}

	keys, err := st.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Keys = %v, want 2 keys", keys)
	}
}

func TestSQLStore_Closed(t *testing.T) {
	ctx := context.Background()
	b, err := Open(SQLite, filepath.Join(t.TempDir(), "agg.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	st := NewSQLStore[string, int](b)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := st.Merge(ctx, []flow.Pair[string, int]{flow.KV("a", 1)}, sum); !errors.Is(err, ErrClosed) {
		t.Errorf("Merge after Close = %v, want ErrClosed", err)
	}
	if _, _, err := st.Get(ctx, "a"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}
	if err := b.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping after Close = %v, want ErrClosed", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestOpen_UnknownDialect(t *testing.T) {
	if _, err := Open("oracle", "x"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}

func TestSQLStore_MySQL(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("Skipping MySQL test: Set TEST_MYSQL_DSN environment variable to run")
	}
	b, err := Open(MySQL, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = b.Close() }()

	testStoreContract(t, func(t *testing.T) Store[string, int] {
		st := NewSQLStore[string, int](b)
		t.Cleanup(func() { _ = st.Drop(context.Background()) })
		return st
	})
}

func TestSQLStore_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres test: Set TEST_POSTGRES_DSN environment variable to run")
	}
	b, err := Open(Postgres, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = b.Close() }()

	testStoreContract(t, func(t *testing.T) Store[string, int] {
		st := NewSQLStore[string, int](b)
		t.Cleanup(func() { _ = st.Drop(context.Background()) })
		return st
	})
}

func TestSQLStore_InterfaceCompliance(t *testing.T) {
	var _ Store[string, int] = (*SQLStore[string, int])(nil)
}
