package laws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/dshills/flowlaws/flow"
	"github.com/dshills/flowlaws/flow/service"
	"github.com/dshills/flowlaws/flow/sink"
	"github.com/dshills/flowlaws/flow/store"
)

// SourceFunc materializes a trial's items as a source the platform can read.
type SourceFunc[T any] func(items []T) flow.Source[T]

// StoreKit builds and reads back per-trial stores.
type StoreKit[K comparable, V any] struct {
	// Empty returns a fresh store with no keys.
	Empty func(ctx context.Context) (flow.Store[K, V], error)

	// Lookup reads key from st. Absent keys return None.
	Lookup func(ctx context.Context, st flow.Store[K, V], key K) (flow.Option[V], error)

	// Keys lists every key in st. Optional: strict key checking is skipped
	// when Keys is nil.
	Keys func(ctx context.Context, st flow.Store[K, V]) ([]K, error)

	// Release frees st after the trial. Optional.
	Release func(ctx context.Context, st flow.Store[K, V]) error
}

// Order selects how a SinkKit compares sink contents.
type Order int

const (
	// Unordered compares sink contents as multisets.
	Unordered Order = iota

	// Ordered requires the exact sequence.
	Ordered
)

func (o Order) String() string {
	if o == Ordered {
		return "ordered"
	}
	return "unordered"
}

// SinkKit builds and reads back per-trial sinks.
type SinkKit[T any] struct {
	// Empty returns a fresh sink holding no items.
	Empty func(ctx context.Context) (flow.Sink[T], error)

	// Contents returns everything written to s.
	Contents func(ctx context.Context, s flow.Sink[T]) ([]T, error)

	// Order is used when Match is nil. Values are compared with go-cmp,
	// unexported fields included.
	Order Order

	// Match reports whether got satisfies want. Optional.
	Match func(got, want []T) bool

	// Release frees s after the trial. Optional.
	Release func(ctx context.Context, s flow.Sink[T]) error
}

// deepOpts lets go-cmp descend into unexported fields of item types.
var deepOpts = cmp.Exporter(func(reflect.Type) bool { return true })

func (k SinkKit[T]) matches(got, want []T) bool {
	if k.Match != nil {
		return k.Match(got, want)
	}
	if k.Order == Ordered {
		return len(got) == len(want) && (len(got) == 0 || cmp.Equal(got, want, deepOpts))
	}
	return sameMultiset(got, want)
}

// sameMultiset pairs every wanted item with a distinct equal item in got.
func sameMultiset[T any](got, want []T) bool {
	if len(got) != len(want) {
		return false
	}
	used := make([]bool, len(got))
outer:
	for _, w := range want {
		for i, g := range got {
			if !used[i] && cmp.Equal(g, w, deepOpts) {
				used[i] = true
				continue outer
			}
		}
		return false
	}
	return true
}

// ServiceKit builds per-trial lookup services from a table.
type ServiceKit[K comparable, J any] struct {
	// New returns a service answering Some(table[k]) for keys in table and
	// None otherwise.
	New func(ctx context.Context, table map[K]J) (flow.Service[K, J], error)

	// View returns the synchronous view of svc used by the reference. It
	// fails when svc is not a service the kit built.
	View func(svc flow.Service[K, J]) (func(K) flow.Option[J], error)

	// Release frees svc after the trial. Optional.
	Release func(ctx context.Context, svc flow.Service[K, J]) error
}

// MemorySources serves items from memory.
func MemorySources[T any]() SourceFunc[T] {
	return func(items []T) flow.Source[T] {
		return flow.SliceSource[T](append([]T(nil), items...))
	}
}

// MemoryStores keeps each trial's aggregates in a store.MemStore.
func MemoryStores[K comparable, V any]() StoreKit[K, V] {
	return StoreKit[K, V]{
		Empty: func(context.Context) (flow.Store[K, V], error) {
			return store.NewMemStore[K, V](), nil
		},
		Lookup: readStore[K, V],
		Keys:   listStore[K, V],
	}
}

// SQLStores keeps each trial's aggregates in its own namespace of b. The
// namespace is dropped when the trial ends.
func SQLStores[K comparable, V any](b *store.Backend) StoreKit[K, V] {
	return StoreKit[K, V]{
		Empty: func(ctx context.Context) (flow.Store[K, V], error) {
			if err := b.Ping(ctx); err != nil {
				return nil, err
			}
			return store.NewSQLStore[K, V](b), nil
		},
		Lookup: readStore[K, V],
		Keys:   listStore[K, V],
		Release: func(ctx context.Context, st flow.Store[K, V]) error {
			s, ok := st.(*store.SQLStore[K, V])
			if !ok {
				return fmt.Errorf("laws: %T is not a SQL store", st)
			}
			return s.Drop(ctx)
		},
	}
}

func readable[K comparable, V any](st flow.Store[K, V]) (store.Store[K, V], error) {
	r, ok := st.(store.Store[K, V])
	if !ok {
		return nil, fmt.Errorf("laws: store %T cannot be read back", st)
	}
	return r, nil
}

func readStore[K comparable, V any](ctx context.Context, st flow.Store[K, V], key K) (flow.Option[V], error) {
	r, err := readable(st)
	if err != nil {
		return flow.None[V](), err
	}
	v, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return flow.None[V](), err
	}
	return flow.Some(v), nil
}

func listStore[K comparable, V any](ctx context.Context, st flow.Store[K, V]) ([]K, error) {
	r, err := readable(st)
	if err != nil {
		return nil, err
	}
	return r.Keys(ctx)
}

// MemorySinks collects each trial's output in a sink.MemSink.
func MemorySinks[T any](order Order) SinkKit[T] {
	return SinkKit[T]{
		Empty: func(context.Context) (flow.Sink[T], error) {
			return sink.NewMemSink[T](), nil
		},
		Contents: func(_ context.Context, s flow.Sink[T]) ([]T, error) {
			m, ok := s.(*sink.MemSink[T])
			if !ok {
				return nil, fmt.Errorf("laws: %T is not a memory sink", s)
			}
			return m.Items(), nil
		},
		Order: order,
	}
}

// JSONLSinks writes each trial's output to a fresh JSON Lines file under dir.
// Item types must survive a JSON round trip.
func JSONLSinks[T any](dir string, order Order) SinkKit[T] {
	prefix := uuid.NewString()
	var n atomic.Int64
	return SinkKit[T]{
		Empty: func(context.Context) (flow.Sink[T], error) {
			path := filepath.Join(dir, fmt.Sprintf("%s-%06d.jsonl", prefix, n.Add(1)))
			return sink.NewJSONLSink[T](path)
		},
		Contents: func(_ context.Context, s flow.Sink[T]) ([]T, error) {
			j, ok := s.(*sink.JSONLSink[T])
			if !ok {
				return nil, fmt.Errorf("laws: %T is not a JSONL sink", s)
			}
			return j.Items()
		},
		Order: order,
		Release: func(_ context.Context, s flow.Sink[T]) error {
			j, ok := s.(*sink.JSONLSink[T])
			if !ok {
				return nil
			}
			if err := j.Close(); err != nil {
				return err
			}
			return os.Remove(j.Path())
		},
	}
}

// StaticServices answers lookups from an in-memory table.
func StaticServices[K comparable, J any]() ServiceKit[K, J] {
	return ServiceKit[K, J]{
		New: func(_ context.Context, table map[K]J) (flow.Service[K, J], error) {
			return service.NewStatic(table), nil
		},
		View: func(svc flow.Service[K, J]) (func(K) flow.Option[J], error) {
			return staticView(svc)
		},
	}
}

// DelayedServices answers lookups from an in-memory table after a random
// delay in [0, maxDelay), so asynchronous enrichment completes out of order.
func DelayedServices[K comparable, J any](maxDelay time.Duration, seed int64) ServiceKit[K, J] {
	var n atomic.Int64
	return ServiceKit[K, J]{
		New: func(_ context.Context, table map[K]J) (flow.Service[K, J], error) {
			return service.NewDelayed[K, J](service.NewStatic(table), maxDelay, seed+n.Add(1)), nil
		},
		View: func(svc flow.Service[K, J]) (func(K) flow.Option[J], error) {
			if d, ok := svc.(*service.Delayed[K, J]); ok {
				return staticView(d.Inner())
			}
			return staticView(svc)
		},
	}
}

func staticView[K comparable, J any](svc flow.Service[K, J]) (func(K) flow.Option[J], error) {
	if s, ok := svc.(*service.Static[K, J]); ok {
		return s.Get, nil
	}
	return nil, fmt.Errorf("laws: service %T has no reference view", svc)
}

// httpService is a lookup client paired with the server answering it.
type httpService[K comparable, J any] struct {
	*service.HTTP[K, J]
	table *service.Static[K, J]
	srv   *http.Server
}

// HTTPServices serves each trial's table from its own loopback HTTP server
// and looks keys up through a service.HTTP client.
func HTTPServices[K comparable, J any]() ServiceKit[K, J] {
	return ServiceKit[K, J]{
		New: func(_ context.Context, table map[K]J) (flow.Service[K, J], error) {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				return nil, fmt.Errorf("laws: listen: %w", err)
			}
			static := service.NewStatic(table)
			srv := &http.Server{
				Handler:           service.Handler[K, J](static),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() { _ = srv.Serve(ln) }()
			return &httpService[K, J]{
				HTTP:  service.NewHTTP[K, J]("http://"+ln.Addr().String(), nil),
				table: static,
				srv:   srv,
			}, nil
		},
		View: func(svc flow.Service[K, J]) (func(K) flow.Option[J], error) {
			if h, ok := svc.(*httpService[K, J]); ok {
				return h.table.Get, nil
			}
			return staticView(svc)
		},
		Release: func(ctx context.Context, svc flow.Service[K, J]) error {
			h, ok := svc.(*httpService[K, J])
			if !ok {
				return nil
			}
			if err := h.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
