// Package gen draws random pure functions for the equivalence laws.
//
// Every function drawn here is finite and deterministic: it is a lookup table
// drawn by rapid, plus a fallback for inputs outside the table that picks one
// of a few drawn outputs by hashing the input. Applying a function twice to
// the same input always gives the same result, which is what makes comparing
// a pipeline against its reference meaningful.
package gen

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"pgregory.net/rapid"

	"github.com/dshills/flowlaws/flow"
)

// maxEntries bounds the explicit table of a drawn function.
const maxEntries = 8

// maxBuckets bounds the fallback outputs of a drawn function.
const maxBuckets = 4

// bucket picks a fallback slot for a.
func bucket(a any, n int) int {
	h := fnv.New64a()
	fmt.Fprintf(h, "%v", a)
	return int(h.Sum64() % uint64(n)) // #nosec G115 -- n is small and positive
}

// Fn is a deterministic one-to-many function.
type Fn[A comparable, B any] struct {
	table   map[A][]B
	buckets [][]B
}

// NewFn builds a function from an explicit table. Inputs outside the table
// map to one of fallback by hash, or to no output if fallback is empty.
func NewFn[A comparable, B any](table map[A][]B, fallback ...[]B) Fn[A, B] {
	t := make(map[A][]B, len(table))
	for k, v := range table {
		t[k] = append([]B(nil), v...)
	}
	return Fn[A, B]{table: t, buckets: fallback}
}

// Apply returns the outputs for a. The result is a fresh slice.
func (f Fn[A, B]) Apply(a A) []B {
	out, ok := f.table[a]
	if !ok {
		if len(f.buckets) == 0 {
			return nil
		}
		out = f.buckets[bucket(a, len(f.buckets))]
	}
	return append([]B(nil), out...)
}

// String renders the table, then the fallback outputs.
func (f Fn[A, B]) String() string {
	entries := make([]string, 0, len(f.table))
	for k, v := range f.table {
		entries = append(entries, fmt.Sprintf("%v -> %v", k, v))
	}
	sort.Strings(entries)
	return fmt.Sprintf("{%s; _ -> %v}", strings.Join(entries, ", "), f.buckets)
}

// FanOut draws a function whose every input has between 0 and maxOut
// outputs, so zero-output, single-output and multi-output cases all occur.
func FanOut[A comparable, B any](domain *rapid.Generator[A], out *rapid.Generator[B], maxOut int) *rapid.Generator[Fn[A, B]] {
	outs := rapid.SliceOfN(out, 0, maxOut)
	return rapid.Custom(func(t *rapid.T) Fn[A, B] {
		n := rapid.IntRange(0, maxEntries).Draw(t, "entries")
		table := make(map[A][]B, n)
		for i := 0; i < n; i++ {
			table[domain.Draw(t, "in")] = outs.Draw(t, "out")
		}
		buckets := make([][]B, rapid.IntRange(1, maxBuckets).Draw(t, "buckets"))
		for i := range buckets {
			buckets[i] = outs.Draw(t, "fallback")
		}
		return Fn[A, B]{table: table, buckets: buckets}
	})
}

// Partial is a deterministic partial function. It stands for a lookup
// service: a hit yields Some, a miss yields None.
type Partial[A comparable, B any] struct {
	table map[A]B
}

// NewPartial builds a partial function from a copy of table.
func NewPartial[A comparable, B any](table map[A]B) Partial[A, B] {
	t := make(map[A]B, len(table))
	for k, v := range table {
		t[k] = v
	}
	return Partial[A, B]{table: t}
}

// Apply looks a up.
func (p Partial[A, B]) Apply(a A) flow.Option[B] {
	if v, ok := p.table[a]; ok {
		return flow.Some(v)
	}
	return flow.None[B]()
}

// Table returns a copy of the defined entries.
func (p Partial[A, B]) Table() map[A]B {
	t := make(map[A]B, len(p.table))
	for k, v := range p.table {
		t[k] = v
	}
	return t
}

// String renders the defined entries.
func (p Partial[A, B]) String() string {
	entries := make([]string, 0, len(p.table))
	for k, v := range p.table {
		entries = append(entries, fmt.Sprintf("%v -> %v", k, v))
	}
	sort.Strings(entries)
	return "{" + strings.Join(entries, ", ") + "}"
}

// PartialFn draws a partial function defined on up to maxEntries inputs of
// domain. Draw keys from a small domain to get a useful mix of hits and
// misses.
func PartialFn[A comparable, B any](domain *rapid.Generator[A], out *rapid.Generator[B]) *rapid.Generator[Partial[A, B]] {
	return rapid.Custom(func(t *rapid.T) Partial[A, B] {
		n := rapid.IntRange(0, maxEntries).Draw(t, "entries")
		table := make(map[A]B, n)
		for i := 0; i < n; i++ {
			table[domain.Draw(t, "key")] = out.Draw(t, "value")
		}
		return Partial[A, B]{table: table}
	})
}

// Opt is a deterministic filter-map: each input maps to at most one output.
type Opt[A comparable, B any] struct {
	table   map[A]flow.Option[B]
	buckets []flow.Option[B]
}

// NewOpt builds a filter-map from an explicit table. Inputs outside the table
// map to one of fallback by hash, or to no output if fallback is empty.
func NewOpt[A comparable, B any](table map[A]flow.Option[B], fallback ...flow.Option[B]) Opt[A, B] {
	t := make(map[A]flow.Option[B], len(table))
	for k, v := range table {
		t[k] = v
	}
	return Opt[A, B]{table: t, buckets: fallback}
}

// Apply returns the output for a and whether there is one.
func (o Opt[A, B]) Apply(a A) (B, bool) {
	res, ok := o.table[a]
	if !ok && len(o.buckets) > 0 {
		res = o.buckets[bucket(a, len(o.buckets))]
	}
	return res.Get()
}

// String renders the table, then the fallback outputs.
func (o Opt[A, B]) String() string {
	entries := make([]string, 0, len(o.table))
	for k, v := range o.table {
		entries = append(entries, fmt.Sprintf("%v -> %v", k, v))
	}
	sort.Strings(entries)
	return fmt.Sprintf("{%s; _ -> %v}", strings.Join(entries, ", "), o.buckets)
}

// OptFn draws a filter-map. Roughly half of all inputs have an output.
func OptFn[A comparable, B any](domain *rapid.Generator[A], out *rapid.Generator[B]) *rapid.Generator[Opt[A, B]] {
	opt := rapid.Custom(func(t *rapid.T) flow.Option[B] {
		if rapid.Bool().Draw(t, "some") {
			return flow.Some(out.Draw(t, "value"))
		}
		return flow.None[B]()
	})
	return rapid.Custom(func(t *rapid.T) Opt[A, B] {
		n := rapid.IntRange(0, maxEntries).Draw(t, "entries")
		table := make(map[A]flow.Option[B], n)
		for i := 0; i < n; i++ {
			table[domain.Draw(t, "in")] = opt.Draw(t, "out")
		}
		buckets := make([]flow.Option[B], rapid.IntRange(1, maxBuckets).Draw(t, "buckets"))
		for i := range buckets {
			buckets[i] = opt.Draw(t, "fallback")
		}
		return Opt[A, B]{table: table, buckets: buckets}
	})
}

// GoString makes counterexamples printed by rapid readable.
func (f Fn[A, B]) GoString() string { return f.String() }

// GoString makes counterexamples printed by rapid readable.
func (p Partial[A, B]) GoString() string { return p.String() }

// GoString makes counterexamples printed by rapid readable.
func (o Opt[A, B]) GoString() string { return o.String() }
