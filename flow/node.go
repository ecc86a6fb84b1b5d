package flow

import (
	"context"
	"fmt"
)

// Kind identifies the operator a Node describes.
type Kind int

const (
	// KindSource reads items from a Source.
	KindSource Kind = iota + 1
	// KindFlatMap expands every item into zero or more items.
	KindFlatMap
	// KindMerge concatenates the items of all inputs.
	KindMerge
	// KindWrite records items into a Sink and passes them on unchanged.
	KindWrite
	// KindJoin enriches every item with a Service lookup.
	KindJoin
	// KindSum aggregates keyed items into a Store.
	KindSum
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindFlatMap:
		return "flatMap"
	case KindMerge:
		return "merge"
	case KindWrite:
		return "write"
	case KindJoin:
		return "join"
	case KindSum:
		return "sumByKey"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Node is one operator of a job graph.
//
// Nodes are built by the typed constructors (From, FlatMap, Merge, Write,
// LeftJoin, Lookup, SumByKey) and are immutable afterwards. Engines never see
// the item types: they move values of type any between nodes and call the
// capability matching the node's Kind:
//
//	KindSource   Read
//	KindFlatMap  Expand
//	KindMerge    (none, forward items of every input)
//	KindWrite    Write, then forward
//	KindJoin     Join
//	KindSum      Split, Plus, Merge
type Node struct {
	kind   Kind
	label  string
	inputs []*Node

	read   func(ctx context.Context, emit func(any) error) error
	expand func(item any) ([]any, error)
	write  func(ctx context.Context, items []any) error
	join   func(ctx context.Context, item any) (any, error)
	split  func(item any) (any, any, error)
	plus   func(a, b any) any
	merge  func(ctx context.Context, partial map[any]any) error
}

// Kind returns the operator kind.
func (n *Node) Kind() Kind { return n.kind }

// Label returns the operator's display label.
func (n *Node) Label() string { return n.label }

// Inputs returns the upstream nodes in declaration order. A node feeding a
// merge twice appears twice.
func (n *Node) Inputs() []*Node {
	out := make([]*Node, len(n.inputs))
	copy(out, n.inputs)
	return out
}

// Read streams a source node's items.
func (n *Node) Read(ctx context.Context, emit func(any) error) error {
	if n.read == nil {
		return n.wrongKind("Read")
	}
	return n.read(ctx, emit)
}

// Expand applies a flatMap node's function to one item.
func (n *Node) Expand(item any) ([]any, error) {
	if n.expand == nil {
		return nil, n.wrongKind("Expand")
	}
	return n.expand(item)
}

// Write records items into a write node's sink.
func (n *Node) Write(ctx context.Context, items []any) error {
	if n.write == nil {
		return n.wrongKind("Write")
	}
	return n.write(ctx, items)
}

// Join enriches one item of a join node.
func (n *Node) Join(ctx context.Context, item any) (any, error) {
	if n.join == nil {
		return nil, n.wrongKind("Join")
	}
	return n.join(ctx, item)
}

// Split returns the key and value of an item entering a sum node.
func (n *Node) Split(item any) (key, value any, err error) {
	if n.split == nil {
		return nil, nil, n.wrongKind("Split")
	}
	return n.split(item)
}

// Plus combines two values of a sum node with its Monoid. Engines use it to
// pre-aggregate before calling Merge. It panics on any other kind.
func (n *Node) Plus(a, b any) any {
	if n.plus == nil {
		panic(n.wrongKind("Plus"))
	}
	return n.plus(a, b)
}

// Merge combines a partial aggregate (key to value) into a sum node's store.
func (n *Node) Merge(ctx context.Context, partial map[any]any) error {
	if n.merge == nil {
		return n.wrongKind("Merge")
	}
	return n.merge(ctx, partial)
}

func (n *Node) wrongKind(capability string) error {
	return &Error{
		Op:      n.label,
		Message: capability + " is not available on " + n.kind.String(),
		Code:    "WRONG_KIND",
		Cause:   ErrWrongKind,
	}
}

func typeMismatch[T any](op string, item any) error {
	var want T
	return &Error{
		Op:      op,
		Message: fmt.Sprintf("got %T, want %T", item, want),
		Code:    "TYPE_MISMATCH",
		Cause:   ErrTypeMismatch,
	}
}
