// Package store provides aggregate stores that platforms merge into and the
// checker reads back after a run.
package store

import (
	"context"
	"errors"

	"github.com/dshills/flowlaws/flow"
)

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("store is closed")

// Store is an aggregate store with a read side.
//
// Implementations must be safe for concurrent Merge calls. After the platform's
// Run returns, Get and Keys must observe every merged pair.
type Store[K comparable, V any] interface {
	flow.Store[K, V]

	// Get returns the stored value for key and whether one exists.
	// A missing key is not an error.
	Get(ctx context.Context, key K) (V, bool, error)

	// Keys returns every key with a stored value.
	Keys(ctx context.Context) ([]K, error)
}
