package concurrent

import (
	"container/heap"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/dshills/flowlaws/flow"
)

// errDrained is returned by Dequeue once the run has no outstanding work.
var errDrained = errors.New("frontier drained")

// WorkItem is one batch of items waiting to be processed by a node.
type WorkItem struct {
	// Seq is the run-wide sequence number of the batch.
	Seq uint64

	// OrderKey decides dequeue priority. It is a seeded hash, so the order in
	// which batches are processed is a deterministic shuffle per seed.
	OrderKey uint64

	// Node is the operator that consumes the batch.
	Node *flow.Node

	// Batch holds the items.
	Batch []any
}

// computeOrderKey hashes the run seed, the consuming node and the batch
// sequence number into a sort key.
//
// The key is the first 8 bytes of SHA-256(seed || nodeID || seq), read
// big-endian.
func computeOrderKey(seed int64, nodeID string, seq uint64) uint64 {
	h := sha256.New()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seed)) // #nosec G115 -- bit pattern only
	h.Write(buf[:])
	h.Write([]byte(nodeID))
	binary.BigEndian.PutUint64(buf[:], seq)
	h.Write(buf[:])

	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

type workHeap []WorkItem

func (h workHeap) Len() int { return len(h) }

func (h workHeap) Less(i, j int) bool {
	if h[i].OrderKey != h[j].OrderKey {
		return h[i].OrderKey < h[j].OrderKey
	}
	return h[i].Seq < h[j].Seq
}

func (h workHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *workHeap) Push(x interface{}) {
	*h = append(*h, x.(WorkItem))
}

func (h *workHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = WorkItem{}
	*h = old[:n-1]
	return item
}

// Frontier is the run's queue of pending batches, ordered by OrderKey.
//
// The frontier is unbounded. Workers both consume and produce batches, so a
// bounded queue could block every worker on Enqueue at once.
//
// Thread-safety: all methods are safe for concurrent use.
type Frontier struct {
	mu    sync.Mutex
	heap  workHeap
	ready chan struct{}
	done  <-chan struct{}
}

// NewFrontier creates an empty frontier. Dequeue returns errDrained once done
// is closed and the heap is empty.
func NewFrontier(done <-chan struct{}) *Frontier {
	f := &Frontier{
		heap:  make(workHeap, 0),
		ready: make(chan struct{}, 1),
		done:  done,
	}
	heap.Init(&f.heap)
	return f
}

// Enqueue adds item. It never blocks.
func (f *Frontier) Enqueue(item WorkItem) {
	f.mu.Lock()
	heap.Push(&f.heap, item)
	f.mu.Unlock()
	f.signal()
}

// Dequeue removes the item with the smallest OrderKey, waiting until one is
// available, the context is cancelled, or the run has drained.
func (f *Frontier) Dequeue(ctx context.Context) (WorkItem, error) {
	for {
		if err := ctx.Err(); err != nil {
			return WorkItem{}, err
		}

		f.mu.Lock()
		if f.heap.Len() > 0 {
			item := heap.Pop(&f.heap).(WorkItem)
			more := f.heap.Len() > 0
			f.mu.Unlock()
			if more {
				f.signal()
			}
			return item, nil
		}
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return WorkItem{}, ctx.Err()
		case <-f.done:
			return WorkItem{}, errDrained
		case <-f.ready:
		}
	}
}

// Len returns the number of queued items.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap.Len()
}

func (f *Frontier) signal() {
	select {
	case f.ready <- struct{}{}:
	default:
	}
}
