package concurrent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestComputeOrderKey(t *testing.T) {
	a := computeOrderKey(1, "n1:flatMap", 7)
	if b := computeOrderKey(1, "n1:flatMap", 7); a != b {
		t.Errorf("order key is not deterministic: %d != %d", a, b)
	}

	others := []uint64{
		computeOrderKey(2, "n1:flatMap", 7),
		computeOrderKey(1, "n2:flatMap", 7),
		computeOrderKey(1, "n1:flatMap", 8),
	}
	for i, o := range others {
		if o == a {
			t.Errorf("variant %d collides with base key", i)
		}
	}
}

func TestFrontier_DequeuesByOrderKey(t *testing.T) {
	done := make(chan struct{})
	f := NewFrontier(done)
	ctx := context.Background()

	for i, key := range []uint64{50, 10, 30, 20, 40} {
		f.Enqueue(WorkItem{Seq: uint64(i), OrderKey: key})
	}
	if f.Len() != 5 {
		t.Fatalf("Len = %d, want 5", f.Len())
	}

	var got []uint64
	for f.Len() > 0 {
		item, err := f.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		got = append(got, item.OrderKey)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] > got[i] {
			t.Fatalf("dequeue order not sorted: %v", got)
		}
	}
}

func TestFrontier_TiesBreakBySeq(t *testing.T) {
	f := NewFrontier(make(chan struct{}))
	f.Enqueue(WorkItem{Seq: 2, OrderKey: 1})
	f.Enqueue(WorkItem{Seq: 1, OrderKey: 1})

	item, _ := f.Dequeue(context.Background())
	if item.Seq != 1 {
		t.Errorf("expected seq 1 first, got %d", item.Seq)
	}
}

func TestFrontier_Drained(t *testing.T) {
	done := make(chan struct{})
	f := NewFrontier(done)

	errc := make(chan error, 1)
	go func() {
		_, err := f.Dequeue(context.Background())
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	close(done)

	select {
	case err := <-errc:
		if !errors.Is(err, errDrained) {
			t.Errorf("expected errDrained, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after drain")
	}
}

func TestFrontier_Cancelled(t *testing.T) {
	f := NewFrontier(make(chan struct{}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestFrontier_ConcurrentProducersConsumers(t *testing.T) {
	done := make(chan struct{})
	f := NewFrontier(done)
	ctx := context.Background()

	const producers, perProducer = 4, 250
	var consumed sync.WaitGroup
	consumed.Add(producers * perProducer)

	var consumers sync.WaitGroup
	for c := 0; c < 4; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				if _, err := f.Dequeue(ctx); err != nil {
					return
				}
				consumed.Done()
			}
		}()
	}

	for p := 0; p < producers; p++ {
		go func(p int) {
			for i := 0; i < perProducer; i++ {
				seq := uint64(p*perProducer + i) // #nosec G115 -- bounded test counter
				f.Enqueue(WorkItem{Seq: seq, OrderKey: computeOrderKey(1, "n", seq)})
			}
		}(p)
	}

	consumed.Wait()
	close(done)
	consumers.Wait()

	if f.Len() != 0 {
		t.Errorf("Len = %d after draining", f.Len())
	}
}
