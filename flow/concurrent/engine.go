// Package concurrent provides a parallel streaming platform.
//
// The concurrent platform cuts source items into randomly sized batches and
// lets a pool of workers push them through the operator graph in a seeded
// shuffled order. Aggregates are pre-combined per batch and merged into the
// store many times, in whatever grouping and order the schedule produces;
// lookups run inside workers, concurrently with everything else. A correct
// job therefore sees reordering, parallel merge, and asynchronous enrichment,
// which is what the equivalence laws are meant to tolerate.
package concurrent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/flowlaws/flow"
	"github.com/dshills/flowlaws/flow/emit"
)

// Platform is the concurrent engine. A Platform may run many plans, one after
// another or at the same time; every Run draws its own seed from the
// configured one.
type Platform struct {
	cfg  config
	runs atomic.Int64
}

// New creates a concurrent platform.
//
// Returns an error if an option is out of range or the retry policy is
// invalid.
func New(opts ...Option) (*Platform, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.opts.validate(); err != nil {
		return nil, err
	}
	return &Platform{cfg: cfg}, nil
}

// Options returns the effective configuration.
func (p *Platform) Options() Options { return p.cfg.opts }

// Name implements flow.Platform.
func (p *Platform) Name() string { return "concurrent" }

type plan struct {
	job  *flow.Job
	ids  map[*flow.Node]string
	down map[*flow.Node][]*flow.Node
}

func (pl *plan) Job() *flow.Job { return pl.job }

// Plan implements flow.Platform.
func (p *Platform) Plan(job *flow.Job) (flow.Plan, error) {
	if job == nil {
		return nil, &flow.Error{Op: "concurrent", Message: "job is nil", Code: "INVALID_JOB"}
	}

	pl := &plan{
		job:  job,
		ids:  make(map[*flow.Node]string),
		down: make(map[*flow.Node][]*flow.Node),
	}
	for _, n := range job.Nodes() {
		switch n.Kind() {
		case flow.KindSource, flow.KindFlatMap, flow.KindMerge, flow.KindWrite, flow.KindJoin, flow.KindSum:
		default:
			return nil, &flow.Error{Op: "concurrent", Message: "unsupported operator " + n.Kind().String(), Code: "UNSUPPORTED"}
		}
		pl.ids[n] = job.ID(n)
		pl.down[n] = job.Downstream(n)
	}
	return pl, nil
}

// Run implements flow.Platform. It returns after every worker has exited; on
// failure the first error is returned and the remaining work is abandoned.
func (p *Platform) Run(ctx context.Context, pl flow.Plan) error {
	cp, ok := pl.(*plan)
	if !ok {
		return &flow.Error{Op: "concurrent", Message: fmt.Sprintf("cannot run %T", pl), Code: "FOREIGN_PLAN", Cause: flow.ErrForeignPlan}
	}

	runID := p.cfg.runID
	if runID == "" {
		runID = cp.job.Name()
	}
	seed := p.cfg.opts.Seed*1_000_003 + p.runs.Add(1)

	done := make(chan struct{})
	r := &run{
		plan:     cp,
		opts:     p.cfg.opts,
		emitter:  p.cfg.emitter,
		metrics:  p.cfg.metrics,
		runID:    runID,
		seed:     seed,
		rng:      rand.New(rand.NewSource(seed)), // #nosec G404 -- scheduling shuffle, not security
		done:     done,
		frontier: NewFrontier(done),
	}
	return r.execute(ctx)
}

// run is the state of one execution.
type run struct {
	plan    *plan
	opts    Options
	emitter emit.Emitter
	metrics *Metrics
	runID   string
	seed    int64

	mu  sync.Mutex // guards rng
	rng *rand.Rand

	seq      atomic.Uint64
	pending  atomic.Int64
	done     chan struct{}
	doneOnce sync.Once
	frontier *Frontier
}

func (r *run) execute(ctx context.Context) error {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, src := range r.plan.job.Sources() {
		var items []any
		err := src.Read(ctx, func(item any) error {
			items = append(items, item)
			return nil
		})
		if err != nil {
			return fmt.Errorf("%s: %w", r.plan.ids[src], err)
		}
		r.forward(src, items)
	}
	if r.pending.Load() == 0 {
		r.finish()
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < r.opts.Workers; w++ {
		worker := w
		g.Go(func() error { return r.work(gctx, worker) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.emit(emit.Event{
		RunID: r.runID,
		Msg:   "run_complete",
		Meta: map[string]interface{}{
			"platform":    "concurrent",
			"batches":     r.seq.Load(),
			"workers":     r.opts.Workers,
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})
	return nil
}

func (r *run) work(ctx context.Context, worker int) error {
	for {
		item, err := r.frontier.Dequeue(ctx)
		if errors.Is(err, errDrained) {
			return nil
		}
		if err != nil {
			return err
		}
		r.metrics.UpdateQueueDepth(r.frontier.Len())

		id := r.plan.ids[item.Node]
		start := time.Now()
		r.metrics.AddInflight(1)
		err = r.process(ctx, item)
		r.metrics.AddInflight(-1)

		if err != nil {
			r.metrics.RecordBatch(id, len(item.Batch), time.Since(start), "error")
			return fmt.Errorf("%s: %w", id, err)
		}
		r.metrics.RecordBatch(id, len(item.Batch), time.Since(start), "success")

		r.emit(emit.Event{
			RunID: r.runID,
			Node:  id,
			Msg:   "node_batch",
			Meta: map[string]interface{}{
				"worker":      worker,
				"seq":         item.Seq,
				"items":       len(item.Batch),
				"duration_ms": time.Since(start).Milliseconds(),
			},
		})

		if r.pending.Add(-1) == 0 {
			r.finish()
		}
	}
}

// process runs one batch through its node and forwards the output.
func (r *run) process(ctx context.Context, item WorkItem) error {
	n := item.Node
	var out []any

	switch n.Kind() {
	case flow.KindFlatMap:
		for _, in := range item.Batch {
			res, err := n.Expand(in)
			if err != nil {
				return err
			}
			out = append(out, res...)
		}

	case flow.KindMerge:
		out = item.Batch

	case flow.KindWrite:
		if err := r.retry(ctx, n, "write", func() error { return n.Write(ctx, item.Batch) }); err != nil {
			return err
		}
		out = item.Batch

	case flow.KindJoin:
		out = make([]any, 0, len(item.Batch))
		for _, in := range item.Batch {
			var res any
			err := r.retry(ctx, n, "lookup", func() error {
				var err error
				res, err = n.Join(ctx, in)
				return err
			})
			if err != nil {
				return err
			}
			out = append(out, res)
		}

	case flow.KindSum:
		partial := make(map[any]any, len(item.Batch))
		for _, in := range item.Batch {
			k, v, err := n.Split(in)
			if err != nil {
				return err
			}
			if prev, ok := partial[k]; ok {
				v = n.Plus(prev, v)
			}
			partial[k] = v
		}
		return r.retry(ctx, n, "merge", func() error { return n.Merge(ctx, partial) })

	default:
		return &flow.Error{Op: "concurrent", Message: "cannot process " + n.Kind().String(), Code: "UNSUPPORTED"}
	}

	r.forward(n, out)
	return nil
}

// forward cuts items into batches and queues them for every consumer of n.
func (r *run) forward(n *flow.Node, items []any) {
	if len(items) == 0 {
		return
	}
	for _, d := range r.plan.down[n] {
		for _, batch := range r.split(items) {
			seq := r.seq.Add(1)
			r.pending.Add(1)
			r.frontier.Enqueue(WorkItem{
				Seq:      seq,
				OrderKey: computeOrderKey(r.seed, r.plan.ids[d], seq),
				Node:     d,
				Batch:    batch,
			})
		}
	}
	r.metrics.UpdateQueueDepth(r.frontier.Len())
}

// split cuts items into consecutive batches of random size in [1, BatchSize].
func (r *run) split(items []any) [][]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	var batches [][]any
	for i := 0; i < len(items); {
		size := r.rng.Intn(r.opts.BatchSize) + 1
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end:end])
		i = end
	}
	return batches
}

// retry runs fn under the retry policy.
func (r *run) retry(ctx context.Context, n *flow.Node, op string, fn func() error) error {
	rp := r.opts.Retry
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !rp.retryable(err) {
			return err
		}
		if attempt+1 >= rp.MaxAttempts {
			return fmt.Errorf("%w: %s failed %d times: %w", ErrMaxAttemptsExceeded, op, rp.MaxAttempts, err)
		}

		r.mu.Lock()
		delay := computeBackoff(attempt, rp.BaseDelay, rp.MaxDelay, r.rng)
		r.mu.Unlock()

		id := r.plan.ids[n]
		r.metrics.IncrementRetries(id, op)
		r.emit(emit.Event{
			RunID: r.runID,
			Node:  id,
			Msg:   "retry",
			Meta: map[string]interface{}{
				"op":       op,
				"attempt":  attempt + 1,
				"delay_ms": delay.Milliseconds(),
				"error":    err.Error(),
			},
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *run) finish() {
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *run) emit(e emit.Event) {
	if r.emitter != nil {
		r.emitter.Emit(e)
	}
}
