// Package laws checks that a dataflow platform computes what a plain
// sequential reference computes.
//
// A Harness runs trials. Each trial builds one canonical job shape over a
// fresh store, sink, and service, runs it on the platform under test, and
// compares the results against the reference form of the same shape. Stores
// are compared key by key under the aggregate's equivalence; sinks under the
// kit's ordering rule; join shapes additionally require that every lookup the
// pipeline performed saw the same result as the reference.
//
// Laws wrap trials in rapid properties: Check runs them under go test with
// shrinking, and Run drives them from seeds outside of testing.
package laws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/flowlaws/flow"
	"github.com/dshills/flowlaws/flow/emit"
	"github.com/dshills/flowlaws/flow/service"
	"github.com/dshills/flowlaws/laws/shapes"
)

// Harness binds a platform to the checker. It is safe for concurrent use.
type Harness struct {
	platform flow.Platform
	emitter  emit.Emitter
	metrics  *Metrics
	runID    string
	strict   bool

	trials atomic.Int64
}

// Option configures a Harness.
type Option func(*Harness)

// WithEmitter sends trial_start, trial_pass and trial_fail events to e.
func WithEmitter(e emit.Emitter) Option {
	return func(h *Harness) { h.emitter = e }
}

// WithMetrics records trial outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(h *Harness) { h.metrics = m }
}

// WithRunID sets the RunID of emitted events. Defaults to the platform name.
func WithRunID(id string) Option {
	return func(h *Harness) { h.runID = id }
}

// WithStrictKeys also requires every store key the reference did not produce
// to hold a value equivalent to the aggregate's zero. Stores whose kit cannot
// list keys are not checked.
func WithStrictKeys(strict bool) Option {
	return func(h *Harness) { h.strict = strict }
}

// New creates a harness for p.
func New(p flow.Platform, opts ...Option) *Harness {
	h := &Harness{platform: p}
	for _, opt := range opts {
		opt(h)
	}
	if h.runID == "" && p != nil {
		h.runID = p.Name()
	}
	return h
}

// Platform returns the platform under test.
func (h *Harness) Platform() flow.Platform { return h.platform }

// RunID returns the run ID of emitted events.
func (h *Harness) RunID() string { return h.runID }

// Trials returns how many trials have started.
func (h *Harness) Trials() int { return int(h.trials.Load()) }

func (h *Harness) platformName() string {
	if h.platform == nil {
		return ""
	}
	return h.platform.Name()
}

func (h *Harness) emit(n int, shape shapes.Shape, msg string, meta map[string]interface{}) {
	if h.emitter == nil {
		return
	}
	h.emitter.Emit(emit.Event{
		RunID: h.runID,
		Trial: n,
		Node:  string(shape),
		Msg:   msg,
		Meta:  meta,
	})
}

// trial is the state of one running trial.
type trial struct {
	h     *Harness
	shape shapes.Shape
	job   string
	keys  int

	cleanup []func(context.Context) error
}

func (tr *trial) fail(code, msg string, cause error) *TrialError {
	return &TrialError{Shape: tr.shape, Code: code, Message: msg, Job: tr.job, Cause: cause}
}

func (tr *trial) onDone(fn func(context.Context) error) {
	tr.cleanup = append(tr.cleanup, fn)
}

// run executes body as one trial and records its outcome.
func (h *Harness) run(ctx context.Context, shape shapes.Shape, body func(tr *trial) error) error {
	n := int(h.trials.Add(1))
	tr := &trial{h: h, shape: shape}
	start := time.Now()
	h.emit(n, shape, "trial_start", map[string]interface{}{"platform": h.platformName()})

	var err error
	if h.platform == nil {
		err = tr.fail(CodeSetup, "harness has no platform", nil)
	} else {
		err = body(tr)
	}

	release := context.WithoutCancel(ctx)
	for i := len(tr.cleanup) - 1; i >= 0; i-- {
		if cerr := tr.cleanup[i](release); cerr != nil && err == nil {
			err = tr.fail(CodeSetup, "release trial resources", cerr)
		}
	}

	elapsed := time.Since(start)
	ms := float64(elapsed.Microseconds()) / 1000
	if err != nil {
		code := Code(err)
		h.metrics.RecordTrial(shape, h.platformName(), OutcomeFail, elapsed)
		if errors.Is(err, ErrMismatch) {
			h.metrics.IncrementMismatch(shape, code)
		}
		h.emit(n, shape, "trial_fail", map[string]interface{}{
			"duration_ms": ms,
			"code":        code,
			"error":       err.Error(),
		})
		return err
	}
	h.metrics.RecordTrial(shape, h.platformName(), OutcomePass, elapsed)
	h.metrics.AddKeysChecked(shape, tr.keys)
	h.emit(n, shape, "trial_pass", map[string]interface{}{
		"duration_ms": ms,
		"keys":        tr.keys,
	})
	return nil
}

// execute plans and runs job on the platform. buildErr is the error the job
// constructor returned, if any.
func (tr *trial) execute(ctx context.Context, job *flow.Job, buildErr error) error {
	if buildErr != nil {
		return tr.fail(CodeSetup, "build job", buildErr)
	}
	tr.job = job.String()
	plan, err := tr.h.platform.Plan(job)
	if err != nil {
		return tr.fail(CodePlanFailure, "compile plan", err)
	}
	if err := tr.h.platform.Run(ctx, plan); err != nil {
		return tr.fail(CodeEngineFailure, "run plan", err)
	}
	return nil
}

func freshStore[K comparable, V any](ctx context.Context, tr *trial, kit StoreKit[K, V]) (flow.Store[K, V], error) {
	if kit.Empty == nil || kit.Lookup == nil {
		return nil, tr.fail(CodeSetup, "store kit needs Empty and Lookup", nil)
	}
	st, err := kit.Empty(ctx)
	if err != nil {
		return nil, tr.fail(CodeSetup, "create store", err)
	}
	if kit.Release != nil {
		tr.onDone(func(ctx context.Context) error { return kit.Release(ctx, st) })
	}
	return st, nil
}

func freshSink[T any](ctx context.Context, tr *trial, kit SinkKit[T]) (flow.Sink[T], error) {
	if kit.Empty == nil || kit.Contents == nil {
		return nil, tr.fail(CodeSetup, "sink kit needs Empty and Contents", nil)
	}
	s, err := kit.Empty(ctx)
	if err != nil {
		return nil, tr.fail(CodeSetup, "create sink", err)
	}
	if kit.Release != nil {
		tr.onDone(func(ctx context.Context) error { return kit.Release(ctx, s) })
	}
	return s, nil
}

func freshService[K comparable, J any](ctx context.Context, tr *trial, kit ServiceKit[K, J], table map[K]J) (flow.Service[K, J], func(K) flow.Option[J], error) {
	if kit.New == nil || kit.View == nil {
		return nil, nil, tr.fail(CodeSetup, "service kit needs New and View", nil)
	}
	svc, err := kit.New(ctx, table)
	if err != nil {
		return nil, nil, tr.fail(CodeSetup, "create service", err)
	}
	if kit.Release != nil {
		tr.onDone(func(ctx context.Context) error { return kit.Release(ctx, svc) })
	}
	view, err := kit.View(svc)
	if err != nil {
		return nil, nil, tr.fail(CodeSetup, "service view", err)
	}
	return svc, view, nil
}

// sortedKeys orders keys by their printed form so the first reported
// mismatch does not depend on map iteration.
func sortedKeys[K comparable, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
	})
	return keys
}

// checkStore compares st against the reference aggregate want. Keys the
// store does not hold read as the aggregate's zero.
func checkStore[K comparable, V any](ctx context.Context, tr *trial, kit StoreKit[K, V], st flow.Store[K, V], m flow.Monoid[V], want map[K]V) error {
	for _, key := range sortedKeys(want) {
		got, err := kit.Lookup(ctx, st, key)
		if err != nil {
			return tr.fail(CodeStoreRead, fmt.Sprintf("read key %v", key), err)
		}
		tr.keys++
		value := got.OrElse(m.Zero)
		if !m.Equal(want[key], value) {
			e := tr.fail(CodeValueMismatch, "stored aggregate differs from reference", nil)
			e.Key, e.Want, e.Got = key, want[key], value
			return e
		}
	}

	if !tr.h.strict || kit.Keys == nil {
		return nil
	}
	keys, err := kit.Keys(ctx, st)
	if err != nil {
		return tr.fail(CodeStoreRead, "list keys", err)
	}
	for _, key := range keys {
		if _, ok := want[key]; ok {
			continue
		}
		got, err := kit.Lookup(ctx, st, key)
		if err != nil {
			return tr.fail(CodeStoreRead, fmt.Sprintf("read key %v", key), err)
		}
		if value, ok := got.Get(); ok && !m.IsZero(value) {
			e := tr.fail(CodeExtraKey, "store holds a key the reference never produced", nil)
			e.Key, e.Want, e.Got = key, m.Zero, value
			return e
		}
	}
	return nil
}

// checkSink compares the contents of s against want.
func checkSink[T any](ctx context.Context, tr *trial, kit SinkKit[T], s flow.Sink[T], want []T) error {
	got, err := kit.Contents(ctx, s)
	if err != nil {
		return tr.fail(CodeSinkRead, "read sink", err)
	}
	if kit.matches(got, want) {
		return nil
	}
	e := tr.fail(CodeSinkMismatch, fmt.Sprintf("%s sink holds %d items, reference has %d", kit.Order, len(got), len(want)), nil)
	e.Want, e.Got = want, got
	if kit.Match == nil {
		e.Diff = cmp.Diff(want, got, deepOpts)
	}
	return e
}

// checkLookups requires every lookup the pipeline performed to agree with
// the reference view. Results compare with ==, so join values with
// unexported fields are fine.
func checkLookups[K, J comparable](tr *trial, lookups []service.Lookup[K, J], view func(K) flow.Option[J]) error {
	for _, l := range lookups {
		want := view(l.Key)
		if want != l.Result {
			e := tr.fail(CodeLookupDrift, "pipeline lookup differs from reference view", nil)
			e.Key, e.Want, e.Got = l.Key, want, l.Result
			return e
		}
	}
	return nil
}
