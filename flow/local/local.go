// Package local provides a sequential, in-process platform.
//
// The local platform visits the operators of a job in topological order and
// materializes each operator's complete output before moving on. It keeps
// source order end to end, so it satisfies ordered sink checks, and it merges
// each aggregate into its store exactly once. It is the simplest conforming
// engine and the baseline the concurrent platform is compared against.
package local

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/flowlaws/flow"
	"github.com/dshills/flowlaws/flow/emit"
)

// Platform is the sequential engine. It is safe for concurrent Runs of
// distinct plans.
type Platform struct {
	emitter emit.Emitter
	runID   string
}

// Option configures a Platform.
type Option func(*Platform)

// WithEmitter sends node_batch and run_complete events to e.
func WithEmitter(e emit.Emitter) Option {
	return func(p *Platform) { p.emitter = e }
}

// WithRunID sets the RunID of emitted events. Defaults to the job name.
func WithRunID(id string) Option {
	return func(p *Platform) { p.runID = id }
}

// New creates a local platform.
func New(opts ...Option) *Platform {
	p := &Platform{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type plan struct {
	job *flow.Job
}

func (p *plan) Job() *flow.Job { return p.job }

// Name implements flow.Platform.
func (p *Platform) Name() string { return "local" }

// Plan implements flow.Platform.
func (p *Platform) Plan(job *flow.Job) (flow.Plan, error) {
	if job == nil {
		return nil, &flow.Error{Op: "local", Message: "job is nil", Code: "INVALID_JOB"}
	}
	return &plan{job: job}, nil
}

// Run implements flow.Platform.
func (p *Platform) Run(ctx context.Context, pl flow.Plan) error {
	lp, ok := pl.(*plan)
	if !ok {
		return &flow.Error{Op: "local", Message: fmt.Sprintf("cannot run %T", pl), Code: "FOREIGN_PLAN", Cause: flow.ErrForeignPlan}
	}
	job := lp.job
	runID := p.runID
	if runID == "" {
		runID = job.Name()
	}

	start := time.Now()
	outputs := make(map[*flow.Node][]any, len(job.Nodes()))

	for _, n := range job.Nodes() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var in []any
		for _, src := range n.Inputs() {
			in = append(in, outputs[src]...)
		}

		nodeStart := time.Now()
		out, err := p.step(ctx, n, in)
		if err != nil {
			return fmt.Errorf("%s: %w", job.ID(n), err)
		}
		outputs[n] = out

		p.emit(emit.Event{
			RunID: runID,
			Node:  job.ID(n),
			Msg:   "node_batch",
			Meta: map[string]interface{}{
				"items_in":    len(in),
				"items_out":   len(out),
				"duration_ms": time.Since(nodeStart).Milliseconds(),
			},
		})
	}

	p.emit(emit.Event{
		RunID: runID,
		Msg:   "run_complete",
		Meta: map[string]interface{}{
			"platform":    p.Name(),
			"nodes":       len(job.Nodes()),
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})
	return nil
}

// step computes the complete output of n from its complete input.
func (p *Platform) step(ctx context.Context, n *flow.Node, in []any) ([]any, error) {
	switch n.Kind() {
	case flow.KindSource:
		var out []any
		err := n.Read(ctx, func(item any) error {
			out = append(out, item)
			return nil
		})
		return out, err

	case flow.KindFlatMap:
		var out []any
		for _, item := range in {
			res, err := n.Expand(item)
			if err != nil {
				return nil, err
			}
			out = append(out, res...)
		}
		return out, nil

	case flow.KindMerge:
		return in, nil

	case flow.KindWrite:
		if len(in) > 0 {
			if err := n.Write(ctx, in); err != nil {
				return nil, err
			}
		}
		return in, nil

	case flow.KindJoin:
		out := make([]any, 0, len(in))
		for _, item := range in {
			res, err := n.Join(ctx, item)
			if err != nil {
				return nil, err
			}
			out = append(out, res)
		}
		return out, nil

	case flow.KindSum:
		partial := make(map[any]any)
		for _, item := range in {
			k, v, err := n.Split(item)
			if err != nil {
				return nil, err
			}
			if prev, ok := partial[k]; ok {
				v = n.Plus(prev, v)
			}
			partial[k] = v
		}
		return nil, n.Merge(ctx, partial)

	default:
		return nil, &flow.Error{Op: "local", Message: "unsupported operator " + n.Kind().String(), Code: "UNSUPPORTED"}
	}
}

func (p *Platform) emit(e emit.Event) {
	if p.emitter != nil {
		p.emitter.Emit(e)
	}
}
