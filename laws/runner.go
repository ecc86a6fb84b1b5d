package laws

import (
	"context"
	"time"

	"github.com/dshills/flowlaws/laws/shapes"
)

// Failure is one failed trial.
type Failure struct {
	Shape shapes.Shape
	Seed  int
	Err   error
}

// ShapeResult summarizes the trials of one law.
type ShapeResult struct {
	Shape  shapes.Shape
	Trials int
	Passed int
	Failed int

	// Durations holds the wall time of every trial, in order.
	Durations []time.Duration
}

// RunResult summarizes a Run.
type RunResult struct {
	// Seed is the first trial seed.
	Seed int

	// Shapes holds one entry per law, in the order given.
	Shapes []ShapeResult

	// Failures lists every failed trial.
	Failures []Failure

	// Duration is the wall time of the whole run.
	Duration time.Duration

	// Err is set when the run stopped early because ctx ended.
	Err error
}

// OK reports whether every trial passed and the run was not cut short.
func (r RunResult) OK() bool {
	return len(r.Failures) == 0 && r.Err == nil
}

// Trials returns the number of trials that ran.
func (r RunResult) Trials() int {
	n := 0
	for _, s := range r.Shapes {
		n += s.Trials
	}
	return n
}

// Run executes trials trials of every law, one after another. Trial i of
// each law draws its case from seed+i, so a failure is reproduced with
// TrialAt(ctx, failure.Seed). Run stops early when ctx is done.
func Run(ctx context.Context, laws []Law, trials int, seed int) RunResult {
	start := time.Now()
	res := RunResult{Seed: seed}

	for _, l := range laws {
		sr := ShapeResult{Shape: l.Shape(), Durations: make([]time.Duration, 0, trials)}
		for i := 0; i < trials; i++ {
			if err := ctx.Err(); err != nil {
				res.Err = err
				break
			}
			t0 := time.Now()
			err := l.TrialAt(ctx, seed+i)
			sr.Durations = append(sr.Durations, time.Since(t0))
			sr.Trials++
			if err != nil {
				sr.Failed++
				res.Failures = append(res.Failures, Failure{Shape: l.Shape(), Seed: seed + i, Err: err})
				continue
			}
			sr.Passed++
		}
		res.Shapes = append(res.Shapes, sr)
		if res.Err != nil {
			break
		}
	}

	res.Duration = time.Since(start)
	return res
}
