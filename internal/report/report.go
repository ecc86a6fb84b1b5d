// Package report turns harness run results into a JSON report.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/natefinch/atomic"

	"github.com/dshills/flowlaws/laws"
	"github.com/dshills/flowlaws/laws/shapes"
)

// Report is the outcome of one flowlaws invocation.
type Report struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	DurationMs float64    `json:"duration_ms"`
	Seed       int        `json:"seed"`
	Trials     int        `json:"trials"`
	OK         bool       `json:"ok"`
	Platforms  []Platform `json:"platforms"`
}

// Platform is the outcome of the suite on one platform.
type Platform struct {
	Name     string    `json:"name"`
	Store    string    `json:"store"`
	OK       bool      `json:"ok"`
	Shapes   []Shape   `json:"shapes"`
	Failures []Failure `json:"failures,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Shape summarizes the trials of one law.
type Shape struct {
	Shape   shapes.Shape `json:"shape"`
	Trials  int          `json:"trials"`
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
	Latency Summary      `json:"latency"`
}

// Failure is one failed trial.
type Failure struct {
	Shape shapes.Shape `json:"shape"`
	Seed  int          `json:"seed"`
	Code  string       `json:"code"`
	Error string       `json:"error"`
}

// Summary holds trial latency statistics in milliseconds.
type Summary struct {
	MeanMs   float64 `json:"mean_ms"`
	MedianMs float64 `json:"median_ms"`
	P95Ms    float64 `json:"p95_ms"`
	MaxMs    float64 `json:"max_ms"`
}

// Summarize computes latency statistics. An empty input gives a zero
// Summary.
func Summarize(durations []time.Duration) (Summary, error) {
	if len(durations) == 0 {
		return Summary{}, nil
	}
	data := make(stats.Float64Data, len(durations))
	for i, d := range durations {
		data[i] = float64(d.Microseconds()) / 1000
	}

	var s Summary
	var err error
	if s.MeanMs, err = stats.Mean(data); err != nil {
		return Summary{}, fmt.Errorf("mean: %w", err)
	}
	if s.MedianMs, err = stats.Median(data); err != nil {
		return Summary{}, fmt.Errorf("median: %w", err)
	}
	if s.P95Ms, err = stats.Percentile(data, 95); err != nil {
		return Summary{}, fmt.Errorf("p95: %w", err)
	}
	if s.MaxMs, err = stats.Max(data); err != nil {
		return Summary{}, fmt.Errorf("max: %w", err)
	}
	return s, nil
}

// FromResult converts the result of laws.Run on one platform.
func FromResult(platform, store string, res laws.RunResult) (Platform, error) {
	p := Platform{Name: platform, Store: store, OK: res.OK()}
	if res.Err != nil {
		p.Error = res.Err.Error()
	}
	for _, sr := range res.Shapes {
		latency, err := Summarize(sr.Durations)
		if err != nil {
			return Platform{}, fmt.Errorf("%s: %w", sr.Shape, err)
		}
		p.Shapes = append(p.Shapes, Shape{
			Shape:   sr.Shape,
			Trials:  sr.Trials,
			Passed:  sr.Passed,
			Failed:  sr.Failed,
			Latency: latency,
		})
	}
	for _, f := range res.Failures {
		p.Failures = append(p.Failures, Failure{
			Shape: f.Shape,
			Seed:  f.Seed,
			Code:  laws.Code(f.Err),
			Error: f.Err.Error(),
		})
	}
	return p, nil
}

// Add appends p and updates OK.
func (r *Report) Add(p Platform) {
	r.Platforms = append(r.Platforms, p)
	r.OK = true
	for _, q := range r.Platforms {
		r.OK = r.OK && q.OK
	}
}

// Failures returns the number of failed trials across platforms.
func (r Report) Failures() int {
	n := 0
	for _, p := range r.Platforms {
		n += len(p.Failures)
	}
	return n
}

// Write stores r at path as indented JSON. The file is replaced atomically,
// so readers never see a partial report.
func Write(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// Read loads a report written by Write.
func Read(path string) (Report, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the user
	if err != nil {
		return Report{}, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("decode report %s: %w", path, err)
	}
	return r, nil
}

// WriteText prints a one-line-per-shape summary of r.
func (r Report) WriteText(w io.Writer) error {
	var errs []error
	printf := func(format string, args ...any) {
		if _, err := fmt.Fprintf(w, format, args...); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range r.Platforms {
		status := "ok"
		if !p.OK {
			status = "FAIL"
		}
		printf("%s %s (store %s)\n", status, p.Name, p.Store)
		for _, s := range p.Shapes {
			printf("  %-12s %4d/%-4d passed  mean %.2fms  p95 %.2fms  max %.2fms\n",
				s.Shape, s.Passed, s.Trials, s.Latency.MeanMs, s.Latency.P95Ms, s.Latency.MaxMs)
		}
		for _, f := range p.Failures {
			printf("  FAIL %s seed %d: %s\n", f.Shape, f.Seed, f.Code)
		}
		if p.Error != "" {
			printf("  stopped: %s\n", p.Error)
		}
	}
	return errors.Join(errs...)
}
