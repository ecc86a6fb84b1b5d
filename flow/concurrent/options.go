package concurrent

import (
	"fmt"

	"github.com/dshills/flowlaws/flow/emit"
)

// Options configures a Platform.
type Options struct {
	// Workers is the number of goroutines processing batches. Default: 4.
	Workers int

	// BatchSize is the largest batch the engine cuts. Every batch has a
	// random size in [1, BatchSize]. Default: 4.
	BatchSize int

	// Seed drives batch sizes, processing order, and retry jitter. Two
	// platforms with the same seed cut the same batches for the same run.
	Seed int64

	// Retry applies to sink writes, store merges, and service lookups.
	// Nil disables retries.
	Retry *RetryPolicy
}

// Option is a functional option for New.
//
// Example:
//
//	p, err := concurrent.New(
//	    concurrent.WithWorkers(8),
//	    concurrent.WithBatchSize(3),
//	    concurrent.WithSeed(42),
//	)
type Option func(*config) error

type config struct {
	opts    Options
	emitter emit.Emitter
	metrics *Metrics
	runID   string
}

func defaultConfig() config {
	return config{
		opts: Options{
			Workers:   4,
			BatchSize: 4,
			Seed:      1,
		},
	}
}

// WithOptions replaces every field of Options at once.
func WithOptions(opts Options) Option {
	return func(cfg *config) error {
		cfg.opts = opts
		return nil
	}
}

// WithWorkers sets the number of worker goroutines. Must be >= 1.
func WithWorkers(n int) Option {
	return func(cfg *config) error {
		if n < 1 {
			return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidOption, n)
		}
		cfg.opts.Workers = n
		return nil
	}
}

// WithBatchSize sets the maximum batch size. Must be >= 1.
// A value of 1 streams items one at a time.
func WithBatchSize(n int) Option {
	return func(cfg *config) error {
		if n < 1 {
			return fmt.Errorf("%w: batch size must be >= 1, got %d", ErrInvalidOption, n)
		}
		cfg.opts.BatchSize = n
		return nil
	}
}

// WithSeed sets the seed for batching, ordering, and jitter.
func WithSeed(seed int64) Option {
	return func(cfg *config) error {
		cfg.opts.Seed = seed
		return nil
	}
}

// WithRetryPolicy enables retries of sink writes, store merges, and lookups.
func WithRetryPolicy(rp RetryPolicy) Option {
	return func(cfg *config) error {
		if err := rp.Validate(); err != nil {
			return err
		}
		cfg.opts.Retry = &rp
		return nil
	}
}

// WithEmitter sends node_batch, retry, and run_complete events to e.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *config) error {
		cfg.emitter = e
		return nil
	}
}

// WithMetrics records engine metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(cfg *config) error {
		cfg.metrics = m
		return nil
	}
}

// WithRunID sets the RunID of emitted events. Defaults to the job name.
func WithRunID(id string) Option {
	return func(cfg *config) error {
		cfg.runID = id
		return nil
	}
}

func (o Options) validate() error {
	if o.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidOption, o.Workers)
	}
	if o.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be >= 1, got %d", ErrInvalidOption, o.BatchSize)
	}
	if o.Retry != nil {
		return o.Retry.Validate()
	}
	return nil
}
