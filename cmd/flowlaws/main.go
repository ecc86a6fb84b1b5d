// Command flowlaws checks the built-in dataflow platforms against the
// sequential reference, shape by shape, and reports every disagreement.
//
// Usage:
//
//	flowlaws [flags]
//
// Settings come from defaults, a config file, FLOWLAWS_* environment
// variables and flags, in that order. The exit status is 0 when every trial
// passed, 1 when any trial failed, and 2 for configuration or setup errors.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/dshills/flowlaws/config"
	"github.com/dshills/flowlaws/flow"
	"github.com/dshills/flowlaws/flow/concurrent"
	"github.com/dshills/flowlaws/flow/emit"
	"github.com/dshills/flowlaws/flow/local"
	"github.com/dshills/flowlaws/flow/store"
	"github.com/dshills/flowlaws/internal/report"
	"github.com/dshills/flowlaws/laws"
	"github.com/dshills/flowlaws/laws/shapes"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitSetup  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, lookup config.LookupEnv) int {
	cfg, err := config.Load(args, lookup)
	if errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(stdout, "Usage: flowlaws [flags]\n\n%s", config.Usage())
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitSetup
	}

	runID := ulid.MustNew(ulid.Now(), rand.Reader).String()
	registry := prometheus.NewRegistry()
	lawMetrics := laws.NewMetrics(registry)
	engineMetrics := concurrent.NewMetrics(registry)

	if cfg.MetricsAddr != "" {
		shutdown, err := serveMetrics(cfg.MetricsAddr, registry, stderr)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return exitSetup
		}
		defer shutdown()
	}

	var backend *store.Backend
	if cfg.Store.Driver != "memory" {
		backend, err = store.Open(store.Dialect(cfg.Store.Driver), cfg.Store.DSN)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return exitSetup
		}
		defer func() { _ = backend.Close() }()
	}

	rep := report.Report{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Seed:      cfg.Seed,
		Trials:    cfg.Trials,
		OK:        true,
	}
	emitter, closeEmitter := newEmitter(cfg.LogFormat, stderr)
	defer closeEmitter()

	for _, name := range cfg.Platforms {
		p, order, err := newPlatform(name, cfg, runID, emitter, engineMetrics)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return exitSetup
		}

		h := laws.New(p,
			laws.WithEmitter(emitter),
			laws.WithMetrics(lawMetrics),
			laws.WithRunID(runID),
			laws.WithStrictKeys(cfg.StrictKeys),
		)
		env := laws.MemoryEnv(order)
		if backend != nil {
			env = laws.SQLEnv(backend, order)
		}
		env.Service = newServiceKit(cfg)

		suite := selectLaws(laws.Standard(h, env), cfg.SelectedShapes())
		res := laws.Run(ctx, suite, cfg.Trials, cfg.Seed)
		pr, err := report.FromResult(name, cfg.Store.Driver, res)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return exitSetup
		}
		rep.Add(pr)
		if ctx.Err() != nil {
			break
		}
	}
	rep.DurationMs = float64(time.Since(rep.StartedAt).Microseconds()) / 1000

	if err := rep.WriteText(stdout); err != nil {
		fmt.Fprintln(stderr, "error:", err)
	}
	if cfg.Report != "" {
		if err := report.Write(cfg.Report, rep); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return exitSetup
		}
	}

	if !rep.OK {
		fmt.Fprintf(stdout, "%d failed trials (run %s)\n", rep.Failures(), runID)
		return exitFailed
	}
	return exitOK
}

func newServiceKit(cfg config.Config) laws.ServiceKit[int, int] {
	switch cfg.Service {
	case "delayed":
		return laws.DelayedServices[int, int](time.Millisecond, int64(cfg.Seed))
	case "http":
		return laws.HTTPServices[int, int]()
	default:
		return laws.StaticServices[int, int]()
	}
}

// newEmitter returns the event emitter for format and a func flushing it.
func newEmitter(format string, w io.Writer) (emit.Emitter, func()) {
	switch format {
	case "json":
		return emit.NewLogEmitter(w, true), func() {}
	case "text":
		return emit.NewLogEmitter(w, false), func() {}
	case "otel":
		return newTracing(w)
	default:
		return emit.NewNullEmitter(), func() {}
	}
}

// newPlatform builds the named platform and the sink order it guarantees.
func newPlatform(name string, cfg config.Config, runID string, e emit.Emitter, m *concurrent.Metrics) (flow.Platform, laws.Order, error) {
	switch name {
	case "local":
		return local.New(local.WithEmitter(e), local.WithRunID(runID)), laws.Ordered, nil
	case "concurrent":
		opts := []concurrent.Option{
			concurrent.WithWorkers(cfg.Concurrent.Workers),
			concurrent.WithBatchSize(cfg.Concurrent.BatchSize),
			concurrent.WithSeed(int64(cfg.Seed)),
			concurrent.WithEmitter(e),
			concurrent.WithMetrics(m),
			concurrent.WithRunID(runID),
		}
		if cfg.Concurrent.MaxAttempts > 1 {
			opts = append(opts, concurrent.WithRetryPolicy(concurrent.RetryPolicy{
				MaxAttempts: cfg.Concurrent.MaxAttempts,
				BaseDelay:   time.Duration(cfg.Concurrent.RetryDelayMs) * time.Millisecond,
				MaxDelay:    time.Duration(cfg.Concurrent.RetryDelayMs) * time.Millisecond * 16,
				Retryable:   transient,
			}))
		}
		p, err := concurrent.New(opts...)
		if err != nil {
			return nil, laws.Unordered, err
		}
		return p, laws.Unordered, nil
	}
	return nil, laws.Unordered, fmt.Errorf("unknown platform %q", name)
}

// transient treats every failure except cancellation as worth retrying.
func transient(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func selectLaws(all []laws.Law, want []shapes.Shape) []laws.Law {
	keep := make(map[shapes.Shape]bool, len(want))
	for _, s := range want {
		keep[s] = true
	}
	out := make([]laws.Law, 0, len(want))
	for _, l := range all {
		if keep[l.Shape()] {
			out = append(out, l)
		}
	}
	return out
}

func newRouter(registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	})
	return r
}

// serveMetrics exposes registry on addr until the returned function is
// called.
func serveMetrics(addr string, registry *prometheus.Registry, stderr io.Writer) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: newRouter(registry), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(stderr, "metrics server:", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
