package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/flowlaws/config"
	"github.com/dshills/flowlaws/flow/emit"
	"github.com/dshills/flowlaws/flow/store"
	"github.com/dshills/flowlaws/internal/report"
	"github.com/dshills/flowlaws/laws"
	"github.com/dshills/flowlaws/laws/shapes"
)

func noEnv(string) (string, bool) { return "", false }

func TestRun_Memory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"--trials", "3", "--log-format", "none", "--report", path}, &stdout, &stderr, noEnv)
	if code != exitOK {
		t.Fatalf("exit = %d, stdout:\n%s\nstderr:\n%s", code, stdout.String(), stderr.String())
	}

	rep, err := report.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !rep.OK || len(rep.Platforms) != 2 || rep.RunID == "" {
		t.Fatalf("report = %+v", rep)
	}
	for _, p := range rep.Platforms {
		if len(p.Shapes) != len(shapes.All) {
			t.Errorf("%s: %d shapes, want %d", p.Name, len(p.Shapes), len(shapes.All))
		}
		for _, s := range p.Shapes {
			if s.Trials != 3 || s.Passed != 3 {
				t.Errorf("%s/%s: %+v", p.Name, s.Shape, s)
			}
		}
	}
	if !strings.Contains(stdout.String(), "ok local (store memory)") {
		t.Errorf("stdout missing summary:\n%s", stdout.String())
	}
}

func TestRun_SQLiteSelectedShapes(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "agg.db")
	var stdout, stderr bytes.Buffer
	args := []string{
		"--trials", "2",
		"--platforms", "concurrent",
		"--shapes", "single-step,left-join",
		"--store", "sqlite",
		"--dsn", dsn,
		"--log-format", "json",
		"--metrics-addr", "127.0.0.1:0",
	}

	if code := run(context.Background(), args, &stdout, &stderr, noEnv); code != exitOK {
		t.Fatalf("exit = %d, stderr:\n%s", code, stderr.String())
	}
	if got := strings.Count(stderr.String(), `"msg":"trial_pass"`); got != 4 {
		t.Errorf("trial_pass events = %d, want 4:\n%s", got, stderr.String())
	}
	if strings.Contains(stdout.String(), string(shapes.DiamondShape)) {
		t.Errorf("unselected shape reported:\n%s", stdout.String())
	}
}

func TestRun_Services(t *testing.T) {
	for _, svc := range []string{"delayed", "http"} {
		t.Run(svc, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			args := []string{"--trials", "3", "--shapes", "left-join,lookup", "--service", svc, "--log-format", "none"}
			if code := run(context.Background(), args, &stdout, &stderr, noEnv); code != exitOK {
				t.Fatalf("exit = %d, stdout:\n%s\nstderr:\n%s", code, stdout.String(), stderr.String())
			}
		})
	}
}

func TestRun_EngineEvents(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := []string{"--trials", "1", "--shapes", "single-step", "--log-format", "json", "--max-attempts", "3", "--retry-delay-ms", "1"}
	if code := run(context.Background(), args, &stdout, &stderr, noEnv); code != exitOK {
		t.Fatalf("exit = %d, stderr:\n%s", code, stderr.String())
	}
	out := stderr.String()
	for _, msg := range []string{"trial_pass", "node_batch", "run_complete"} {
		if !strings.Contains(out, `"msg":"`+msg+`"`) {
			t.Errorf("log has no %s event:\n%s", msg, out)
		}
	}
	// one run_complete per platform
	if got := strings.Count(out, `"msg":"run_complete"`); got != 2 {
		t.Errorf("run_complete events = %d, want 2", got)
	}
}

func TestRun_OTelLog(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := []string{"--trials", "2", "--platforms", "concurrent", "--shapes", "diamond", "--log-format", "otel"}
	if code := run(context.Background(), args, &stdout, &stderr, noEnv); code != exitOK {
		t.Fatalf("exit = %d, stderr:\n%s", code, stderr.String())
	}
	out := stderr.String()
	if got := strings.Count(out, "span trial_pass "); got != 2 {
		t.Errorf("trial_pass spans = %d, want 2:\n%s", got, out)
	}
	if !strings.Contains(out, "flowlaws.node=diamond") || !strings.Contains(out, "span node_batch ") {
		t.Errorf("spans missing attributes or engine events:\n%s", out)
	}
}

func TestNewPlatform_Retry(t *testing.T) {
	cfg := config.Default()
	cfg.Concurrent.MaxAttempts = 4
	p, order, err := newPlatform("concurrent", cfg, "run", emit.NewNullEmitter(), nil)
	if err != nil {
		t.Fatalf("newPlatform: %v", err)
	}
	if p.Name() != "concurrent" || order != laws.Unordered {
		t.Errorf("newPlatform = %s, %s", p.Name(), order)
	}
	if _, _, err := newPlatform("spark", cfg, "run", nil, nil); err == nil {
		t.Error("unknown platform accepted")
	}

	for _, err := range []error{context.Canceled, context.DeadlineExceeded} {
		if transient(err) {
			t.Errorf("transient(%v) = true", err)
		}
	}
	if !transient(store.ErrClosed) {
		t.Error("store error not retried")
	}
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"--help"}, &stdout, &stderr, noEnv); code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stdout.String(), "--trials") {
		t.Errorf("usage missing flags:\n%s", stdout.String())
	}
}

func TestRun_SetupErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad flag", []string{"--trials", "zero"}},
		{"invalid config", []string{"--platforms", "spark"}},
		{"bad store", []string{"--store", "sqlite", "--dsn", filepath.Join(t.TempDir(), "missing", "x.db")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), append(tt.args, "--log-format", "none"), &stdout, &stderr, noEnv); code != exitSetup {
				t.Errorf("exit = %d, want %d (stderr %s)", code, exitSetup, stderr.String())
			}
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	if code := run(ctx, []string{"--log-format", "none"}, &stdout, &stderr, noEnv); code != exitFailed {
		t.Errorf("exit = %d, want %d", code, exitFailed)
	}
}

func TestRouter(t *testing.T) {
	registry := prometheus.NewRegistry()
	laws.NewMetrics(registry).RecordTrial(shapes.LookupShape, "local", laws.OutcomePass, time.Millisecond)
	router := newRouter(registry)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "flowlaws_trials_total") {
		t.Errorf("/metrics = %d:\n%s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d", rec.Code)
	}
}
