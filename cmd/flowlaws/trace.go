package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dshills/flowlaws/flow/emit"
)

// spanWriter exports every finished span as one text line.
type spanWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *spanWriter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, span := range spans {
		var b strings.Builder
		fmt.Fprintf(&b, "span %s trace=%s dur=%s", span.Name(), span.SpanContext().TraceID(), span.EndTime().Sub(span.StartTime()))
		for _, kv := range span.Attributes() {
			fmt.Fprintf(&b, " %s=%s", kv.Key, kv.Value.Emit())
		}
		if st := span.Status(); st.Code == codes.Error {
			b.WriteString(" status=error")
		}
		b.WriteByte('\n')
		if _, err := io.WriteString(s.w, b.String()); err != nil {
			return err
		}
	}
	return nil
}

func (s *spanWriter) Shutdown(context.Context) error { return nil }

// newTracing routes events through an OpenTelemetry tracer whose spans are
// written to w. The returned func shuts the provider down.
func newTracing(w io.Writer) (emit.Emitter, func()) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(&spanWriter{w: w}))
	return emit.NewOTelEmitter(tp.Tracer("flowlaws")), func() {
		_ = tp.Shutdown(context.Background())
	}
}
