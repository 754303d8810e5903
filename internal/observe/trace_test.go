package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestStartSpan_NestsTurnStages(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	ctx, turn := StartSpan(context.Background(), "turn")
	_, stage := StartSpan(ctx, "turn.transcribe")
	stage.End()
	turn.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	child, parent := spans[0], spans[1]
	if child.Name != "turn.transcribe" || parent.Name != "turn" {
		t.Fatalf("span names = %q, %q", child.Name, parent.Name)
	}
	if child.Parent.SpanID() != parent.SpanContext.SpanID() {
		t.Error("stage span is not a child of the turn span")
	}
	if got := child.InstrumentationScope.Name; got != tracerName {
		t.Errorf("scope = %q, want %q", got, tracerName)
	}
}

func TestLogger_AttachesTraceID(t *testing.T) {
	buf := captureLogs(t)
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "turn")
	defer span.End()

	Logger(ctx, "keyword", 1).Info("turn: finished")

	line := buf.String()
	want := "trace_id=" + span.SpanContext().TraceID().String()
	if !strings.Contains(line, want) || !strings.Contains(line, "keyword=1") {
		t.Errorf("log line = %q, want %s and keyword=1", line, want)
	}
}

func TestLogger_WithoutSpan(t *testing.T) {
	buf := captureLogs(t)

	if Logger(context.Background()) != slog.Default() {
		t.Error("Logger without span or args should be the default logger")
	}
	Logger(context.Background(), "stage", "record").Info("turn: stage failed")

	line := buf.String()
	if strings.Contains(line, "trace_id") {
		t.Errorf("log line = %q, want no trace_id", line)
	}
	if !strings.Contains(line, "stage=record") {
		t.Errorf("log line = %q, want stage=record", line)
	}
}
