package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/trace"
)

func TestInstrumentFormats(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{"text", func(t *testing.T, out string) {
			if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "k=v") {
				t.Errorf("text output = %q", out)
			}
		}},
		{"json", func(t *testing.T, out string) {
			var rec map[string]any
			if err := json.Unmarshal([]byte(out), &rec); err != nil {
				t.Fatalf("output is not JSON: %v (%q)", err, out)
			}
			if rec["msg"] != "hello" || rec["k"] != "v" {
				t.Errorf("json record = %v", rec)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			shutdown, err := Instrument(context.Background(), Options{Level: slog.LevelInfo, Format: tt.format, Writer: &buf})
			if err != nil {
				t.Fatalf("Instrument failed: %v", err)
			}
			defer func() { _ = shutdown(context.Background()) }()

			slog.Info("hello", "k", "v")
			slog.Debug("hidden")
			tt.check(t, strings.TrimSpace(buf.String()))
		})
	}
}

func TestInstrumentRejectsUnknownSettings(t *testing.T) {
	if _, err := Instrument(context.Background(), Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := Instrument(context.Background(), Options{Exporter: "kafka"}); err == nil {
		t.Error("expected error for unknown exporter")
	}
}

func TestTraceHandlerAddsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(withTraceContext(slog.NewJSONHandler(&buf, nil)))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "traced")
	logger.Info("untraced")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if !strings.Contains(lines[0], sc.TraceID().String()) || !strings.Contains(lines[0], sc.SpanID().String()) {
		t.Errorf("traced record = %s", lines[0])
	}
	if strings.Contains(lines[1], "trace_id") {
		t.Errorf("untraced record = %s", lines[1])
	}
}

func TestFanoutRespectsLevels(t *testing.T) {
	var debug, warn bytes.Buffer
	logger := slog.New(fanout{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}).With("component", "test")

	logger.Info("info line")
	logger.Warn("warn line")

	if !strings.Contains(debug.String(), "info line") || !strings.Contains(debug.String(), "warn line") {
		t.Errorf("debug handler output = %q", debug.String())
	}
	if strings.Contains(warn.String(), "info line") || !strings.Contains(warn.String(), "component=test") {
		t.Errorf("warn handler output = %q", warn.String())
	}
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  minsev.Severity
	}{
		{slog.LevelDebug - 4, minsev.SeverityDebug},
		{slog.LevelDebug, minsev.SeverityDebug},
		{slog.LevelInfo, minsev.SeverityInfo},
		{slog.LevelWarn, minsev.SeverityWarn},
		{slog.LevelError, minsev.SeverityError},
	}
	for _, tt := range tests {
		if got := severity(tt.level); got != tt.want {
			t.Errorf("severity(%s) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
