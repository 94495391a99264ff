package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// instrumentationName identifies this program's records in the log pipeline.
const instrumentationName = "github.com/0xysh/codex-switcher"

// Exporter selects where log records are shipped in addition to stderr.
type Exporter string

const (
	ExporterNone     Exporter = "none"
	ExporterStdout   Exporter = "stdout"
	ExporterOTLPHTTP Exporter = "otlphttp"
	ExporterOTLPGRPC Exporter = "otlpgrpc"
)

// Options configures Instrument.
type Options struct {
	Level    slog.Level
	Format   string
	Exporter Exporter

	// Writer receives the local log output. Defaults to os.Stderr.
	Writer io.Writer
}

// Instrument installs the process-wide default slog logger and returns a
// shutdown function flushing any log exporter. OTLP exporters read their
// endpoint and headers from the standard OTEL_EXPORTER_OTLP_* variables.
func Instrument(ctx context.Context, opts Options) (func(context.Context) error, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var local slog.Handler
	switch opts.Format {
	case "", "text":
		local = slog.NewTextHandler(w, handlerOpts)
	case "json":
		local = slog.NewJSONHandler(w, handlerOpts)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", opts.Format)
	}

	noop := func(context.Context) error { return nil }

	exporter, err := newExporter(ctx, opts.Exporter)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		slog.SetDefault(slog.New(withTraceContext(local)))
		return noop, nil
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(opts.Level))),
	)

	var lp otellog.LoggerProvider = provider
	remote := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(lp))

	// OTel SDK internal errors end up in the local log
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		slog.New(local).Warn("log export failed", "error", err)
	}))

	slog.SetDefault(slog.New(withTraceContext(fanout{local, remote})))

	return func(ctx context.Context) error {
		return errors.Join(provider.ForceFlush(ctx), provider.Shutdown(ctx))
	}, nil
}

func newExporter(ctx context.Context, kind Exporter) (sdklog.Exporter, error) {
	switch kind {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		return stdoutlog.New(stdoutlog.WithWriter(os.Stdout))
	case ExporterOTLPHTTP:
		return otlploghttp.New(ctx)
	case ExporterOTLPGRPC:
		return otlploggrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported log exporter: %s", kind)
	}
}

// severity maps a slog level onto the minimum severity forwarded to the exporter.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level >= slog.LevelError:
		return minsev.SeverityError
	case level >= slog.LevelWarn:
		return minsev.SeverityWarn
	case level >= slog.LevelInfo:
		return minsev.SeverityInfo
	default:
		return minsev.SeverityDebug
	}
}
