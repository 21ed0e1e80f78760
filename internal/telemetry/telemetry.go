// Package telemetry bootstraps tracing, metrics, and error reporting for
// the ingestion engine: an OTLP trace exporter (adapted from the
// teacher's configureOtel), Prometheus gauges/counters for cursor lag
// and rows written, and an optional Sentry client for uncaught worker
// errors.
package telemetry

import (
	"context"
	"log"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
)

var (
	// CursorLag is the gap between a log's observed tree_size and its
	// committed cursor, the operator-visible "stuck worker" signal §9
	// leaves to the observability layer.
	CursorLag = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ctingest_cursor_lag",
		Help: "Entries not yet ingested for a log (tree_size - cursor).",
	}, []string{"log"})

	// RowsWritten counts rows successfully handed to the Sink, per log.
	RowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ctingest_rows_written_total",
		Help: "Domain rows successfully inserted into the sink.",
	}, []string{"log"})
)

// ServeMetrics starts a background HTTP server exposing the registered
// Prometheus collectors at /metrics on addr (e.g. ":9100"), for a scraper
// to poll CursorLag and RowsWritten. Listen errors are logged, not fatal:
// metrics are a diagnostic surface, not one the engine depends on.
func ServeMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("[telemetry] metrics server on %s stopped: %v", addr, err)
		}
	}()
}

// ConfigureOTel registers a gRPC OTLP trace exporter and the W3C
// propagators, returning a shutdown func to flush and close on exit.
// Endpoint configuration comes from the standard
// OTEL_EXPORTER_OTLP_ENDPOINT environment variable read by
// otlptracegrpc.NewClient.
func ConfigureOTel(ctx context.Context) (func(), error) {
	client := otlptracegrpc.NewClient()
	exp, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(trace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return func() {
		_ = exp.Shutdown(ctx)
		_ = tp.Shutdown(ctx)
	}, nil
}

// ConfigureSentry initializes the global Sentry client if dsn is
// non-empty; a blank dsn is a deliberate no-op, so calling this
// unconditionally at startup is safe.
func ConfigureSentry(dsn string) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
		return err
	}
	log.Println("[telemetry] sentry reporting enabled")
	return nil
}

// ReportError forwards a non-retryable Sink error (or any other
// fatal-for-this-log condition) to Sentry, tagged with the log it came
// from. A no-op when Sentry was never configured (ConfigureSentry was
// called with an empty dsn, so the global client's transport is a noop).
func ReportError(err error, logName string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("log", logName)
		sentry.CaptureException(err)
	})
}
