// Package observe provides observability primitives for errtable:
// OpenTelemetry metrics, run and utterance spans, structured logging scoped to
// the run and utterance, and HTTP middleware for the telemetry server.
//
// [InitProvider] builds the providers of one run and returns its [Metrics],
// exported to a private Prometheus registry served by [Telemetry.Handler].
// [DefaultMetrics] binds to the global meter provider and serves callers that
// never set one up; tests should use [NewMetrics] with a custom
// [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all errtable metrics.
const meterName = "github.com/MrWong99/errtable"

// Utterance outcome labels used with [Metrics.RecordUtterance].
const (
	StatusOK        = "ok"
	StatusDesync    = "desync"
	StatusMalformed = "malformed"
	StatusDropped   = "dropped"
	StatusError     = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// ExtractDuration tracks the time spent extracting one utterance.
	ExtractDuration metric.Float64Histogram

	// RunDuration tracks the time spent assembling a whole corpus.
	RunDuration metric.Float64Histogram

	// Utterances counts processed utterances. Use with attribute:
	//   attribute.String("status", ...)
	Utterances metric.Int64Counter

	// Records counts extracted error records. Use with attribute:
	//   attribute.String("annotation", ...)
	Records metric.Int64Counter

	// SinkWrites counts records handed to sinks. Use with attributes:
	//   attribute.String("sink", ...), attribute.String("status", ...)
	SinkWrites metric.Int64Counter

	// ActiveWorkers tracks extraction goroutines currently running.
	ActiveWorkers metric.Int64UpDownCounter

	// HTTPRequestDuration tracks telemetry server request latency. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// extractBuckets defines histogram bucket boundaries (in seconds) for a
// single utterance scan, which normally finishes in microseconds.
var extractBuckets = []float64{
	0.000005, 0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.01, 0.1,
}

// runBuckets defines histogram bucket boundaries (in seconds) for a corpus run.
var runBuckets = []float64{
	0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ExtractDuration, err = m.Float64Histogram("errtable.extract.duration",
		metric.WithDescription("Time spent extracting the error records of one utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(extractBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RunDuration, err = m.Float64Histogram("errtable.run.duration",
		metric.WithDescription("Time spent assembling the error records of a corpus."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(runBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Utterances, err = m.Int64Counter("errtable.utterances",
		metric.WithDescription("Utterances processed, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Records, err = m.Int64Counter("errtable.records",
		metric.WithDescription("Error records extracted, by annotation."),
	); err != nil {
		return nil, err
	}
	if met.SinkWrites, err = m.Int64Counter("errtable.sink.writes",
		metric.WithDescription("Error records written to sinks, by sink and status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveWorkers, err = m.Int64UpDownCounter("errtable.active_workers",
		metric.WithDescription("Extraction goroutines currently running."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("errtable.http.request.duration",
		metric.WithDescription("Telemetry server request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordUtterance increments the utterance counter for status.
func (m *Metrics) RecordUtterance(ctx context.Context, status string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordRecords adds n records of the given annotation label.
func (m *Metrics) RecordRecords(ctx context.Context, annotation string, n int) {
	if n == 0 {
		return
	}
	m.Records.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("annotation", annotation)),
	)
}

// RecordSinkWrite adds n records written to sink with the given status.
func (m *Metrics) RecordSinkWrite(ctx context.Context, sink, status string, n int) {
	m.SinkWrites.Add(ctx, int64(n),
		metric.WithAttributes(
			attribute.String("sink", sink),
			attribute.String("status", status),
		),
	)
}
