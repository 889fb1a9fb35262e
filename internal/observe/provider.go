package observe

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Resource attribute keys describing one errtable run.
const (
	AttrRunID      = attribute.Key("errtable.run.id")
	AttrCorpusPath = attribute.Key("errtable.corpus.path")
	AttrWorkers    = attribute.Key("errtable.workers")
)

// ProviderConfig configures the OpenTelemetry SDK providers for one run.
type ProviderConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "errtable".
	ServiceName string

	// ServiceVersion is the service version reported in telemetry.
	ServiceVersion string

	// RunID identifies the run; it is the same ID the sinks store.
	RunID string

	// CorpusPath is the corpus file being assembled.
	CorpusPath string

	// Workers is the configured extraction concurrency. Zero omits it.
	Workers int

	// TraceExporter is an optional span exporter. When nil, spans are
	// recorded but not exported.
	TraceExporter sdktrace.SpanExporter
}

// Telemetry holds the providers installed by [InitProvider] together with
// the run's [Metrics] and the Prometheus registry backing /metrics.
type Telemetry struct {
	Metrics *Metrics

	registry *prometheus.Registry
	mp       *sdkmetric.MeterProvider
	tp       *sdktrace.TracerProvider
}

// InitProvider builds a [sdkmetric.MeterProvider] exporting to a dedicated
// Prometheus registry and a [sdktrace.TracerProvider], installs both as the
// global OTel providers and creates the run's [Metrics] on the meter
// provider. Every exported series and span carries the run resource
// (service, run id, corpus path and workers); Prometheus sees it as
// target_info.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "errtable"
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(runAttributes(cfg)...))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promExp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	m, err := NewMetrics(mp)
	if err != nil {
		return nil, errors.Join(err, tp.Shutdown(ctx), mp.Shutdown(ctx))
	}

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Telemetry{Metrics: m, registry: reg, mp: mp, tp: tp}, nil
}

func runAttributes(cfg ProviderConfig) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.RunID != "" {
		attrs = append(attrs, AttrRunID.String(cfg.RunID))
	}
	if cfg.CorpusPath != "" {
		attrs = append(attrs, AttrCorpusPath.String(cfg.CorpusPath))
	}
	if cfg.Workers > 0 {
		attrs = append(attrs, AttrWorkers.Int(cfg.Workers))
	}
	return attrs
}

// Handler serves the Prometheus exposition of the run's registry.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and closes both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.tp.Shutdown(ctx), t.mp.Shutdown(ctx))
}
