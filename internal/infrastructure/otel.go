package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	prometheusclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"

	"tremor/pkg/contracts"
)

const (
	ServiceName = "tremor"
	MeterName   = "tremor"
)

// OTelProviders holds the OpenTelemetry meter provider and the HTTP
// handler that serves its Prometheus export.
type OTelProviders struct {
	MeterProvider  *sdkmetric.MeterProvider
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// InitializeOTel sets up metrics with a Prometheus exporter. Tracing is
// deliberately left out; trace IDs travel via the logger instead.
func InitializeOTel(logger *slog.Logger) (*OTelProviders, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(contracts.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	registry := prometheusclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	logger.Info("metrics initialized",
		slog.String("service", ServiceName),
		slog.String("exporter", "prometheus"))

	return &OTelProviders{
		MeterProvider:  provider,
		Meter:          provider.Meter(MeterName),
		PrometheusHTTP: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Logger:         logger,
	}, nil
}

// Shutdown flushes and stops the meter provider.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	if p.MeterProvider == nil {
		return nil
	}
	if err := p.MeterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}
	return nil
}

// Metrics holds the domain instruments recorded across the pipeline.
type Metrics struct {
	SignalsComputed   metric.Int64Counter
	SignalsSkipped    metric.Int64Counter
	ShocksDetected    metric.Int64Counter
	StudiesRun        metric.Int64Counter
	StudiesCausal     metric.Int64Counter
	StudyDuration     metric.Float64Histogram
	PropagationChecks metric.Int64Counter
}

// NewMetrics registers the domain instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.SignalsComputed, err = meter.Int64Counter("tremor_signals_computed_total",
		metric.WithDescription("Signals computed from events")); err != nil {
		return nil, fmt.Errorf("creating signals counter: %w", err)
	}
	if m.SignalsSkipped, err = meter.Int64Counter("tremor_signals_skipped_total",
		metric.WithDescription("Transforms skipped during signal computation")); err != nil {
		return nil, fmt.Errorf("creating skipped counter: %w", err)
	}
	if m.ShocksDetected, err = meter.Int64Counter("tremor_shocks_detected_total",
		metric.WithDescription("Signals flagged as shocks")); err != nil {
		return nil, fmt.Errorf("creating shocks counter: %w", err)
	}
	if m.StudiesRun, err = meter.Int64Counter("tremor_studies_run_total",
		metric.WithDescription("Causal event studies executed")); err != nil {
		return nil, fmt.Errorf("creating studies counter: %w", err)
	}
	if m.StudiesCausal, err = meter.Int64Counter("tremor_studies_causal_total",
		metric.WithDescription("Studies that produced a causal verdict")); err != nil {
		return nil, fmt.Errorf("creating causal counter: %w", err)
	}
	if m.StudyDuration, err = meter.Float64Histogram("tremor_study_duration_seconds",
		metric.WithDescription("Event study wall time"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating study histogram: %w", err)
	}
	if m.PropagationChecks, err = meter.Int64Counter("tremor_propagation_checks_total",
		metric.WithDescription("Propagation monitor checks performed")); err != nil {
		return nil, fmt.Errorf("creating propagation counter: %w", err)
	}
	return m, nil
}

// RecordSignal records one computed signal, tagged by transform name.
func (m *Metrics) RecordSignal(ctx context.Context, transform string, isShock bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("transform", transform))
	m.SignalsComputed.Add(ctx, 1, attrs)
	if isShock {
		m.ShocksDetected.Add(ctx, 1, attrs)
	}
}

// RecordSkip records one skipped transform with its reason.
func (m *Metrics) RecordSkip(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.SignalsSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordStudy records one completed study run.
func (m *Metrics) RecordStudy(ctx context.Context, transform string, seconds float64, isCausal bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("transform", transform))
	m.StudiesRun.Add(ctx, 1, attrs)
	m.StudyDuration.Record(ctx, seconds, attrs)
	if isCausal {
		m.StudiesCausal.Add(ctx, 1, attrs)
	}
}

// RecordPropagationCheck records one monitor check with its outcome status.
func (m *Metrics) RecordPropagationCheck(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.PropagationChecks.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
