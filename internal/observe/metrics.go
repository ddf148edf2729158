// Package observe provides the OpenTelemetry metrics of the voice-orchestrator
// and the Prometheus bridge that exposes them on /metrics.
//
// All recording methods are safe on a nil *Metrics so that components can be
// constructed without telemetry in tests.
package observe

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"

	"github.com/book-expert/voice-orchestrator/internal/core"
)

const meterName = "github.com/book-expert/voice-orchestrator"

// Outcome attribute values.
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180,
}

// Metrics holds the metric instruments of the service.
type Metrics struct {
	// CollaboratorDuration tracks backend call latency. Attributes:
	//   collaborator, outcome
	CollaboratorDuration metric.Float64Histogram

	// JobTransitions counts synthesis job state changes. Attribute: status
	JobTransitions metric.Int64Counter

	// JobsInFlight tracks jobs currently owned by a worker.
	JobsInFlight metric.Int64UpDownCounter

	// HTTPRequestDuration tracks request handling time. Attributes:
	//   method, route, code
	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	met := &Metrics{}

	var err error

	if met.CollaboratorDuration, err = meter.Float64Histogram("voice.collaborator.duration",
		metric.WithDescription("Latency of backend collaborator calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.JobTransitions, err = meter.Int64Counter("voice.synthesis.transitions",
		metric.WithDescription("Synthesis job status transitions."),
	); err != nil {
		return nil, err
	}

	if met.JobsInFlight, err = meter.Int64UpDownCounter("voice.synthesis.in_flight",
		metric.WithDescription("Synthesis jobs currently being processed."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = meter.Float64Histogram("voice.http.duration",
		metric.WithDescription("Latency of HTTP request handling."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordCollaborator records one backend call that started at start.
func (m *Metrics) RecordCollaborator(ctx context.Context, collaborator string, start time.Time, err error) {
	if m == nil {
		return
	}

	m.CollaboratorDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("collaborator", collaborator),
		attribute.String("outcome", Outcome(err)),
	))
}

// RecordTransition counts a job entering status.
func (m *Metrics) RecordTransition(ctx context.Context, status core.JobStatus) {
	if m == nil {
		return
	}

	m.JobTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

// JobStarted increments the in-flight gauge.
func (m *Metrics) JobStarted(ctx context.Context) {
	if m == nil {
		return
	}

	m.JobsInFlight.Add(ctx, 1)
}

// JobFinished decrements the in-flight gauge.
func (m *Metrics) JobFinished(ctx context.Context) {
	if m == nil {
		return
	}

	m.JobsInFlight.Add(ctx, -1)
}

// Outcome classifies err for the outcome attribute.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, core.ErrCollaboratorUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}

// InitProvider builds a MeterProvider backed by the Prometheus exporter and
// returns its metrics, the scrape handler and a shutdown function.
func InitProvider(ctx context.Context, serviceName string) (*Metrics, http.Handler, func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, nil, nil, err
	}

	exporter, err := promexporter.New()
	if err != nil {
		return nil, nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	met, err := NewMetrics(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)

		return nil, nil, nil, err
	}

	return met, promhttp.Handler(), provider.Shutdown, nil
}
