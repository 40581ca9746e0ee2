// Package observe provides observability primitives for toolwrap:
// OpenTelemetry metrics with a Prometheus exporter bridge so the serve
// command can expose a standard /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all toolwrap metrics.
const meterName = "github.com/jonwraymond/toolwrap"

// Metrics holds the OpenTelemetry metric instruments for the adapter engine.
// All fields are safe for concurrent use.
type Metrics struct {
	// CallDuration tracks end-to-end tool call latency, from dispatch to
	// result. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	CallDuration metric.Float64Histogram

	// Calls counts dispatched tool calls. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	Calls metric.Int64Counter

	// BackendStarts counts backend instance startups, including respawns
	// after a crash. Use with attribute:
	//   attribute.String("kind", ...)
	BackendStarts metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// subprocess and HTTP round trips.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CallDuration, err = m.Float64Histogram("toolwrap.call.duration",
		metric.WithDescription("End-to-end tool call latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Calls, err = m.Int64Counter("toolwrap.calls",
		metric.WithDescription("Total tool calls by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.BackendStarts, err = m.Int64Counter("toolwrap.backend.starts",
		metric.WithDescription("Backend startups by kind, including crash respawns."),
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
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordCall records one dispatched call: a counter increment and a latency
// observation with the standard attribute set. Status is "ok" for successful
// calls and the error kind otherwise.
func (m *Metrics) RecordCall(ctx context.Context, tool, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.Calls.Add(ctx, 1, attrs)
	m.CallDuration.Record(ctx, seconds, attrs)
}

// RecordBackendStart records one backend startup.
func (m *Metrics) RecordBackendStart(ctx context.Context, kind string) {
	m.BackendStarts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
