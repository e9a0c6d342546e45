// Package observe provides application-wide observability primitives for
// Voxgate: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxgate metrics.
const meterName = "github.com/voxgate-io/voxgate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// CallDuration tracks full call length from media start to teardown.
	CallDuration metric.Float64Histogram

	// ToolDuration tracks tool dispatch latency during a call.
	ToolDuration metric.Float64Histogram

	// SummaryDuration tracks post-call summary generation latency.
	SummaryDuration metric.Float64Histogram

	// --- Counters ---

	// CallsTotal counts calls by business and outcome. Use with attributes:
	//   attribute.String("business_id", ...), attribute.String("outcome", ...)
	CallsTotal metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// FramesDropped counts outbound audio frames dropped under backpressure.
	FramesDropped metric.Int64Counter

	// EmergencyTransfers counts DTMF-triggered live transfers by business.
	EmergencyTransfers metric.Int64Counter

	// Notifications counts post-call notification sends. Use with attributes:
	//   attribute.String("channel", ...), attribute.String("status", ...)
	Notifications metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of live calls across all businesses.
	ActiveCalls metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// sub-call operations like tool dispatch and summary generation.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// callBuckets defines histogram bucket boundaries (in seconds) for whole-call
// durations, which run from a few seconds up to the 30-minute hard cap.
var callBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 900, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CallDuration, err = m.Float64Histogram("voxgate.call.duration",
		metric.WithDescription("Call length from media start to teardown."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("voxgate.tool.duration",
		metric.WithDescription("Latency of tool dispatch during a call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SummaryDuration, err = m.Float64Histogram("voxgate.summary.duration",
		metric.WithDescription("Latency of post-call summary generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CallsTotal, err = m.Int64Counter("voxgate.calls",
		metric.WithDescription("Total calls by business and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("voxgate.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voxgate.bridge.frames_dropped",
		metric.WithDescription("Outbound audio frames dropped under backpressure."),
	); err != nil {
		return nil, err
	}
	if met.EmergencyTransfers, err = m.Int64Counter("voxgate.emergency.transfers",
		metric.WithDescription("DTMF-triggered live transfers by business."),
	); err != nil {
		return nil, err
	}
	if met.Notifications, err = m.Int64Counter("voxgate.notify.sends",
		metric.WithDescription("Post-call notification sends by channel and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("voxgate.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("voxgate.active_calls",
		metric.WithDescription("Number of live calls across all businesses."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxgate.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCallEnded records one finished call: duration histogram, outcome
// counter, and the active-calls gauge decrement.
func (m *Metrics) RecordCallEnded(ctx context.Context, businessID, outcome string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("business_id", businessID),
		attribute.String("outcome", outcome),
	)
	m.CallDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("business_id", businessID)))
	m.CallsTotal.Add(ctx, 1, attrs)
	m.ActiveCalls.Add(ctx, -1)
}

// RecordCallStarted increments the active-calls gauge.
func (m *Metrics) RecordCallStarted(ctx context.Context) {
	m.ActiveCalls.Add(ctx, 1)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment and its latency with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, seconds, attrs)
}

// RecordFramesDropped records outbound frames discarded under backpressure.
func (m *Metrics) RecordFramesDropped(ctx context.Context, businessID string, n int64) {
	if n <= 0 {
		return
	}
	m.FramesDropped.Add(ctx, n,
		metric.WithAttributes(attribute.String("business_id", businessID)))
}

// RecordEmergencyTransfer counts one DTMF-triggered live transfer.
func (m *Metrics) RecordEmergencyTransfer(ctx context.Context, businessID string) {
	m.EmergencyTransfers.Add(ctx, 1,
		metric.WithAttributes(attribute.String("business_id", businessID)))
}

// RecordNotification records one post-call notification send attempt.
func (m *Metrics) RecordNotification(ctx context.Context, channel, status string) {
	m.Notifications.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
