// Package observe provides application-wide observability primitives for
// recut: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all recut metrics.
const meterName = "github.com/MrWong99/recut"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RebuildDuration tracks the transcript-driven audio rebuild latency.
	RebuildDuration metric.Float64Histogram

	// InternDuration tracks command execution latency (SFX + spoken inserts).
	InternDuration metric.Float64Histogram

	// LLMDuration tracks intent/answer completion latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// PauseDuration tracks the pause-compression pass latency.
	PauseDuration metric.Float64Histogram

	// ChunkDuration tracks per-chunk worker processing latency.
	ChunkDuration metric.Float64Histogram

	// --- Counters ---

	// FillersRemoved counts filler words cut from episodes.
	FillersRemoved metric.Int64Counter

	// CommandsExecuted counts command events by intent and status. Use with:
	//   attribute.String("intent", ...), attribute.String("status", ...)
	CommandsExecuted metric.Int64Counter

	// SFXOverlays counts sound-effect events by status ("applied"/"skipped").
	SFXOverlays metric.Int64Counter

	// ChunkRetries counts re-dispatches of stuck chunks.
	ChunkRetries metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveJobs tracks the number of episodes currently being processed.
	ActiveJobs metric.Int64UpDownCounter

	// ChunksInFlight tracks dispatched chunks awaiting a cleaned artifact.
	ChunksInFlight metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// batch audio-editing stages, which run longer than request/response work.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RebuildDuration, err = m.Float64Histogram("recut.rebuild.duration",
		metric.WithDescription("Latency of the transcript-driven audio rebuild."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InternDuration, err = m.Float64Histogram("recut.intern.duration",
		metric.WithDescription("Latency of command execution (SFX overlays and spoken inserts)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("recut.llm.duration",
		metric.WithDescription("Latency of intent classification and answer generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("recut.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PauseDuration, err = m.Float64Histogram("recut.pause.duration",
		metric.WithDescription("Latency of the guarded pause-compression pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChunkDuration, err = m.Float64Histogram("recut.chunk.duration",
		metric.WithDescription("Per-chunk worker processing latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FillersRemoved, err = m.Int64Counter("recut.fillers.removed",
		metric.WithDescription("Total filler words cut from episodes."),
	); err != nil {
		return nil, err
	}
	if met.CommandsExecuted, err = m.Int64Counter("recut.commands.executed",
		metric.WithDescription("Total command events by intent and status."),
	); err != nil {
		return nil, err
	}
	if met.SFXOverlays, err = m.Int64Counter("recut.sfx.overlays",
		metric.WithDescription("Total sound-effect events by status."),
	); err != nil {
		return nil, err
	}
	if met.ChunkRetries, err = m.Int64Counter("recut.chunk.retries",
		metric.WithDescription("Total re-dispatches of stuck chunks."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("recut.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveJobs, err = m.Int64UpDownCounter("recut.active_jobs",
		metric.WithDescription("Number of episodes currently being processed."),
	); err != nil {
		return nil, err
	}
	if met.ChunksInFlight, err = m.Int64UpDownCounter("recut.chunks_in_flight",
		metric.WithDescription("Dispatched chunks awaiting a cleaned artifact."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("recut.http.request.duration",
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

// RecordCommand is a convenience method that records a command execution
// counter increment with the standard attribute set.
func (m *Metrics) RecordCommand(ctx context.Context, intent, status string) {
	m.CommandsExecuted.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("intent", intent),
			attribute.String("status", status),
		),
	)
}

// RecordSFX is a convenience method that records one sound-effect event.
func (m *Metrics) RecordSFX(ctx context.Context, status string) {
	m.SFXOverlays.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
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
