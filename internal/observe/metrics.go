// Package observe provides application-wide observability primitives for the
// voice assistant: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] and served by [Handler] on
// the /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
//
// All Record* helpers are safe to call on a nil *Metrics, so components can
// treat metrics as optional.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/digigov-voice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// CommandDuration tracks time from final transcript to command result.
	CommandDuration metric.Float64Histogram

	// SpeechDuration tracks how long an utterance took to synthesise and
	// play.
	SpeechDuration metric.Float64Histogram

	// --- Counters ---

	// WakeDetections counts wake-word hits. Use with attribute:
	//   attribute.String("outcome", "accepted"|"debounced")
	WakeDetections metric.Int64Counter

	// Commands counts executed transcripts. Use with attributes:
	//   attribute.String("category", ...), attribute.String("status", ...)
	Commands metric.Int64Counter

	// PhaseTransitions counts assistant phase changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	PhaseTransitions metric.Int64Counter

	// CommandTimeouts counts command windows that closed without speech.
	CommandTimeouts metric.Int64Counter

	// RecognitionRestarts counts automatic recognizer restarts. Use with
	// attributes: attribute.String("recognizer", ...), attribute.String("reason", ...)
	RecognitionRestarts metric.Int64Counter

	// SpeechInterruptions counts utterances cut short by a newer one or by
	// StopSpeaking.
	SpeechInterruptions metric.Int64Counter

	// --- Error counters ---

	// RecognitionErrors counts recognizer errors. Use with attributes:
	//   attribute.String("recognizer", ...), attribute.String("code", ...)
	RecognitionErrors metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveClients tracks the number of connected UI websocket clients.
	ActiveClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for command
// handling and speech playback.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CommandDuration, err = m.Float64Histogram("digigov.voice.command.duration",
		metric.WithDescription("Latency of voice command execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechDuration, err = m.Float64Histogram("digigov.voice.speech.duration",
		metric.WithDescription("Duration of spoken feedback including synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WakeDetections, err = m.Int64Counter("digigov.voice.wake.detections",
		metric.WithDescription("Wake-word detections by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("digigov.voice.commands",
		metric.WithDescription("Executed voice commands by category and status."),
	); err != nil {
		return nil, err
	}
	if met.PhaseTransitions, err = m.Int64Counter("digigov.voice.phase.transitions",
		metric.WithDescription("Assistant phase transitions by source and target phase."),
	); err != nil {
		return nil, err
	}
	if met.CommandTimeouts, err = m.Int64Counter("digigov.voice.command.timeouts",
		metric.WithDescription("Command windows that expired without a command."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionRestarts, err = m.Int64Counter("digigov.voice.recognition.restarts",
		metric.WithDescription("Automatic speech recognition restarts by recognizer and reason."),
	); err != nil {
		return nil, err
	}
	if met.SpeechInterruptions, err = m.Int64Counter("digigov.voice.speech.interruptions",
		metric.WithDescription("Utterances interrupted before completion."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.RecognitionErrors, err = m.Int64Counter("digigov.voice.recognition.errors",
		metric.WithDescription("Speech recognition errors by recognizer and code."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("digigov.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveClients, err = m.Int64UpDownCounter("digigov.hub.active_clients",
		metric.WithDescription("Number of connected UI clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("digigov.http.request.duration",
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

// RecordWakeDetection counts a wake-word hit.
func (m *Metrics) RecordWakeDetection(ctx context.Context, debounced bool) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if debounced {
		outcome = "debounced"
	}
	m.WakeDetections.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCommand counts an executed transcript and its latency in seconds.
func (m *Metrics) RecordCommand(ctx context.Context, category, status string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("status", status),
	)
	m.Commands.Add(ctx, 1, attrs)
	m.CommandDuration.Record(ctx, seconds, attrs)
}

// RecordPhaseTransition counts a phase change.
func (m *Metrics) RecordPhaseTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.PhaseTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordCommandTimeout counts an expired command window.
func (m *Metrics) RecordCommandTimeout(ctx context.Context) {
	if m == nil {
		return
	}
	m.CommandTimeouts.Add(ctx, 1)
}

// RecordRecognitionRestart counts an automatic recognizer restart.
func (m *Metrics) RecordRecognitionRestart(ctx context.Context, recognizer, reason string) {
	if m == nil {
		return
	}
	m.RecognitionRestarts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("recognizer", recognizer),
			attribute.String("reason", reason),
		),
	)
}

// RecordRecognitionError counts a recognizer error.
func (m *Metrics) RecordRecognitionError(ctx context.Context, recognizer, code string) {
	if m == nil {
		return
	}
	m.RecognitionErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("recognizer", recognizer),
			attribute.String("code", code),
		),
	)
}

// RecordSpeech records a completed or interrupted utterance.
func (m *Metrics) RecordSpeech(ctx context.Context, seconds float64, interrupted bool) {
	if m == nil {
		return
	}
	m.SpeechDuration.Record(ctx, seconds)
	if interrupted {
		m.SpeechInterruptions.Add(ctx, 1)
	}
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// ClientConnected adjusts the active client gauge by delta (+1 or -1).
func (m *Metrics) ClientConnected(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ActiveClients.Add(ctx, delta)
}
