package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the int64 sum data point carrying key=value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	t.Fatalf("metric %q: no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"digigov.voice.command.duration", m.CommandDuration},
		{"digigov.voice.speech.duration", m.SpeechDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordWakeDetection(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordWakeDetection(ctx, false)
	m.RecordWakeDetection(ctx, false)
	m.RecordWakeDetection(ctx, true)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "digigov.voice.wake.detections", "outcome", "accepted"); got != 2 {
		t.Errorf("accepted = %d, want 2", got)
	}
	if got := sumFor(t, rm, "digigov.voice.wake.detections", "outcome", "debounced"); got != 1 {
		t.Errorf("debounced = %d, want 1", got)
	}
}

func TestRecordCommand(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCommand(ctx, "navigation", "success", 0.01)
	m.RecordCommand(ctx, "navigation", "success", 0.02)
	m.RecordCommand(ctx, "none", "unmatched", 0.001)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "digigov.voice.commands", "status", "success"); got != 2 {
		t.Errorf("success = %d, want 2", got)
	}
	if got := sumFor(t, rm, "digigov.voice.commands", "status", "unmatched"); got != 1 {
		t.Errorf("unmatched = %d, want 1", got)
	}
	if findMetric(rm, "digigov.voice.command.duration") == nil {
		t.Error("command duration not recorded")
	}
}

func TestRecognitionCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRecognitionRestart(ctx, "wake", "end")
	m.RecordRecognitionError(ctx, "command", "network")
	m.RecordCommandTimeout(ctx)
	m.RecordPhaseTransition(ctx, "idle", "listening-wake")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "digigov.voice.recognition.restarts", "reason", "end"); got != 1 {
		t.Errorf("restarts = %d, want 1", got)
	}
	if got := sumFor(t, rm, "digigov.voice.recognition.errors", "code", "network"); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
	if got := sumFor(t, rm, "digigov.voice.command.timeouts", "", ""); got != 1 {
		t.Errorf("timeouts = %d, want 1", got)
	}
	if got := sumFor(t, rm, "digigov.voice.phase.transitions", "to", "listening-wake"); got != 1 {
		t.Errorf("transitions = %d, want 1", got)
	}
}

func TestRecordSpeech(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSpeech(ctx, 1.2, false)
	m.RecordSpeech(ctx, 0.3, true)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "digigov.voice.speech.interruptions", "", ""); got != 1 {
		t.Errorf("interruptions = %d, want 1", got)
	}
}

func TestProviderErrorsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "openai", "tts")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "digigov.provider.errors", "kind", "tts"); got != 1 {
		t.Errorf("counter value = %d, want 1", got)
	}
}

func TestActiveClientsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ClientConnected(ctx, 1)
	m.ClientConnected(ctx, 1)
	m.ClientConnected(ctx, -1)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "digigov.hub.active_clients", "", ""); got != 1 {
		t.Errorf("gauge value = %d, want 1", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "digigov.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestNilMetrics_NoPanic(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordWakeDetection(ctx, true)
	m.RecordCommand(ctx, "form", "failure", 1)
	m.RecordPhaseTransition(ctx, "a", "b")
	m.RecordCommandTimeout(ctx)
	m.RecordRecognitionRestart(ctx, "wake", "end")
	m.RecordRecognitionError(ctx, "wake", "network")
	m.RecordSpeech(ctx, 1, true)
	m.RecordProviderError(ctx, "x", "y")
	m.ClientConnected(ctx, 1)
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
