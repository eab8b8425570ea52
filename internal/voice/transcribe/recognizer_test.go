package transcribe_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/digigov-voice/internal/resilience"
	"github.com/MrWong99/digigov-voice/internal/voice/transcribe"
	"github.com/MrWong99/digigov-voice/internal/voice/transcribe/mock"
)

type result struct {
	text  string
	final bool
}

type recorder struct {
	mu      sync.Mutex
	results []result
	errs    []transcribe.ErrorCode
}

func (r *recorder) onResult(text string, final bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result{text, final})
}

func (r *recorder) onError(code transcribe.ErrorCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, code)
}

func (r *recorder) snapshot() ([]result, []transcribe.ErrorCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]result(nil), r.results...), append([]transcribe.ErrorCode(nil), r.errs...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newRecognizer(t *testing.T, cfg transcribe.Config, opts ...transcribe.Option) (*transcribe.Recognizer, *mock.Engine, *recorder) {
	t.Helper()
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 5 * time.Millisecond
	}
	if cfg.RecoverDelay == 0 {
		cfg.RecoverDelay = 10 * time.Millisecond
	}
	eng := &mock.Engine{}
	rec := &recorder{}
	opts = append([]transcribe.Option{transcribe.WithErrorHandler(rec.onError)}, opts...)
	r := transcribe.New(eng, cfg, rec.onResult, opts...)
	t.Cleanup(r.Abort)
	return r, eng, rec
}

func TestRecognizer_FinalsAccumulateInterimsDoNot(t *testing.T) {
	t.Parallel()

	r, eng, rec := newRecognizer(t, transcribe.Config{Continuous: true, InterimResults: true})
	if err := r.StartListening(); err != nil {
		t.Fatalf("StartListening: %v", err)
	}

	eng.EmitInterim("go to")
	eng.Emit(
		transcribe.Segment{Text: " go to dashboard ", Final: true},
		transcribe.Segment{Text: "please"},
	)
	eng.EmitFinal("open help")

	results, _ := rec.snapshot()
	want := []result{
		{"go to", false},
		{"go to dashboard", true},
		{"please", false},
		{"open help", true},
	}
	if len(results) != len(want) {
		t.Fatalf("got %d results %v, want %v", len(results), results, want)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("result[%d] = %+v, want %+v", i, results[i], want[i])
		}
	}
	if got := r.Transcript(); got != "go to dashboard open help" {
		t.Errorf("Transcript = %q", got)
	}

	r.ResetTranscript()
	if got := r.Transcript(); got != "" {
		t.Errorf("Transcript after reset = %q, want empty", got)
	}
}

func TestRecognizer_PassesEngineOptions(t *testing.T) {
	t.Parallel()

	r, eng, _ := newRecognizer(t, transcribe.Config{Continuous: true, InterimResults: true, Language: "hi-IN"})
	_ = r.StartListening()
	_ = r.StartListening()

	calls := eng.StartCalls()
	if len(calls) != 1 {
		t.Fatalf("Start called %d times, want 1", len(calls))
	}
	want := transcribe.EngineOptions{Continuous: true, InterimResults: true, Language: "hi-IN"}
	if calls[0] != want {
		t.Errorf("options = %+v, want %+v", calls[0], want)
	}
}

func TestRecognizer_RestartsAfterUnexpectedEnd(t *testing.T) {
	t.Parallel()

	r, eng, _ := newRecognizer(t, transcribe.Config{Continuous: true})
	_ = r.StartListening()

	eng.End()
	waitFor(t, "restart", func() bool { return eng.StartCount() == 2 })
	if !r.IsListening() {
		t.Error("recognizer stopped listening after restart")
	}
}

func TestRecognizer_OneShotDoesNotRestart(t *testing.T) {
	t.Parallel()

	r, eng, _ := newRecognizer(t, transcribe.Config{})
	_ = r.StartListening()
	eng.EmitFinal("submit the form")
	eng.End()

	time.Sleep(30 * time.Millisecond)
	if n := eng.StartCount(); n != 1 {
		t.Errorf("Start called %d times, want 1", n)
	}
	if r.IsListening() {
		t.Error("one-shot recognizer still listening after end")
	}
}

func TestRecognizer_StopCancelsPendingRestart(t *testing.T) {
	t.Parallel()

	r, eng, _ := newRecognizer(t, transcribe.Config{Continuous: true, RestartDelay: 20 * time.Millisecond})
	_ = r.StartListening()

	eng.End()
	r.StopListening()

	time.Sleep(60 * time.Millisecond)
	if n := eng.StartCount(); n != 1 {
		t.Fatalf("Start called %d times after stop, want 1", n)
	}
	if r.IsListening() {
		t.Error("IsListening = true after StopListening")
	}
}

func TestRecognizer_ErrorPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code        transcribe.ErrorCode
		surfaced    bool
		restarts    bool
		stillListen bool
	}{
		{transcribe.CodeAborted, false, true, true},
		{transcribe.CodeNoSpeech, false, true, true},
		{transcribe.CodeAudioCapture, false, true, true},
		{transcribe.CodeNotAllowed, true, false, false},
		{transcribe.CodeNetwork, true, true, true},
	}

	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			t.Parallel()

			r, eng, rec := newRecognizer(t, transcribe.Config{Continuous: true})
			_ = r.StartListening()
			eng.Fail(tc.code)

			if tc.restarts {
				waitFor(t, "restart", func() bool { return eng.StartCount() == 2 })
			} else {
				time.Sleep(40 * time.Millisecond)
				if n := eng.StartCount(); n != 1 {
					t.Errorf("Start called %d times, want 1", n)
				}
			}

			_, errs := rec.snapshot()
			if tc.surfaced {
				if len(errs) != 1 || errs[0] != tc.code {
					t.Errorf("surfaced errors = %v, want [%s]", errs, tc.code)
				}
			} else if len(errs) != 0 {
				t.Errorf("surfaced errors = %v, want none", errs)
			}
			if got := r.IsListening(); got != tc.stillListen {
				t.Errorf("IsListening = %v, want %v", got, tc.stillListen)
			}
		})
	}
}

func TestRecognizer_TransientErrorWaitsForRecoverDelay(t *testing.T) {
	t.Parallel()

	r, eng, _ := newRecognizer(t, transcribe.Config{
		Continuous:   true,
		RestartDelay: time.Millisecond,
		RecoverDelay: 80 * time.Millisecond,
	})
	_ = r.StartListening()
	eng.Fail(transcribe.CodeNoSpeech)

	time.Sleep(30 * time.Millisecond)
	if n := eng.StartCount(); n != 1 {
		t.Fatalf("restarted after %d starts before the recover delay", n)
	}
	waitFor(t, "recover restart", func() bool { return eng.StartCount() == 2 })
}

func TestRecognizer_BreakerGivesUp(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "wake",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})
	r, eng, rec := newRecognizer(t, transcribe.Config{Continuous: true}, transcribe.WithBreaker(cb))
	_ = r.StartListening()

	eng.Fail(transcribe.CodeAudioCapture)
	waitFor(t, "first recovery", func() bool { return eng.StartCount() == 2 })
	eng.Fail(transcribe.CodeAudioCapture)

	waitFor(t, "give up", func() bool {
		_, errs := rec.snapshot()
		return len(errs) > 0
	})
	if r.IsListening() {
		t.Error("IsListening = true after giving up")
	}
	_, errs := rec.snapshot()
	if len(errs) != 1 || errs[0] != transcribe.CodeRestartExhausted {
		t.Fatalf("errors = %v, want [restart-exhausted]", errs)
	}
	if n := eng.StartCount(); n != 2 {
		t.Errorf("Start called %d times, want 2", n)
	}
	if err := r.StartListening(); !errors.Is(err, transcribe.ErrRestartExhausted) {
		t.Errorf("StartListening = %v, want ErrRestartExhausted", err)
	}
}

func TestRecognizer_ResultsKeepBreakerClosed(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	r, eng, _ := newRecognizer(t, transcribe.Config{Continuous: true}, transcribe.WithBreaker(cb))
	_ = r.StartListening()

	for i := range 4 {
		eng.EmitFinal("hello")
		eng.Fail(transcribe.CodeAudioCapture)
		waitFor(t, "restart", func() bool { return eng.StartCount() == i+2 })
	}
	if cb.State() != resilience.StateClosed {
		t.Fatalf("breaker state = %v, want closed", cb.State())
	}
}

func TestRecognizer_AlreadyStartedIsBenign(t *testing.T) {
	t.Parallel()

	eng := &mock.Engine{StartErr: transcribe.ErrAlreadyStarted}
	r := transcribe.New(eng, transcribe.Config{Continuous: true}, func(string, bool) {})
	if err := r.StartListening(); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	if !r.IsListening() {
		t.Error("IsListening = false")
	}
}

func TestRecognizer_StartFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("engine broken")
	eng := &mock.Engine{StartErr: boom}
	r := transcribe.New(eng, transcribe.Config{Continuous: true}, func(string, bool) {})
	if err := r.StartListening(); !errors.Is(err, boom) {
		t.Fatalf("StartListening = %v, want %v", err, boom)
	}
	if r.IsListening() {
		t.Error("IsListening = true after failed start")
	}
}

func TestRecognizer_AbortSwallowsAbortedError(t *testing.T) {
	t.Parallel()

	r, eng, rec := newRecognizer(t, transcribe.Config{Continuous: true})
	_ = r.StartListening()
	r.Abort()

	time.Sleep(20 * time.Millisecond)
	if _, errs := rec.snapshot(); len(errs) != 0 {
		t.Errorf("errors = %v, want none", errs)
	}
	if eng.StartCount() != 1 || eng.AbortCount() != 1 {
		t.Errorf("starts=%d aborts=%d, want 1 and 1", eng.StartCount(), eng.AbortCount())
	}
}
