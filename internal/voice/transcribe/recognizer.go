package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/digigov-voice/internal/observe"
	"github.com/MrWong99/digigov-voice/internal/resilience"
)

const (
	// DefaultRestartDelay is the pause before restarting a session that ended
	// while the recognizer is still supposed to listen.
	DefaultRestartDelay = 100 * time.Millisecond

	// DefaultRecoverDelay is the pause before retrying after a transient error.
	DefaultRecoverDelay = time.Second
)

// ErrRestartExhausted is returned by [Recognizer.StartListening] while the
// recognizer's circuit breaker is open.
var ErrRestartExhausted = errors.New("transcribe: recognition restarts exhausted")

// Error implements error so codes can be reported to a circuit breaker.
func (c ErrorCode) Error() string { return "transcribe: " + string(c) }

// Config controls a [Recognizer].
type Config struct {
	// Continuous restarts the engine whenever a session ends while the
	// recognizer is listening.
	Continuous bool

	// InterimResults asks the engine for partial hypotheses.
	InterimResults bool

	// Language is passed to the engine for every session.
	Language string

	// RestartDelay defaults to [DefaultRestartDelay].
	RestartDelay time.Duration

	// RecoverDelay defaults to [DefaultRecoverDelay].
	RecoverDelay time.Duration
}

// ResultFunc receives transcripts. Final text is trimmed.
type ResultFunc func(text string, final bool)

// ErrorFunc receives errors the recognizer does not handle itself.
type ErrorFunc func(code ErrorCode)

// Option is a functional option for [New].
type Option func(*Recognizer)

// WithErrorHandler sets the callback for surfaced errors.
func WithErrorHandler(fn ErrorFunc) Option {
	return func(r *Recognizer) { r.onError = fn }
}

// WithBreaker gates every engine start through cb. Audio-capture and network
// failures count against it; any recognised speech counts as success.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(r *Recognizer) { r.breaker = cb }
}

// WithMetrics records restarts and errors.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Recognizer) { r.metrics = m }
}

// WithName labels log lines and metrics, e.g. "wake" or "command".
func WithName(name string) Option {
	return func(r *Recognizer) { r.name = name }
}

// Recognizer wraps an [Engine] with accumulation, auto-restart and error
// recovery. All methods are safe for concurrent use. Callbacks are never
// invoked while internal locks are held.
type Recognizer struct {
	engine   Engine
	cfg      Config
	onResult ResultFunc
	onError  ErrorFunc
	breaker  *resilience.CircuitBreaker
	metrics  *observe.Metrics
	name     string

	mu         sync.Mutex
	listening  bool
	starting   bool
	probing    bool // breaker admission waiting for an outcome
	transcript string
	timer      *time.Timer
	gen        uint64
}

// New creates a Recognizer and registers it as engine's listener. onResult
// must not be nil.
func New(engine Engine, cfg Config, onResult ResultFunc, opts ...Option) *Recognizer {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.RecoverDelay <= 0 {
		cfg.RecoverDelay = DefaultRecoverDelay
	}
	r := &Recognizer{
		engine:   engine,
		cfg:      cfg,
		onResult: onResult,
		name:     "recognizer",
	}
	for _, o := range opts {
		o(r)
	}
	engine.SetListener(engineListener{r})
	return r
}

// Name returns the recognizer's label.
func (r *Recognizer) Name() string { return r.name }

// IsListening reports whether the recognizer wants the engine running.
func (r *Recognizer) IsListening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listening
}

// Transcript returns all final text accumulated since the last reset.
func (r *Recognizer) Transcript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcript
}

// ResetTranscript clears the accumulated final text.
func (r *Recognizer) ResetTranscript() {
	r.mu.Lock()
	r.transcript = ""
	r.mu.Unlock()
}

// StartListening begins recognition. Calling it while already listening is a
// no-op. A failed start that the engine reports asynchronously is handled by
// the error policy rather than returned here.
func (r *Recognizer) StartListening() error {
	r.mu.Lock()
	if r.listening {
		r.mu.Unlock()
		return nil
	}
	r.listening = true
	r.cancelPendingLocked()
	r.mu.Unlock()
	return r.start()
}

// StopListening ends recognition gracefully. Pending restarts are cancelled
// and can no longer revive the session.
func (r *Recognizer) StopListening() {
	r.mu.Lock()
	r.listening = false
	r.cancelPendingLocked()
	r.mu.Unlock()
	r.engine.Stop()
}

// Abort ends recognition immediately, discarding pending results.
func (r *Recognizer) Abort() {
	r.mu.Lock()
	r.listening = false
	r.cancelPendingLocked()
	r.mu.Unlock()
	r.engine.Abort()
}

func (r *Recognizer) start() error {
	r.mu.Lock()
	if !r.listening || r.starting {
		r.mu.Unlock()
		return nil
	}
	if r.breaker != nil {
		if err := r.breaker.Allow(); err != nil {
			r.listening = false
			r.mu.Unlock()
			slog.Warn("transcribe: giving up on restarts", "recognizer", r.name, "err", err)
			r.metrics.RecordRecognitionError(context.Background(), r.name, string(CodeRestartExhausted))
			r.surface(CodeRestartExhausted)
			return ErrRestartExhausted
		}
		r.probing = true
	}
	r.starting = true
	opts := EngineOptions{
		Continuous:     r.cfg.Continuous,
		InterimResults: r.cfg.InterimResults,
		Language:       r.cfg.Language,
	}
	r.mu.Unlock()

	err := r.engine.Start(opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.starting = false
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAlreadyStarted):
		r.settleLocked(nil)
		slog.Debug("transcribe: engine already running", "recognizer", r.name)
		return nil
	default:
		r.settleLocked(err)
		r.listening = false
		return fmt.Errorf("transcribe: start %s: %w", r.name, err)
	}
}

// settleLocked reports the outcome of the current breaker admission, if any.
func (r *Recognizer) settleLocked(err error) {
	if !r.probing {
		return
	}
	r.probing = false
	r.breaker.Report(err)
}

// cancelPendingLocked stops the pending restart and invalidates any callback
// that already fired but has not yet acquired the lock.
func (r *Recognizer) cancelPendingLocked() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// scheduleLocked arms a restart after d unless one is already pending.
func (r *Recognizer) scheduleLocked(d time.Duration, reason string) {
	if r.timer != nil {
		return
	}
	gen := r.gen
	r.timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		if gen != r.gen {
			r.mu.Unlock()
			return
		}
		r.timer = nil
		listening := r.listening
		r.mu.Unlock()
		if !listening {
			return
		}
		slog.Debug("transcribe: restarting", "recognizer", r.name, "reason", reason)
		r.metrics.RecordRecognitionRestart(context.Background(), r.name, reason)
		if err := r.start(); err != nil && !errors.Is(err, ErrRestartExhausted) {
			slog.Warn("transcribe: restart failed", "recognizer", r.name, "err", err)
		}
	})
}

func (r *Recognizer) surface(code ErrorCode) {
	if r.onError != nil {
		r.onError(code)
	}
}

func (r *Recognizer) handleResults(segments []Segment) {
	var finals, interim []string
	for _, s := range segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		if s.Final {
			finals = append(finals, text)
		} else {
			interim = append(interim, text)
		}
	}
	final := strings.Join(finals, " ")

	r.mu.Lock()
	if final != "" {
		if r.transcript != "" {
			r.transcript += " "
		}
		r.transcript += final
	}
	if final != "" || len(interim) > 0 {
		r.settleLocked(nil)
	}
	r.mu.Unlock()

	if final != "" {
		r.onResult(final, true)
	}
	if len(interim) > 0 {
		r.onResult(strings.Join(interim, " "), false)
	}
}

func (r *Recognizer) handleEnd() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settleLocked(nil)
	if !r.listening || r.timer != nil {
		return
	}
	if r.cfg.Continuous {
		r.scheduleLocked(r.cfg.RestartDelay, "end")
		return
	}
	r.listening = false
}

func (r *Recognizer) handleError(code ErrorCode) {
	ctx := context.Background()
	switch code {
	case CodeAborted:
		r.mu.Lock()
		r.settleLocked(nil)
		r.mu.Unlock()
		slog.Debug("transcribe: session aborted", "recognizer", r.name)
		return

	case CodeNoSpeech, CodeAudioCapture:
		r.metrics.RecordRecognitionError(ctx, r.name, string(code))
		r.mu.Lock()
		if code == CodeAudioCapture {
			r.settleLocked(code)
		} else {
			r.settleLocked(nil)
		}
		if r.listening {
			r.scheduleLocked(r.cfg.RecoverDelay, string(code))
		}
		r.mu.Unlock()
		slog.Debug("transcribe: transient error", "recognizer", r.name, "code", code)
		return

	case CodeNotAllowed:
		r.mu.Lock()
		r.settleLocked(code)
		r.listening = false
		r.cancelPendingLocked()
		r.mu.Unlock()

	default:
		r.mu.Lock()
		r.settleLocked(code)
		r.mu.Unlock()
	}

	r.metrics.RecordRecognitionError(ctx, r.name, string(code))
	slog.Warn("transcribe: recognition error", "recognizer", r.name, "code", code)
	r.surface(code)
}

// engineListener keeps the Listener methods off the Recognizer's API.
type engineListener struct{ r *Recognizer }

func (l engineListener) OnResults(segments []Segment) { l.r.handleResults(segments) }
func (l engineListener) OnEnd()                       { l.r.handleEnd() }
func (l engineListener) OnError(code ErrorCode)       { l.r.handleError(code) }
