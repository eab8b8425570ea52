// Package assistant runs the voice assistant: wake word, command capture,
// execution and spoken feedback, driven by the phase [Machine].
//
// The assistant owns two recognizers that share one microphone. They never
// run at the same time: every hand-over stops one, waits a settling delay,
// then starts the other. All delayed work is tagged with a generation
// number that Disable bumps, so nothing scheduled before a Disable can run
// after it.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/digigov-voice/internal/observe"
	"github.com/MrWong99/digigov-voice/internal/resilience"
	"github.com/MrWong99/digigov-voice/internal/voice/command"
	"github.com/MrWong99/digigov-voice/internal/voice/form"
	"github.com/MrWong99/digigov-voice/internal/voice/speech"
	"github.com/MrWong99/digigov-voice/internal/voice/transcribe"
	"github.com/MrWong99/digigov-voice/internal/voice/wakeword"
	"github.com/MrWong99/digigov-voice/pkg/audio"
)

const (
	DefaultWakeWord           = "hey digigov"
	DefaultLanguage           = "en-IN"
	DefaultCommandTimeout     = 10 * time.Second
	DefaultCommandSettleDelay = 700 * time.Millisecond
	DefaultResumeDelay        = 1200 * time.Millisecond
	DefaultTimeoutResumeDelay = 500 * time.Millisecond
	DefaultHistoryLimit       = 50

	DefaultConfirmationPrompt = "Yes?"
	DefaultTimeoutPrompt      = "Sorry, I didn't hear a command."
)

var (
	// ErrPermissionDenied is returned by Enable when the microphone probe
	// is refused.
	ErrPermissionDenied = errors.New("assistant: microphone permission denied")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("assistant: closed")
)

// Config tunes the assistant. Zero values take the defaults above.
type Config struct {
	WakeWord        string
	Misrecognitions []string
	FuzzyThreshold  float64
	Language        string

	// SpeakConfirmation speaks ConfirmationPrompt after the wake word.
	SpeakConfirmation  bool
	ConfirmationPrompt string
	// TimeoutPrompt is spoken when no command arrives in time. Empty
	// disables it.
	TimeoutPrompt string

	CommandTimeout     time.Duration
	CommandSettleDelay time.Duration
	ResumeDelay        time.Duration
	TimeoutResumeDelay time.Duration

	// RestartDelay and RecoverDelay configure both recognizers.
	RestartDelay time.Duration
	RecoverDelay time.Duration

	HistoryLimit int
}

func (c *Config) applyDefaults() {
	if c.WakeWord == "" {
		c.WakeWord = DefaultWakeWord
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.ConfirmationPrompt == "" {
		c.ConfirmationPrompt = DefaultConfirmationPrompt
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.CommandSettleDelay <= 0 {
		c.CommandSettleDelay = DefaultCommandSettleDelay
	}
	if c.ResumeDelay <= 0 {
		c.ResumeDelay = DefaultResumeDelay
	}
	if c.TimeoutResumeDelay <= 0 {
		c.TimeoutResumeDelay = DefaultTimeoutResumeDelay
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
}

// Speaker produces spoken feedback. *speech.Service implements it.
type Speaker interface {
	Speak(ctx context.Context, text string, opts speech.Options) error
	StopSpeaking()
}

// TonePlayer plays the wake confirmation beep. *audio.TonePlayer
// implements it.
type TonePlayer interface {
	Play(ctx context.Context, t audio.Tone) error
}

// Prober checks microphone access. audio.Source implements it.
type Prober interface {
	Probe(ctx context.Context) error
}

// HistoryEntry is one executed command.
type HistoryEntry struct {
	ID         string         `json:"id"`
	Transcript string         `json:"transcript"`
	Command    string         `json:"command,omitempty"`
	Result     command.Result `json:"result"`
	At         time.Time      `json:"at"`
	Simulated  bool           `json:"simulated,omitempty"`
}

// Snapshot is the assistant state shown by indicator widgets.
type Snapshot struct {
	Enabled    bool           `json:"enabled"`
	Phase      Phase          `json:"phase"`
	Muted      bool           `json:"muted"`
	Transcript string         `json:"transcript"`
	WakeWord   string         `json:"wake_word"`
	LastError  string         `json:"last_error,omitempty"`
	History    []HistoryEntry `json:"history"`
}

// Option is a functional option for [New].
type Option func(*Assistant)

// WithSpeaker sets the spoken feedback service.
func WithSpeaker(s Speaker) Option { return func(a *Assistant) { a.speaker = s } }

// WithTone sets the confirmation tone player.
func WithTone(p TonePlayer) Option { return func(a *Assistant) { a.tone = p } }

// WithProber sets the microphone probe run by Enable.
func WithProber(p Prober) Option { return func(a *Assistant) { a.prober = p } }

// WithHost sets the initial host application.
func WithHost(h command.Host) Option { return func(a *Assistant) { a.host = h } }

// WithRoutes sets the navigable pages. Defaults to command.DefaultRoutes.
func WithRoutes(routes []command.Route) Option {
	return func(a *Assistant) { a.routes = routes }
}

// WithFiller sets the form field strategy.
func WithFiller(f *form.Filler) Option { return func(a *Assistant) { a.filler = f } }

// WithCommands registers extra commands ahead of the built-in grammar.
func WithCommands(cmds ...command.Command) Option {
	return func(a *Assistant) { a.extra = append(a.extra, cmds...) }
}

// WithRegistry replaces the command registry, e.g. to set its help prompt.
func WithRegistry(r *command.Registry) Option { return func(a *Assistant) { a.registry = r } }

// WithWakeBreaker caps consecutive failed wake recognizer starts.
func WithWakeBreaker(cb *resilience.CircuitBreaker) Option {
	return func(a *Assistant) { a.wakeBreaker = cb }
}

// WithMetrics records phase transitions and recognizer activity.
func WithMetrics(m *observe.Metrics) Option { return func(a *Assistant) { a.metrics = m } }

// Assistant is the voice assistant. All methods are safe for concurrent use.
type Assistant struct {
	cfg         Config
	machine     *Machine
	wake        *transcribe.Recognizer
	cmd         *transcribe.Recognizer
	detector    *wakeword.Detector
	registry    *command.Registry
	speaker     Speaker
	tone        TonePlayer
	prober      Prober
	filler      *form.Filler
	routes      []command.Route
	extra       []command.Command
	wakeBreaker *resilience.CircuitBreaker
	metrics     *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	enabled    bool
	closed     bool
	muted      bool
	gen        uint64
	pending    map[*time.Timer]struct{}
	timeout    *time.Timer
	host       command.Host
	transcript string
	lastError  string
	history    []HistoryEntry

	subMu   sync.Mutex
	subs    map[int]chan Event
	subsEnd bool // set by Close; later subscriptions start closed
	nextSub int
}

// New creates an assistant using wakeEngine for wake word spotting and
// commandEngine for command capture. The engines may share a microphone.
func New(cfg Config, wakeEngine, commandEngine transcribe.Engine, opts ...Option) *Assistant {
	cfg.applyDefaults()
	a := &Assistant{
		cfg:     cfg,
		machine: NewMachine(),
		routes:  command.DefaultRoutes(),
		pending: make(map[*time.Timer]struct{}),
		subs:    make(map[int]chan Event),
	}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = command.NewRegistry(command.WithMetrics(a.metrics))
	}
	if a.filler == nil {
		a.filler = form.NewFiller(nil)
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.detector = a.newDetector(cfg.WakeWord, cfg.Misrecognitions, cfg.FuzzyThreshold)

	wakeOpts := []transcribe.Option{
		transcribe.WithName("wake"),
		transcribe.WithErrorHandler(a.recognizerError("wake")),
		transcribe.WithMetrics(a.metrics),
	}
	if a.wakeBreaker != nil {
		wakeOpts = append(wakeOpts, transcribe.WithBreaker(a.wakeBreaker))
	}
	a.wake = transcribe.New(wakeEngine, transcribe.Config{
		Continuous:     true,
		InterimResults: true,
		Language:       cfg.Language,
		RestartDelay:   cfg.RestartDelay,
		RecoverDelay:   cfg.RecoverDelay,
	}, a.onWakeResult, wakeOpts...)

	a.cmd = transcribe.New(commandEngine, transcribe.Config{
		InterimResults: true,
		Language:       cfg.Language,
		RestartDelay:   cfg.RestartDelay,
		RecoverDelay:   cfg.RecoverDelay,
	}, a.onCommandResult,
		transcribe.WithName("command"),
		transcribe.WithErrorHandler(a.recognizerError("command")),
		transcribe.WithMetrics(a.metrics))

	a.machine.OnTransition(func(from, to Phase) {
		slog.Debug("assistant: phase", "from", from, "to", to)
		a.metrics.RecordPhaseTransition(context.Background(), string(from), string(to))
		a.publish(Event{Kind: EventPhase, Phase: to})
	})

	if err := a.registerCommands(a.host); err != nil {
		slog.Error("assistant: registering commands failed", "err", err)
	}
	return a
}

// Registry returns the command registry.
func (a *Assistant) Registry() *command.Registry { return a.registry }

// WakeWord returns the normalised wake word.
func (a *Assistant) WakeWord() string { return a.wakeDetector().WakeWord() }

// SetWakeWord replaces the activation phrase. An empty misrecognitions list
// selects the built-in variants for the phrase. The change applies to the
// next final wake transcript.
func (a *Assistant) SetWakeWord(word string, misrecognitions []string, fuzzyThreshold float64) {
	if word == "" {
		word = DefaultWakeWord
	}
	d := a.newDetector(word, misrecognitions, fuzzyThreshold)
	a.mu.Lock()
	a.detector = d
	a.cfg.WakeWord, a.cfg.Misrecognitions, a.cfg.FuzzyThreshold = word, misrecognitions, fuzzyThreshold
	a.mu.Unlock()
	slog.Info("assistant: wake word changed", "wake_word", d.WakeWord())
}

func (a *Assistant) newDetector(word string, misrecognitions []string, fuzzyThreshold float64) *wakeword.Detector {
	opts := []wakeword.Option{
		wakeword.WithFuzzyThreshold(fuzzyThreshold),
		wakeword.WithMetrics(a.metrics),
	}
	if len(misrecognitions) > 0 {
		opts = append(opts, wakeword.WithMisrecognitions(misrecognitions...))
	}
	return wakeword.New(word, a.onWakeDetected, opts...)
}

func (a *Assistant) wakeDetector() *wakeword.Detector {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.detector
}

// SetHost swaps the host application and re-registers the grammar, since
// the optional commands depend on what the host supports.
func (a *Assistant) SetHost(h command.Host) error {
	a.mu.Lock()
	a.host = h
	a.mu.Unlock()
	return a.registerCommands(h)
}

// SetRoutes swaps the navigable pages and re-registers the grammar.
func (a *Assistant) SetRoutes(routes []command.Route) error {
	a.mu.Lock()
	a.routes = slices.Clone(routes)
	h := a.host
	a.mu.Unlock()
	return a.registerCommands(h)
}

// SetFiller swaps the form field strategy and re-registers the grammar.
func (a *Assistant) SetFiller(f *form.Filler) error {
	a.mu.Lock()
	a.filler = f
	h := a.host
	a.mu.Unlock()
	return a.registerCommands(h)
}

func (a *Assistant) registerCommands(h command.Host) error {
	a.mu.Lock()
	routes, filler, extra := a.routes, a.filler, a.extra
	a.mu.Unlock()

	cmds := slices.Clone(extra)
	cmds = append(cmds, command.Builtin(command.BuiltinConfig{
		Host:     h,
		Controls: controls{a},
		Routes:   routes,
		Filler:   filler,
	})...)
	if err := a.registry.Replace(cmds); err != nil {
		return fmt.Errorf("assistant: register commands: %w", err)
	}
	return nil
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// Enable probes the microphone and starts wake word listening. A refused
// probe leaves the assistant idle and returns an error wrapping
// [ErrPermissionDenied].
func (a *Assistant) Enable(ctx context.Context) error {
	a.mu.Lock()
	switch {
	case a.closed:
		a.mu.Unlock()
		return ErrClosed
	case a.enabled:
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	if a.prober != nil {
		if err := a.prober.Probe(ctx); err != nil {
			if errors.Is(err, audio.ErrPermissionDenied) {
				err = fmt.Errorf("%w: %w", ErrPermissionDenied, err)
			} else {
				err = fmt.Errorf("assistant: microphone unavailable: %w", err)
			}
			a.fail(err.Error())
			slog.Warn("assistant: enable refused", "err", err)
			return err
		}
	}

	a.mu.Lock()
	switch {
	case a.closed:
		a.mu.Unlock()
		return ErrClosed
	case a.enabled:
		a.mu.Unlock()
		return nil
	}
	a.enabled = true
	a.gen++
	a.lastError = ""
	a.mu.Unlock()

	if err := a.machine.Transition(PhaseListeningWake); err != nil {
		slog.Warn("assistant: enable", "err", err)
	}
	a.publish(Event{Kind: EventEnabled, Enabled: true})
	slog.Info("assistant: enabled", "wake_word", a.WakeWord())
	a.startWake()
	return nil
}

// Disable stops everything from any phase and returns to idle.
func (a *Assistant) Disable() {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return
	}
	a.enabled = false
	a.invalidateLocked()
	a.mu.Unlock()

	a.wake.Abort()
	a.cmd.Abort()
	if a.speaker != nil {
		a.speaker.StopSpeaking()
	}
	if err := a.machine.Transition(PhaseIdle); err != nil {
		slog.Debug("assistant: disable", "err", err)
	}
	a.publish(Event{Kind: EventEnabled, Enabled: false})
	slog.Info("assistant: disabled")
}

// Toggle enables a disabled assistant and disables an enabled one.
func (a *Assistant) Toggle(ctx context.Context) error {
	if a.Enabled() {
		a.Disable()
		return nil
	}
	return a.Enable(ctx)
}

// Close disables the assistant and ends every subscription.
func (a *Assistant) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.Disable()
	// Disable is a no-op when idle; recognizers may still hold timers.
	a.wake.Abort()
	a.cmd.Abort()
	a.cancel()

	a.subMu.Lock()
	a.subsEnd = true
	for id, ch := range a.subs {
		close(ch)
		delete(a.subs, id)
	}
	a.subMu.Unlock()
	return nil
}

// invalidateLocked cancels every timer and bumps the generation.
func (a *Assistant) invalidateLocked() {
	a.gen++
	for t := range a.pending {
		t.Stop()
	}
	clear(a.pending)
	if a.timeout != nil {
		a.timeout.Stop()
		a.timeout = nil
	}
}

// after runs fn after d unless the generation changed meanwhile.
func (a *Assistant) after(gen uint64, d time.Duration, fn func(gen uint64)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen || !a.enabled {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		a.mu.Lock()
		delete(a.pending, t)
		live := gen == a.gen && a.enabled
		a.mu.Unlock()
		if live {
			fn(gen)
		}
	})
	a.pending[t] = struct{}{}
}

func (a *Assistant) current() (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen, a.enabled
}

func (a *Assistant) live(gen uint64) bool {
	g, on := a.current()
	return on && g == gen
}

// ─── Wake phase ──────────────────────────────────────────────────────────────

func (a *Assistant) startWake() {
	a.wake.ResetTranscript()
	if err := a.wake.StartListening(); err != nil {
		slog.Warn("assistant: wake recognizer failed to start", "err", err)
		a.fail(err.Error())
	}
}

func (a *Assistant) onWakeResult(text string, final bool) {
	if a.machine.Phase() != PhaseListeningWake {
		return
	}
	a.setTranscript(text, final)
	a.wakeDetector().Handle(text, final)
}

func (a *Assistant) onWakeDetected() {
	gen, on := a.current()
	if !on {
		return
	}
	if err := a.machine.TransitionFrom(PhaseListeningCommand, PhaseListeningWake); err != nil {
		return
	}
	slog.Info("assistant: wake word detected")
	a.wake.StopListening()
	go a.confirmWake(gen)
}

func (a *Assistant) confirmWake(gen uint64) {
	if a.tone != nil {
		if err := a.tone.Play(a.ctx, audio.ConfirmationTone); err != nil {
			slog.Debug("assistant: confirmation tone failed", "err", err)
		}
	}
	if a.cfg.SpeakConfirmation && a.live(gen) {
		a.say(a.cfg.ConfirmationPrompt)
	}
	a.after(gen, a.cfg.CommandSettleDelay, a.startCommand)
}

// ─── Command phase ───────────────────────────────────────────────────────────

func (a *Assistant) startCommand(gen uint64) {
	if a.machine.Phase() != PhaseListeningCommand || !a.live(gen) {
		return
	}
	a.cmd.ResetTranscript()
	if err := a.cmd.StartListening(); err != nil {
		slog.Warn("assistant: command recognizer failed to start", "err", err)
		a.fail(err.Error())
	}
	// Disable may have aborted the recognizer before it started.
	if !a.live(gen) {
		a.cmd.Abort()
		return
	}

	a.mu.Lock()
	if gen == a.gen && a.enabled {
		if a.timeout != nil {
			a.timeout.Stop()
		}
		a.timeout = time.AfterFunc(a.cfg.CommandTimeout, func() { a.onCommandTimeout(gen) })
	}
	a.mu.Unlock()
}

func (a *Assistant) clearTimeout() {
	a.mu.Lock()
	if a.timeout != nil {
		a.timeout.Stop()
		a.timeout = nil
	}
	a.mu.Unlock()
}

func (a *Assistant) onCommandResult(text string, final bool) {
	if a.machine.Phase() != PhaseListeningCommand {
		return
	}
	a.setTranscript(text, final)
	if !final {
		return
	}
	gen, on := a.current()
	if !on {
		return
	}
	if err := a.machine.TransitionFrom(PhaseProcessing, PhaseListeningCommand); err != nil {
		return
	}
	a.clearTimeout()
	a.cmd.StopListening()
	go a.process(gen, text)
}

func (a *Assistant) process(gen uint64, text string) {
	res := a.execute(a.ctx, text, false)
	if !a.live(gen) {
		return
	}

	if res.ShouldSpeak && res.Message != "" && !a.Muted() {
		if err := a.machine.TransitionFrom(PhaseSpeaking, PhaseProcessing); err == nil {
			a.say(res.Message)
		}
	}
	a.after(gen, a.cfg.ResumeDelay, a.resumeWake)
}

func (a *Assistant) resumeWake(gen uint64) {
	if a.machine.Phase() != PhaseListeningWake {
		if err := a.machine.TransitionFrom(PhaseListeningWake, PhaseProcessing, PhaseSpeaking); err != nil {
			slog.Debug("assistant: resume", "err", err)
			return
		}
	}
	if !a.live(gen) {
		return
	}
	a.startWake()
	if !a.live(gen) {
		a.wake.Abort()
	}
}

func (a *Assistant) onCommandTimeout(gen uint64) {
	if !a.live(gen) {
		return
	}
	if err := a.machine.TransitionFrom(PhaseListeningWake, PhaseListeningCommand); err != nil {
		return
	}
	a.mu.Lock()
	a.timeout = nil
	a.mu.Unlock()

	slog.Info("assistant: command timed out", "after", a.cfg.CommandTimeout)
	a.metrics.RecordCommandTimeout(context.Background())
	a.cmd.StopListening()

	go func() {
		if a.cfg.TimeoutPrompt != "" && !a.Muted() && a.live(gen) {
			a.say(a.cfg.TimeoutPrompt)
		}
		a.after(gen, a.cfg.TimeoutResumeDelay, a.resumeWake)
	}()
}

// ─── Execution ───────────────────────────────────────────────────────────────

func (a *Assistant) execute(ctx context.Context, text string, simulated bool) command.Result {
	a.mu.Lock()
	h := a.host
	a.mu.Unlock()

	env := command.Env{}
	if h != nil {
		env.Navigate = h.Navigate
		env.CurrentPath = h.CurrentPath()
		env.Document = h.Document()
	}

	name := ""
	if cmd, ok := a.registry.Match(text); ok {
		name = cmd.Name
	}
	id := uuid.NewString()
	res := a.registry.Execute(observe.WithCommandID(ctx, id), text, env)

	entry := HistoryEntry{
		ID:         id,
		Transcript: text,
		Command:    name,
		Result:     res,
		At:         time.Now(),
		Simulated:  simulated,
	}
	a.mu.Lock()
	a.history = append(a.history, entry)
	if over := len(a.history) - a.cfg.HistoryLimit; over > 0 {
		a.history = slices.Delete(a.history, 0, over)
	}
	a.mu.Unlock()

	a.publish(Event{Kind: EventCommand, Entry: &entry})
	return res
}

// Simulate runs text through the grammar as if it had been spoken as a
// command. It does not touch the microphone, the phase or speech output.
func (a *Assistant) Simulate(ctx context.Context, text string) (command.Result, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return command.Result{}, ErrClosed
	}
	return a.execute(ctx, text, true), nil
}

func (a *Assistant) say(text string) {
	if a.speaker == nil {
		return
	}
	err := a.speaker.Speak(a.ctx, text, speech.Options{})
	switch {
	case err == nil, errors.Is(err, speech.ErrInterrupted), errors.Is(err, context.Canceled):
	case errors.Is(err, speech.ErrUnsupported):
		slog.Debug("assistant: speech unsupported", "text", text)
	default:
		slog.Warn("assistant: speaking failed", "err", err)
	}
}

// ─── Errors ──────────────────────────────────────────────────────────────────

func (a *Assistant) recognizerError(name string) transcribe.ErrorFunc {
	return func(code transcribe.ErrorCode) {
		slog.Warn("assistant: recognition error", "recognizer", name, "code", code)
		a.fail(string(code))
		switch code {
		case transcribe.CodeNotAllowed, transcribe.CodeRestartExhausted:
			go a.Disable()
		}
	}
}

func (a *Assistant) fail(msg string) {
	a.mu.Lock()
	a.lastError = msg
	a.mu.Unlock()
	a.publish(Event{Kind: EventError, Error: msg})
}

// ─── State ───────────────────────────────────────────────────────────────────

func (a *Assistant) setTranscript(text string, final bool) {
	a.mu.Lock()
	a.transcript = text
	a.mu.Unlock()
	a.publish(Event{Kind: EventTranscript, Transcript: text, Final: final})
}

// Enabled reports whether the assistant is on.
func (a *Assistant) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Phase returns the current phase.
func (a *Assistant) Phase() Phase { return a.machine.Phase() }

// Transcript returns the most recent transcript, interim or final.
func (a *Assistant) Transcript() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transcript
}

// SetMuted turns spoken feedback off or on. Muting cuts off speech in
// progress.
func (a *Assistant) SetMuted(muted bool) {
	a.mu.Lock()
	changed := a.muted != muted
	a.muted = muted
	a.mu.Unlock()
	if !changed {
		return
	}
	if muted && a.speaker != nil {
		a.speaker.StopSpeaking()
	}
	a.publish(Event{Kind: EventMuted, Muted: muted})
}

// Muted reports whether spoken feedback is off.
func (a *Assistant) Muted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.muted
}

// History returns executed commands, oldest first.
func (a *Assistant) History() []HistoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.history)
}

// Snapshot returns the full displayable state.
func (a *Assistant) Snapshot() Snapshot {
	phase := a.machine.Phase()
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Enabled:    a.enabled,
		Phase:      phase,
		Muted:      a.muted,
		Transcript: a.transcript,
		WakeWord:   a.detector.WakeWord(),
		LastError:  a.lastError,
		History:    slices.Clone(a.history),
	}
}

// controls adapts the assistant to command.Controls.
type controls struct{ a *Assistant }

func (c controls) Disable()            { c.a.Disable() }
func (c controls) SetMuted(muted bool) { c.a.SetMuted(muted) }
