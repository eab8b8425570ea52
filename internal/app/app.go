// Package app wires all DigiGov voice subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and the browser hub until the context ends, and
// Shutdown tears everything down in order. Reload applies a changed config
// without restarting.
//
// For testing, inject doubles via functional options (WithEngines,
// WithHotkeyBinding, etc.). When an option is not provided, New builds real
// implementations from the config and providers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/digigov-voice/internal/activator"
	"github.com/MrWong99/digigov-voice/internal/config"
	"github.com/MrWong99/digigov-voice/internal/health"
	"github.com/MrWong99/digigov-voice/internal/hub"
	"github.com/MrWong99/digigov-voice/internal/observe"
	"github.com/MrWong99/digigov-voice/internal/resilience"
	"github.com/MrWong99/digigov-voice/internal/voice/assistant"
	"github.com/MrWong99/digigov-voice/internal/voice/command"
	"github.com/MrWong99/digigov-voice/internal/voice/form"
	"github.com/MrWong99/digigov-voice/internal/voice/speech"
	"github.com/MrWong99/digigov-voice/internal/voice/transcribe"
	"github.com/MrWong99/digigov-voice/pkg/audio"
	"github.com/MrWong99/digigov-voice/pkg/provider/stt"
	"github.com/MrWong99/digigov-voice/pkg/provider/tts"
	"github.com/MrWong99/digigov-voice/pkg/provider/vad"
)

const (
	// shutdownTimeout bounds the HTTP server drain in Run.
	shutdownTimeout = 5 * time.Second

	// toneSampleRate is the rate the wake confirmation beep is rendered at.
	toneSampleRate = 16000
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	STT   stt.Provider
	TTS   tts.Provider
	VAD   vad.Engine
	Audio config.AudioDevice
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics  *observe.Metrics
	promReg  *prometheus.Registry
	logLevel *slog.LevelVar
	listener net.Listener
	binding  activator.Binding

	// activator is nil when the hotkey is disabled or has no backend.
	activator *activator.Activator

	// Subsystems, initialised in New and torn down in Shutdown.
	wakeEngine transcribe.Engine
	cmdEngine  transcribe.Engine
	speech     *speech.Service
	hub        *hub.Hub
	assistant  *assistant.Assistant
	health     *health.Handler
	handler    http.Handler

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithEngines injects the wake and command recognition engines instead of
// streaming from the configured microphone and STT provider.
func WithEngines(wake, cmd transcribe.Engine) Option {
	return func(a *App) {
		a.wakeEngine = wake
		a.cmdEngine = cmd
	}
}

// WithMetrics sets the metric instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithPrometheusRegistry selects the registry served on /metrics. When unset
// the default gatherer is served.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(a *App) { a.promReg = reg }
}

// WithLogLevel lets [App.Reload] adjust the process log level.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithListener makes Run serve on l instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithHotkeyBinding injects the key binding used when the hotkey is enabled.
func WithHotkeyBinding(b activator.Binding) Option {
	return func(a *App) { a.binding = b }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Speech output ─────────────────────────────────────────────────
	a.initSpeech()

	// ── 2. Recognition engines ───────────────────────────────────────────
	a.initEngines()

	// ── 3. Browser hub ───────────────────────────────────────────────────
	a.hub = hub.New(nil,
		hub.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		hub.WithMetrics(a.metrics),
	)

	// ── 4. Assistant ─────────────────────────────────────────────────────
	a.initAssistant()
	a.hub.Attach(a.assistant)
	a.closers = append(a.closers, a.assistant.Close)
	if err := a.initHotkey(); err != nil {
		return nil, err
	}

	// ── 5. Health + HTTP surface ─────────────────────────────────────────
	a.initHealth()
	a.handler = observe.Middleware(a.metrics)(a.routes())

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initSpeech builds the speech service. Without a TTS provider or speaker the
// service reports itself unsupported and the assistant stays silent.
func (a *App) initSpeech() {
	var synth speech.Synthesizer
	if a.providers.TTS != nil && a.providers.Audio != nil {
		synth = speech.NewPlaybackSynthesizer(a.providers.TTS, a.providers.Audio)
	} else {
		slog.Warn("app: speech output disabled", "tts", a.providers.TTS != nil, "audio", a.providers.Audio != nil)
	}
	a.speech = speech.New(synth,
		speech.WithDefaults(a.cfg.Speech),
		speech.WithMetrics(a.metrics),
	)
}

// initEngines creates one streaming engine per recognizer. Both share the
// microphone; the assistant never runs them at the same time.
func (a *App) initEngines() {
	if a.wakeEngine != nil && a.cmdEngine != nil {
		return
	}
	if a.providers.STT == nil || a.providers.Audio == nil {
		slog.Warn("app: speech recognition unavailable; only simulated commands will run",
			"stt", a.providers.STT != nil, "audio", a.providers.Audio != nil)
		a.wakeEngine, a.cmdEngine = newOfflineEngine(), newOfflineEngine()
		return
	}

	ac := a.cfg.Assistant
	var opts []transcribe.StreamingOption
	if a.providers.VAD != nil {
		mode, _ := config.OptInt(a.cfg.Providers.VAD.Options, "mode")
		opts = append(opts, transcribe.WithVAD(a.providers.VAD, mode))
	}
	if ac.NoSpeechTimeout > 0 {
		opts = append(opts, transcribe.WithNoSpeechTimeout(ac.NoSpeechTimeout))
	}
	if kw := keywords(ac); len(kw) > 0 {
		opts = append(opts, transcribe.WithKeywords(kw...))
	}
	wake := transcribe.NewStreamingEngine(a.providers.Audio, a.providers.STT, opts...)
	cmd := transcribe.NewStreamingEngine(a.providers.Audio, a.providers.STT, opts...)
	a.wakeEngine, a.cmdEngine = wake, cmd
	a.closers = append(a.closers, func() error {
		wake.Abort()
		cmd.Abort()
		wake.Wait()
		cmd.Wait()
		return nil
	})
}

// keywords boosts the wake word and configured vocabulary.
func keywords(ac config.AssistantConfig) []stt.KeywordBoost {
	kw := []stt.KeywordBoost{{Keyword: ac.WakeWord, Boost: 2}}
	for _, k := range ac.Keywords {
		kw = append(kw, stt.KeywordBoost{Keyword: k, Boost: 1})
	}
	return kw
}

func (a *App) initAssistant() {
	ac := a.cfg.Assistant
	registry := command.NewRegistry(
		command.WithHelpPrompt(ac.HelpPrompt),
		command.WithSuggestionThreshold(ac.SuggestionThreshold),
		command.WithMetrics(a.metrics),
	)

	opts := []assistant.Option{
		assistant.WithHost(a.hub),
		assistant.WithRegistry(registry),
		assistant.WithRoutes(a.cfg.Routes),
		assistant.WithFiller(newFiller(a.cfg.FormSelectors)),
		assistant.WithWakeBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "wake"})),
		assistant.WithMetrics(a.metrics),
	}
	if a.speech.Supported() {
		opts = append(opts, assistant.WithSpeaker(a.speech))
	}
	if a.providers.Audio != nil {
		opts = append(opts,
			assistant.WithProber(a.providers.Audio),
			assistant.WithTone(audio.NewTonePlayer(a.providers.Audio, toneSampleRate)),
		)
	}

	a.assistant = assistant.New(assistantConfig(ac), a.wakeEngine, a.cmdEngine, opts...)
}

// initHotkey prepares the global shortcut. A binary built without a hotkey
// backend logs a warning and runs without it.
func (a *App) initHotkey() error {
	hk := a.cfg.Hotkey
	if !hk.Enabled {
		return nil
	}
	var opts []activator.Option
	if a.binding != nil {
		opts = append(opts, activator.WithBinding(a.binding))
	}
	act, err := activator.New(a.assistant, hk.Shortcut, opts...)
	switch {
	case errors.Is(err, activator.ErrUnsupported):
		slog.Warn("app: global hotkey not available in this build", "shortcut", hk.Shortcut)
		return nil
	case err != nil:
		return fmt.Errorf("app: hotkey: %w", err)
	}
	a.activator = act
	return nil
}

func assistantConfig(ac config.AssistantConfig) assistant.Config {
	return assistant.Config{
		WakeWord:           ac.WakeWord,
		Misrecognitions:    ac.Misrecognitions,
		FuzzyThreshold:     ac.FuzzyThreshold,
		Language:           ac.Language,
		SpeakConfirmation:  ac.SpeakConfirmation,
		ConfirmationPrompt: ac.ConfirmationPrompt,
		TimeoutPrompt:      ac.TimeoutPrompt,
		CommandTimeout:     ac.CommandTimeout,
		CommandSettleDelay: ac.CommandSettleDelay,
		ResumeDelay:        ac.ResumeDelay,
		TimeoutResumeDelay: ac.TimeoutResumeDelay,
		HistoryLimit:       ac.HistoryLimit,
	}
}

func newFiller(overrides form.Strategy) *form.Filler {
	return form.NewFiller(form.DefaultStrategy().Merge(overrides))
}

// initHealth registers readiness checks for the microphone and any provider
// group with circuit breakers.
func (a *App) initHealth() {
	var checks []health.Checker
	if a.providers.Audio != nil {
		checks = append(checks, health.Microphone(a.providers.Audio))
	}
	if r, ok := a.providers.STT.(health.BreakerReporter); ok {
		checks = append(checks, health.Breakers("stt", r))
	}
	if r, ok := a.providers.TTS.(health.BreakerReporter); ok {
		checks = append(checks, health.Breakers("tts", r))
	}
	a.health = health.New(checks...)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Assistant returns the voice assistant.
func (a *App) Assistant() *assistant.Assistant { return a.assistant }

// Speech returns the speech output service.
func (a *App) Speech() *speech.Service { return a.speech }

// Handler returns the HTTP handler serving the API, hub and probes.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP, forwards assistant events to browsers and, when
// configured, listens for the global hotkey and enables the assistant. It
// blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
		}
	}
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		return a.hub.Run(gctx)
	})

	if act := a.activator; act != nil {
		g.Go(func() error { return act.Run(gctx) })
	}

	if a.cfg.Assistant.AutoEnable {
		g.Go(func() error {
			if err := a.assistant.Enable(gctx); err != nil {
				slog.Warn("app: auto-enable failed", "err", err)
			}
			return nil
		})
	}

	slog.Info("app running", "addr", ln.Addr().String(), "wake_word", a.assistant.WakeWord())
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.speech.StopSpeaking()

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
