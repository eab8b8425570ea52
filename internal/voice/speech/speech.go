// Package speech is the assistant's spoken-output service.
//
// [Service] serialises utterances: a new [Service.Speak] cancels whatever is
// playing, waits for it to go silent, and only then starts. The call that
// was cut off returns [ErrInterrupted]. Rendering and playback are delegated
// to a [Synthesizer]; [PlaybackSynthesizer] is the production one, built on
// a tts.Provider and an audio.Sink.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/digigov-voice/internal/observe"
	"github.com/MrWong99/digigov-voice/pkg/provider/tts"
)

var (
	// ErrInterrupted is returned by Speak when a newer utterance or
	// StopSpeaking cut it off.
	ErrInterrupted = errors.New("speech: interrupted")

	// ErrUnsupported is returned when no synthesizer is configured.
	ErrUnsupported = errors.New("speech: synthesis not supported")

	// ErrNoVoice is returned by PreferredVoice when the synthesizer offers
	// no voices.
	ErrNoVoice = errors.New("speech: no voice available")
)

// Options tune one utterance. Zero fields take the service defaults.
type Options struct {
	Lang   string  `yaml:"lang" toml:"lang"`
	Rate   float64 `yaml:"rate" toml:"rate"`
	Pitch  float64 `yaml:"pitch" toml:"pitch"`
	Volume float64 `yaml:"volume" toml:"volume"`
	Voice  string  `yaml:"voice" toml:"voice"`
}

// DefaultOptions are used when the service is created without defaults.
var DefaultOptions = Options{Lang: "en-IN", Rate: 1, Pitch: 1, Volume: 1}

// Merge returns o with zero fields filled from base.
func (o Options) Merge(base Options) Options {
	if o.Lang == "" {
		o.Lang = base.Lang
	}
	if o.Rate == 0 {
		o.Rate = base.Rate
	}
	if o.Pitch == 0 {
		o.Pitch = base.Pitch
	}
	if o.Volume == 0 {
		o.Volume = base.Volume
	}
	if o.Voice == "" {
		o.Voice = base.Voice
	}
	return o
}

// Synthesizer renders and plays text.
type Synthesizer interface {
	// Speak blocks until text has been played or ctx is cancelled.
	Speak(ctx context.Context, text string, opts Options) error

	// Voices lists the available voices.
	Voices(ctx context.Context) ([]tts.Voice, error)
}

// Option is a functional option for [New].
type Option func(*Service)

// WithDefaults sets the options merged under every Speak call.
func WithDefaults(o Options) Option {
	return func(s *Service) { s.defaults = o.Merge(DefaultOptions) }
}

// WithMetrics records utterance durations.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service plays one utterance at a time. It is safe for concurrent use.
type Service struct {
	synth    Synthesizer
	defaults Options
	metrics  *observe.Metrics

	mu      sync.Mutex
	current *utterance
}

type utterance struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	interrupted bool
}

func (u *utterance) interrupt() {
	u.mu.Lock()
	u.interrupted = true
	u.mu.Unlock()
	u.cancel()
}

func (u *utterance) wasInterrupted() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.interrupted
}

// New creates a Service. A nil synth yields a service whose Speak always
// returns [ErrUnsupported].
func New(synth Synthesizer, opts ...Option) *Service {
	s := &Service{synth: synth, defaults: DefaultOptions}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Supported reports whether a synthesizer is configured.
func (s *Service) Supported() bool { return s.synth != nil }

// Defaults returns the options merged under every utterance.
func (s *Service) Defaults() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults
}

// SetDefaults replaces the service defaults for subsequent utterances.
func (s *Service) SetDefaults(o Options) {
	s.mu.Lock()
	s.defaults = o.Merge(DefaultOptions)
	s.mu.Unlock()
}

// Speak cancels any utterance in flight, waits for it to stop, then speaks
// text and blocks until playback finishes. Blank text returns immediately.
func (s *Service) Speak(ctx context.Context, text string, opts Options) error {
	if s.synth == nil {
		return ErrUnsupported
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	uctx, cancel := context.WithCancel(ctx)
	u := &utterance{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.current
	s.current = u
	defaults := s.defaults
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if s.current == u {
			s.current = nil
		}
		s.mu.Unlock()
		close(u.done)
	}()

	if prev != nil {
		prev.interrupt()
		<-prev.done
	}
	if u.wasInterrupted() {
		return ErrInterrupted
	}

	merged := opts.Merge(defaults)
	start := time.Now()
	err := s.synth.Speak(uctx, text, merged)
	interrupted := u.wasInterrupted()
	s.metrics.RecordSpeech(ctx, time.Since(start).Seconds(), interrupted)

	switch {
	case interrupted:
		slog.Debug("speech: utterance interrupted", "text", text)
		return ErrInterrupted
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		return fmt.Errorf("speech: speak: %w", err)
	}
	return nil
}

// StopSpeaking cancels the current utterance and returns once it is silent.
func (s *Service) StopSpeaking() {
	s.mu.Lock()
	u := s.current
	s.current = nil
	s.mu.Unlock()
	if u != nil {
		u.interrupt()
		<-u.done
	}
}

// Speaking reports whether an utterance is in flight.
func (s *Service) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Voices lists the synthesizer's voices.
func (s *Service) Voices(ctx context.Context) ([]tts.Voice, error) {
	if s.synth == nil {
		return nil, ErrUnsupported
	}
	v, err := s.synth.Voices(ctx)
	if err != nil {
		return nil, fmt.Errorf("speech: list voices: %w", err)
	}
	return v, nil
}

// PreferredVoice returns the first voice whose full language tag matches
// lang, then the first whose primary subtag matches, falling back to the
// first voice.
func (s *Service) PreferredVoice(ctx context.Context, lang string) (tts.Voice, error) {
	voices, err := s.Voices(ctx)
	if err != nil {
		return tts.Voice{}, err
	}
	if len(voices) == 0 {
		return tts.Voice{}, ErrNoVoice
	}
	full := normalizeTag(lang)
	if full == "" {
		return voices[0], nil
	}
	for _, v := range voices {
		if normalizeTag(v.Lang) == full {
			return v, nil
		}
	}
	want := primaryTag(lang)
	for _, v := range voices {
		if primaryTag(v.Lang) == want {
			return v, nil
		}
	}
	return voices[0], nil
}

// normalizeTag lowercases a language tag and accepts "_" as separator.
func normalizeTag(lang string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(lang), "_", "-"))
}

func primaryTag(lang string) string {
	tag, _, _ := strings.Cut(normalizeTag(lang), "-")
	return tag
}
