package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/digigov-voice/internal/observe"
	"github.com/MrWong99/digigov-voice/internal/resilience"
	"github.com/MrWong99/digigov-voice/pkg/audio"
	"github.com/MrWong99/digigov-voice/pkg/provider/stt"
	"github.com/MrWong99/digigov-voice/pkg/provider/tts"
	"github.com/MrWong99/digigov-voice/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// AudioDevice is a microphone and speaker pair.
type AudioDevice interface {
	audio.Source
	audio.Sink
}

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	stt   map[string]func(ProviderEntry) (stt.Provider, error)
	tts   map[string]func(ProviderEntry) (tts.Provider, error)
	vad   map[string]func(ProviderEntry) (vad.Engine, error)
	audio map[string]func(ProviderEntry) (AudioDevice, error)

	fallback resilience.FallbackConfig
	metrics  *observe.Metrics
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:   make(map[string]func(ProviderEntry) (stt.Provider, error)),
		tts:   make(map[string]func(ProviderEntry) (tts.Provider, error)),
		vad:   make(map[string]func(ProviderEntry) (vad.Engine, error)),
		audio: make(map[string]func(ProviderEntry) (AudioDevice, error)),
	}
}

// SetFallbackConfig sets the circuit breaker tuning used when an entry
// declares fallbacks.
func (r *Registry) SetFallbackConfig(cfg resilience.FallbackConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = cfg
}

// SetMetrics counts failed calls to providers in fallback groups.
func (r *Registry) SetMetrics(m *observe.Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterAudio registers an audio device factory under name.
func (r *Registry) RegisterAudio(name string, factory func(ProviderEntry) (AudioDevice, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// CreateSTT instantiates the STT provider registered under entry.Name. When
// the entry declares fallbacks the result is a [resilience.STTFallback].
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	p, err := create(r, r.stt, "stt", entry)
	if err != nil || len(entry.Fallbacks) == 0 {
		return p, err
	}
	group := resilience.NewSTTFallback(p, entry.Name, r.fallbackConfig("stt"))
	for _, fb := range entry.Fallbacks {
		fp, err := create(r, r.stt, "stt", fb)
		if err != nil {
			return nil, fmt.Errorf("config: stt fallback %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, fp)
	}
	return group, nil
}

// CreateTTS instantiates the TTS provider registered under entry.Name. When
// the entry declares fallbacks the result is a [resilience.TTSFallback].
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	p, err := create(r, r.tts, "tts", entry)
	if err != nil || len(entry.Fallbacks) == 0 {
		return p, err
	}
	group := resilience.NewTTSFallback(p, entry.Name, r.fallbackConfig("tts"))
	for _, fb := range entry.Fallbacks {
		fp, err := create(r, r.tts, "tts", fb)
		if err != nil {
			return nil, fmt.Errorf("config: tts fallback %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, fp)
	}
	return group, nil
}

// CreateVAD instantiates a VAD engine using the factory registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	return create(r, r.vad, "vad", entry)
}

// CreateAudio instantiates an audio device using the factory registered under entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (AudioDevice, error) {
	return create(r, r.audio, "audio", entry)
}

// Names returns the registered provider names for kind.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "stt":
		names = keys(r.stt)
	case "tts":
		names = keys(r.tts)
	case "vad":
		names = keys(r.vad)
	case "audio":
		names = keys(r.audio)
	}
	return names
}

func (r *Registry) fallbackConfig(kind string) resilience.FallbackConfig {
	r.mu.RLock()
	cfg, m := r.fallback, r.metrics
	r.mu.RUnlock()
	if m == nil {
		return cfg
	}
	next := cfg.OnError
	cfg.OnError = func(provider string, err error) {
		m.RecordProviderError(context.Background(), provider, kind)
		if next != nil {
			next(provider, err)
		}
	}
	return cfg
}

func create[T any](r *Registry, factories map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
