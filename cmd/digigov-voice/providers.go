package main

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/MrWong99/digigov-voice/internal/app"
	"github.com/MrWong99/digigov-voice/internal/config"
	"github.com/MrWong99/digigov-voice/pkg/audio/mock"
	"github.com/MrWong99/digigov-voice/pkg/audio/portaudio"
	"github.com/MrWong99/digigov-voice/pkg/provider/stt"
	"github.com/MrWong99/digigov-voice/pkg/provider/stt/deepgram"
	sttmock "github.com/MrWong99/digigov-voice/pkg/provider/stt/mock"
	"github.com/MrWong99/digigov-voice/pkg/provider/stt/whisper"
	"github.com/MrWong99/digigov-voice/pkg/provider/tts"
	ttsmock "github.com/MrWong99/digigov-voice/pkg/provider/tts/mock"
	ttsopenai "github.com/MrWong99/digigov-voice/pkg/provider/tts/openai"
	"github.com/MrWong99/digigov-voice/pkg/provider/vad"
	"github.com/MrWong99/digigov-voice/pkg/provider/vad/webrtc"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// mockDevice is a silent microphone and a discarding speaker, for running
// without audio hardware.
type mockDevice struct {
	mock.Source
	mock.Sink
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if ms, ok := config.OptInt(entry.Options, "endpointing_ms"); ok {
			opts = append(opts, deepgram.WithEndpointing(time.Duration(ms)*time.Millisecond))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithSegmentation(whisperSegmentation(entry))}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	registerNativeWhisper(reg)

	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, ttsopenai.WithLanguage(lang))
		}
		return ttsopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("webrtc", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []webrtc.Option
		if n, ok := config.OptInt(entry.Options, "start_frames"); ok {
			opts = append(opts, webrtc.WithStartFrames(n))
		}
		if n, ok := config.OptInt(entry.Options, "end_frames"); ok {
			opts = append(opts, webrtc.WithEndFrames(n))
		}
		return webrtc.New(opts...), nil
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(entry config.ProviderEntry) (config.AudioDevice, error) {
		var opts []portaudio.Option
		if n, ok := config.OptInt(entry.Options, "frames_per_buffer"); ok {
			opts = append(opts, portaudio.WithFramesPerBuffer(n))
		}
		return portaudio.New(opts...)
	})

	reg.RegisterAudio("mock", func(config.ProviderEntry) (config.AudioDevice, error) {
		return &mockDevice{}, nil
	})

	for _, kind := range []string{"stt", "tts", "vad", "audio"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// whisperSegmentation reads the utterance detection options shared by the
// whisper backends.
func whisperSegmentation(entry config.ProviderEntry) whisper.Segmentation {
	var seg whisper.Segmentation
	if n, ok := config.OptInt(entry.Options, "threshold"); ok {
		seg.Threshold = float64(n)
	}
	if ms, ok := config.OptInt(entry.Options, "silence_ms"); ok {
		seg.TrailingSilence = time.Duration(ms) * time.Millisecond
	}
	if ms, ok := config.OptInt(entry.Options, "max_utterance_ms"); ok {
		seg.MaxUtterance = time.Duration(ms) * time.Millisecond
	}
	return seg
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// The assistant language is passed to stt and tts entries that set none.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	var err error

	sttEntry := withLanguage(cfg.Providers.STT, cfg.Assistant.Language)
	if ps.STT, err = createProvider("stt", sttEntry, reg.CreateSTT); err != nil {
		return nil, err
	}
	ttsEntry := withLanguage(cfg.Providers.TTS, cfg.Assistant.Language)
	if ps.TTS, err = createProvider("tts", ttsEntry, reg.CreateTTS); err != nil {
		return nil, err
	}
	if ps.VAD, err = createProvider("vad", cfg.Providers.VAD, reg.CreateVAD); err != nil {
		return nil, err
	}
	if ps.Audio, err = createProvider("audio", cfg.Providers.Audio, reg.CreateAudio); err != nil {
		return nil, err
	}
	return ps, nil
}

func createProvider[T any](kind string, entry config.ProviderEntry, create func(config.ProviderEntry) (T, error)) (T, error) {
	var zero T
	if entry.Name == "" {
		return zero, nil
	}
	p, err := create(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not available, skipping", "kind", kind, "name", entry.Name)
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return p, nil
}

func withLanguage(entry config.ProviderEntry, lang string) config.ProviderEntry {
	if lang == "" || entry.Name == "" || config.OptString(entry.Options, "language") != "" {
		return entry
	}
	opts := maps.Clone(entry.Options)
	if opts == nil {
		opts = make(map[string]any, 1)
	}
	opts["language"] = lang
	entry.Options = opts
	return entry
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      DigiGov Voice - startup summary  ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT", providerLabel(cfg.Providers.STT))
	printRow("TTS", providerLabel(cfg.Providers.TTS))
	printRow("VAD", providerLabel(cfg.Providers.VAD))
	printRow("Audio", providerLabel(cfg.Providers.Audio))
	printRow("Wake word", cfg.Assistant.WakeWord)
	printRow("Language", cfg.Assistant.Language)
	printRow("Routes", fmt.Sprintf("%d", len(cfg.Routes)))
	if cfg.Hotkey.Enabled {
		printRow("Hotkey", cfg.Hotkey.Shortcut)
	} else {
		printRow("Hotkey", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry) string {
	switch {
	case e.Name == "":
		return "(not configured)"
	case e.Model != "":
		return e.Name + " / " + e.Model
	}
	return e.Name
}

func printRow(label, value string) {
	if value == "" {
		value = "(default)"
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}
