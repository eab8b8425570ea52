package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/digigov-voice/internal/voice/assistant"
	"github.com/MrWong99/digigov-voice/internal/voice/command"
	"github.com/MrWong99/digigov-voice/internal/voice/speech"
)

// DefaultListenAddr is used when server.listen_addr is empty.
const DefaultListenAddr = ":8080"

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor selects the syntax by file extension. Anything other than .toml
// is read as YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":   {"deepgram", "whisper", "whisper-native", "mock"},
	"tts":   {"openai", "mock"},
	"vad":   {"webrtc"},
	"audio": {"portaudio", "mock"},
}

// Load reads the configuration file at path and returns a validated [Config]
// with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := Decode(f, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	return Decode(r, FormatYAML)
}

// Decode reads a config in the given format. Unknown keys are rejected in
// both syntaxes.
func Decode(r io.Reader, format Format) (*Config, error) {
	cfg := &Config{}
	switch format {
	case FormatTOML:
		md, err := toml.NewDecoder(r).Decode(cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: decode toml: unknown keys %s", strings.Join(keys, ", "))
		}
	case FormatYAML, "":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unknown format %q", format)
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeBytes(data []byte, format Format) (*Config, error) {
	return Decode(bytes.NewReader(data), format)
}

// ApplyDefaults fills zero values so that two loads of equivalent files
// compare equal in [Diff].
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.Audio.Name == "" {
		cfg.Providers.Audio.Name = "portaudio"
	}

	a := &cfg.Assistant
	if a.WakeWord == "" {
		a.WakeWord = assistant.DefaultWakeWord
	}
	if a.Language == "" {
		a.Language = assistant.DefaultLanguage
	}
	if a.CommandTimeout == 0 {
		a.CommandTimeout = assistant.DefaultCommandTimeout
	}
	if a.CommandSettleDelay == 0 {
		a.CommandSettleDelay = assistant.DefaultCommandSettleDelay
	}
	if a.ResumeDelay == 0 {
		a.ResumeDelay = assistant.DefaultResumeDelay
	}
	if a.TimeoutResumeDelay == 0 {
		a.TimeoutResumeDelay = assistant.DefaultTimeoutResumeDelay
	}
	if a.ConfirmationPrompt == "" {
		a.ConfirmationPrompt = assistant.DefaultConfirmationPrompt
	}
	switch {
	case a.SkipTimeoutPrompt:
		a.TimeoutPrompt = ""
	case a.TimeoutPrompt == "":
		a.TimeoutPrompt = assistant.DefaultTimeoutPrompt
	}
	if a.HistoryLimit == 0 {
		a.HistoryLimit = assistant.DefaultHistoryLimit
	}
	if a.SuggestionThreshold == 0 {
		a.SuggestionThreshold = command.DefaultSuggestionThreshold
	}
	if a.HelpPrompt == "" {
		a.HelpPrompt = command.DefaultHelpPrompt
	}

	if cfg.Speech.Lang == "" {
		cfg.Speech.Lang = a.Language
	}
	cfg.Speech = cfg.Speech.Merge(speech.DefaultOptions)

	if len(cfg.Routes) == 0 {
		cfg.Routes = command.DefaultRoutes()
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)
	for i, fb := range cfg.Providers.STT.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt.fallbacks[%d].name is required", i))
		}
		validateProviderName("stt", fb.Name)
	}
	for i, fb := range cfg.Providers.TTS.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts.fallbacks[%d].name is required", i))
		}
		validateProviderName("tts", fb.Name)
	}
	if len(cfg.Providers.VAD.Fallbacks) > 0 || len(cfg.Providers.Audio.Fallbacks) > 0 {
		errs = append(errs, errors.New("providers: fallbacks are only supported for stt and tts"))
	}
	if mode, ok := optInt(cfg.Providers.VAD.Options, "mode"); ok && (mode < 0 || mode > 3) {
		errs = append(errs, fmt.Errorf("providers.vad.options.mode %d is out of range [0, 3]", mode))
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; the assistant can only run simulated commands")
	}

	// Assistant
	a := cfg.Assistant
	if strings.TrimSpace(a.WakeWord) == "" {
		errs = append(errs, errors.New("assistant.wake_word must not be blank"))
	}
	if a.FuzzyThreshold < 0 || a.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("assistant.fuzzy_threshold %.2f is out of range [0, 1]", a.FuzzyThreshold))
	} else if a.FuzzyThreshold > 0 && a.FuzzyThreshold < 0.8 {
		slog.Warn("assistant.fuzzy_threshold is low; unrelated phrases may activate the assistant", "threshold", a.FuzzyThreshold)
	}
	if a.SuggestionThreshold > 1 {
		errs = append(errs, fmt.Errorf("assistant.suggestion_threshold %.2f is above 1", a.SuggestionThreshold))
	}
	for name, d := range map[string]float64{
		"command_timeout":      a.CommandTimeout.Seconds(),
		"command_settle_delay": a.CommandSettleDelay.Seconds(),
		"resume_delay":         a.ResumeDelay.Seconds(),
		"timeout_resume_delay": a.TimeoutResumeDelay.Seconds(),
		"no_speech_timeout":    a.NoSpeechTimeout.Seconds(),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("assistant.%s must not be negative", name))
		}
	}
	if a.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("assistant.history_limit %d must not be negative", a.HistoryLimit))
	}

	// Speech
	if s := cfg.Speech; s.Rate != 0 && (s.Rate < 0.1 || s.Rate > 10) {
		errs = append(errs, fmt.Errorf("speech.rate %.2f is out of range [0.1, 10]", s.Rate))
	}
	if s := cfg.Speech; s.Pitch < 0 || s.Pitch > 2 {
		errs = append(errs, fmt.Errorf("speech.pitch %.2f is out of range [0, 2]", s.Pitch))
	}
	if s := cfg.Speech; s.Volume < 0 || s.Volume > 1 {
		errs = append(errs, fmt.Errorf("speech.volume %.2f is out of range [0, 1]", s.Volume))
	}

	// Routes
	seen := make(map[string]int, len(cfg.Routes))
	for i, r := range cfg.Routes {
		prefix := fmt.Sprintf("routes[%d]", i)
		if !strings.HasPrefix(r.Path, "/") {
			errs = append(errs, fmt.Errorf("%s.path %q must start with /", prefix, r.Path))
		}
		if strings.TrimSpace(r.Title) == "" {
			errs = append(errs, fmt.Errorf("%s.title is required", prefix))
		}
		if prev, ok := seen[r.Path]; ok {
			errs = append(errs, fmt.Errorf("%s.path %q is a duplicate of routes[%d]", prefix, r.Path, prev))
		} else {
			seen[r.Path] = i
		}
	}

	// Form selectors
	for field, selectors := range cfg.FormSelectors {
		for i, sel := range selectors {
			if sel.Empty() {
				errs = append(errs, fmt.Errorf("form_selectors.%s[%d] has no criteria", field, i))
			}
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// OptString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func OptString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// OptInt extracts an integer from a provider Options map. YAML yields int
// and TOML yields int64.
func OptInt(opts map[string]any, key string) (int, bool) {
	return optInt(opts, key)
}

func optInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
