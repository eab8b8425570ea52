// Package config provides the configuration schema, loader, and provider
// registry for the DigiGov voice assistant.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/digigov-voice/internal/voice/command"
	"github.com/MrWong99/digigov-voice/internal/voice/form"
	"github.com/MrWong99/digigov-voice/internal/voice/speech"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the slog level. Unknown values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure. It is typically loaded from a
// YAML or TOML file using [Load].
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Providers ProvidersConfig `yaml:"providers" toml:"providers"`
	Assistant AssistantConfig `yaml:"assistant" toml:"assistant"`

	// Speech holds the default voice options for spoken feedback.
	Speech speech.Options `yaml:"speech" toml:"speech"`

	// Routes lists the pages reachable by voice navigation. Empty selects
	// the portal's built-in pages.
	Routes []command.Route `yaml:"routes" toml:"routes"`

	// FormSelectors overrides the field discovery heuristics per logical
	// field. Entries replace the built-in list for that field.
	FormSelectors form.Strategy `yaml:"form_selectors" toml:"form_selectors"`

	Hotkey HotkeyConfig `yaml:"hotkey" toml:"hotkey"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" toml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls" toml:"tls"`

	// AllowedOrigins lists the cross-origin hosts allowed to open the
	// websocket and call the POST API, e.g. "portal.example.gov" or
	// "*.example.gov".
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`

	// TraceSampleRatio is the fraction of new traces that are sampled.
	// 0 samples every trace.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio" toml:"trace_sample_ratio"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`
}

// ProvidersConfig declares which implementation to use for each stage. Each
// field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT   ProviderEntry `yaml:"stt" toml:"stt"`
	TTS   ProviderEntry `yaml:"tts" toml:"tts"`
	VAD   ProviderEntry `yaml:"vad" toml:"vad"`
	Audio ProviderEntry `yaml:"audio" toml:"audio"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "deepgram").
	Name string `yaml:"name" toml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key" toml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url" toml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-2").
	Model string `yaml:"model" toml:"model"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options" toml:"options"`

	// Fallbacks are tried in order when this provider fails. Only stt and
	// tts support fallbacks.
	Fallbacks []ProviderEntry `yaml:"fallbacks" toml:"fallbacks"`
}

// AssistantConfig tunes wake word spotting and the command loop. Zero values
// select the assistant's defaults.
type AssistantConfig struct {
	WakeWord string `yaml:"wake_word" toml:"wake_word"`

	// Misrecognitions replaces the built-in list of known recognizer errors
	// for the wake word.
	Misrecognitions []string `yaml:"misrecognitions" toml:"misrecognitions"`

	// FuzzyThreshold enables Jaro-Winkler wake word matching above the
	// given score. Zero disables it.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" toml:"fuzzy_threshold"`

	// Language is the BCP 47 recognition language, e.g. "en-IN".
	Language string `yaml:"language" toml:"language"`

	SpeakConfirmation  bool   `yaml:"speak_confirmation" toml:"speak_confirmation"`
	ConfirmationPrompt string `yaml:"confirmation_prompt" toml:"confirmation_prompt"`
	TimeoutPrompt      string `yaml:"timeout_prompt" toml:"timeout_prompt"`

	// SkipTimeoutPrompt returns to wake listening silently after a command
	// timeout. TimeoutPrompt is cleared when set.
	SkipTimeoutPrompt bool `yaml:"skip_timeout_prompt" toml:"skip_timeout_prompt"`

	// HelpPrompt is spoken when nothing matches. SuggestionThreshold is the
	// minimum similarity for a "did you mean" hint; zero selects the default
	// and a negative value disables hints.
	HelpPrompt          string  `yaml:"help_prompt" toml:"help_prompt"`
	SuggestionThreshold float64 `yaml:"suggestion_threshold" toml:"suggestion_threshold"`

	CommandTimeout     time.Duration `yaml:"command_timeout" toml:"command_timeout"`
	CommandSettleDelay time.Duration `yaml:"command_settle_delay" toml:"command_settle_delay"`
	ResumeDelay        time.Duration `yaml:"resume_delay" toml:"resume_delay"`
	TimeoutResumeDelay time.Duration `yaml:"timeout_resume_delay" toml:"timeout_resume_delay"`
	NoSpeechTimeout    time.Duration `yaml:"no_speech_timeout" toml:"no_speech_timeout"`

	// Keywords are boosted in the recognizer, typically the wake word and
	// page names.
	Keywords []string `yaml:"keywords" toml:"keywords"`

	HistoryLimit int `yaml:"history_limit" toml:"history_limit"`

	// AutoEnable starts listening as soon as the server is up.
	AutoEnable bool `yaml:"auto_enable" toml:"auto_enable"`
}

// HotkeyConfig configures the global keyboard toggle.
type HotkeyConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Shortcut string `yaml:"shortcut" toml:"shortcut"`
}
