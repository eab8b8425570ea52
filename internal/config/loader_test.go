package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/digigov-voice/internal/config"
)

func TestValidate_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "log level",
			yaml: "server:\n  log_level: loud\n",
			want: "server.log_level",
		},
		{
			name: "tls without key",
			yaml: "server:\n  tls:\n    cert_file: cert.pem\n",
			want: "server.tls",
		},
		{
			name: "unnamed fallback",
			yaml: "providers:\n  stt:\n    name: deepgram\n    fallbacks:\n      - model: nova-2\n",
			want: "providers.stt.fallbacks[0].name",
		},
		{
			name: "vad fallback",
			yaml: "providers:\n  vad:\n    name: webrtc\n    fallbacks:\n      - name: webrtc\n",
			want: "only supported for stt and tts",
		},
		{
			name: "vad mode",
			yaml: "providers:\n  vad:\n    name: webrtc\n    options:\n      mode: 5\n",
			want: "providers.vad.options.mode",
		},
		{
			name: "blank wake word",
			yaml: "assistant:\n  wake_word: \"   \"\n",
			want: "assistant.wake_word",
		},
		{
			name: "fuzzy threshold",
			yaml: "assistant:\n  fuzzy_threshold: 1.5\n",
			want: "assistant.fuzzy_threshold",
		},
		{
			name: "suggestion threshold",
			yaml: "assistant:\n  suggestion_threshold: 2\n",
			want: "assistant.suggestion_threshold",
		},
		{
			name: "negative timeout",
			yaml: "assistant:\n  command_timeout: -1s\n",
			want: "assistant.command_timeout",
		},
		{
			name: "negative history",
			yaml: "assistant:\n  history_limit: -3\n",
			want: "assistant.history_limit",
		},
		{
			name: "speech rate",
			yaml: "speech:\n  rate: 20\n",
			want: "speech.rate",
		},
		{
			name: "speech pitch",
			yaml: "speech:\n  pitch: 3\n",
			want: "speech.pitch",
		},
		{
			name: "speech volume",
			yaml: "speech:\n  volume: 1.5\n",
			want: "speech.volume",
		},
		{
			name: "relative route",
			yaml: "routes:\n  - path: ration\n    title: ration card\n",
			want: "must start with /",
		},
		{
			name: "untitled route",
			yaml: "routes:\n  - path: /ration\n",
			want: "routes[0].title",
		},
		{
			name: "duplicate route",
			yaml: "routes:\n  - path: /ration\n    title: ration card\n  - path: /ration\n    title: rations\n",
			want: "duplicate",
		},
		{
			name: "empty selector",
			yaml: "form_selectors:\n  phone:\n    - {}\n",
			want: "form_selectors.phone[0]",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error should mention %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
routes:
  - path: /a
    title: a
  - path: /a
    title: b
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	// Should contain both the log level and duplicate route errors.
	errStr := err.Error()
	if !strings.Contains(errStr, "duplicate") || !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention duplicate and log_level, got: %v", err)
	}
}

func TestValidate_DisabledSuggestionsAreValid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("assistant:\n  suggestion_threshold: -1\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Assistant.SuggestionThreshold != -1 {
		t.Errorf("suggestion_threshold: got %v, want -1", cfg.Assistant.SuggestionThreshold)
	}
}

func TestValidate_UnknownProviderIsWarning(t *testing.T) {
	t.Parallel()
	// Third-party providers are allowed; only a warning is logged.
	if _, err := config.LoadFromReader(strings.NewReader("providers:\n  stt:\n    name: azure\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for kind, want := range map[string]string{
		"stt":   "deepgram",
		"tts":   "openai",
		"vad":   "webrtc",
		"audio": "portaudio",
	} {
		if !slices.Contains(config.ValidProviderNames[kind], want) {
			t.Errorf("ValidProviderNames[%q] should contain %q", kind, want)
		}
	}
}

func TestOptInt(t *testing.T) {
	t.Parallel()
	opts := map[string]any{"a": 1, "b": int64(2), "c": 3.0, "d": "4"}
	for key, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		if got, ok := config.OptInt(opts, key); !ok || got != want {
			t.Errorf("OptInt(%q) = %d, %v; want %d", key, got, ok, want)
		}
	}
	if _, ok := config.OptInt(opts, "d"); ok {
		t.Error("OptInt should reject strings")
	}
	if _, ok := config.OptInt(nil, "a"); ok {
		t.Error("OptInt should handle a nil map")
	}
}

func TestApplyDefaults_TimeoutPrompt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "default", yaml: "assistant:\n  wake_word: hey digigov\n", want: "Sorry, I didn't hear a command."},
		{name: "custom", yaml: "assistant:\n  timeout_prompt: Still there?\n", want: "Still there?"},
		{name: "skipped", yaml: "assistant:\n  skip_timeout_prompt: true\n", want: ""},
		{
			name: "skip wins over text",
			yaml: "assistant:\n  timeout_prompt: Still there?\n  skip_timeout_prompt: true\n",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.Assistant.TimeoutPrompt != tt.want {
				t.Errorf("TimeoutPrompt = %q, want %q", cfg.Assistant.TimeoutPrompt, tt.want)
			}
		})
	}
}
