package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/digigov-voice/internal/config"
	"github.com/MrWong99/digigov-voice/internal/voice/command"
	"github.com/MrWong99/digigov-voice/internal/voice/form"
	"github.com/MrWong99/digigov-voice/internal/voice/speech"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Assistant: config.AssistantConfig{
			WakeWord:       "hey digigov",
			CommandTimeout: 10 * time.Second,
		},
		Speech: speech.DefaultOptions,
		Routes: []command.Route{{Path: "/dashboard", Title: "dashboard", Aliases: []string{"home"}}},
		FormSelectors: form.Strategy{
			"phone": {{Name: "mobile"}},
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level is hot-reloadable, got RestartRequired=%v", d.RestartRequired)
	}
}

func TestDiff_HotSections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(config.ConfigDiff) bool
	}{
		{
			name:   "wake word",
			mutate: func(c *config.Config) { c.Assistant.WakeWord = "hello portal" },
			check:  func(d config.ConfigDiff) bool { return d.WakeWordChanged },
		},
		{
			name:   "misrecognitions",
			mutate: func(c *config.Config) { c.Assistant.Misrecognitions = []string{"hey digi gov"} },
			check:  func(d config.ConfigDiff) bool { return d.WakeWordChanged },
		},
		{
			name:   "fuzzy threshold",
			mutate: func(c *config.Config) { c.Assistant.FuzzyThreshold = 0.9 },
			check:  func(d config.ConfigDiff) bool { return d.WakeWordChanged },
		},
		{
			name:   "route alias",
			mutate: func(c *config.Config) { c.Routes[0].Aliases = append(c.Routes[0].Aliases, "overview") },
			check:  func(d config.ConfigDiff) bool { return d.RoutesChanged },
		},
		{
			name: "route added",
			mutate: func(c *config.Config) {
				c.Routes = append(c.Routes, command.Route{Path: "/bills", Title: "bills"})
			},
			check: func(d config.ConfigDiff) bool { return d.RoutesChanged },
		},
		{
			name:   "selector",
			mutate: func(c *config.Config) { c.FormSelectors["phone"] = []form.Selector{{Name: "phoneNumber"}} },
			check:  func(d config.ConfigDiff) bool { return d.SelectorsChanged },
		},
		{
			name:   "speech",
			mutate: func(c *config.Config) { c.Speech.Rate = 1.5 },
			check:  func(d config.ConfigDiff) bool { return d.SpeechChanged },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tc.mutate(new)
			d := config.Diff(old, new)
			if !tc.check(d) {
				t.Errorf("change not detected: %+v", d)
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("expected a hot change, got RestartRequired=%v", d.RestartRequired)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.ListenAddr = ":9090"
	new.Assistant.CommandTimeout = 5 * time.Second
	new.Providers.STT = config.ProviderEntry{Name: "deepgram"}
	new.Hotkey.Enabled = true

	d := config.Diff(old, new)
	want := []string{"assistant", "server", "providers", "hotkey"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.WakeWordChanged || d.LogLevelChanged {
		t.Errorf("unexpected hot changes: %+v", d)
	}
}
