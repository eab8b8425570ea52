package config

import (
	"maps"
	"reflect"
	"slices"

	"github.com/MrWong99/digigov-voice/internal/voice/command"
	"github.com/MrWong99/digigov-voice/internal/voice/form"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WakeWordChanged covers the wake word, its misrecognitions and the
	// fuzzy threshold.
	WakeWordChanged  bool
	RoutesChanged    bool
	SelectorsChanged bool
	SpeechChanged    bool

	// RestartRequired names changed sections that are only read at startup.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.WakeWordChanged && !d.RoutesChanged &&
		!d.SelectorsChanged && !d.SpeechChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oa, na := old.Assistant, new.Assistant
	if oa.WakeWord != na.WakeWord ||
		!slices.Equal(oa.Misrecognitions, na.Misrecognitions) ||
		oa.FuzzyThreshold != na.FuzzyThreshold {
		d.WakeWordChanged = true
	}

	d.RoutesChanged = !slices.EqualFunc(old.Routes, new.Routes, func(a, b command.Route) bool {
		return a.Path == b.Path && a.Title == b.Title && slices.Equal(a.Aliases, b.Aliases)
	})
	d.SelectorsChanged = !maps.EqualFunc(old.FormSelectors, new.FormSelectors, slices.Equal[[]form.Selector])
	d.SpeechChanged = old.Speech != new.Speech

	// Everything else needs a restart. Compare with the hot-reloadable
	// fields masked out.
	oa.WakeWord, oa.Misrecognitions, oa.FuzzyThreshold = "", nil, 0
	na.WakeWord, na.Misrecognitions, na.FuzzyThreshold = "", nil, 0
	if !reflect.DeepEqual(oa, na) {
		d.RestartRequired = append(d.RestartRequired, "assistant")
	}
	oldSrv, newSrv := old.Server, new.Server
	oldSrv.LogLevel, newSrv.LogLevel = "", ""
	if !reflect.DeepEqual(oldSrv, newSrv) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Hotkey != new.Hotkey {
		d.RestartRequired = append(d.RestartRequired, "hotkey")
	}

	return d
}
