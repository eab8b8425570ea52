package app

import (
	"log/slog"

	"github.com/MrWong99/digigov-voice/internal/config"
)

// Reload applies the hot-reloadable parts of next: log level, wake word,
// routes, form selectors and speech defaults. Other changes are logged and
// take effect on restart. It is the onChange callback for
// [config.NewWatcher].
func (a *App) Reload(old, next *config.Config) {
	d := config.Diff(old, next)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.SlogLevel())
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.WakeWordChanged {
		na := next.Assistant
		a.assistant.SetWakeWord(na.WakeWord, na.Misrecognitions, na.FuzzyThreshold)
		slog.Info("app: wake word changed", "wake_word", a.assistant.WakeWord())
	}
	if d.RoutesChanged {
		if err := a.assistant.SetRoutes(next.Routes); err != nil {
			slog.Warn("app: routes not applied", "err", err)
		}
	}
	if d.SelectorsChanged {
		if err := a.assistant.SetFiller(newFiller(next.FormSelectors)); err != nil {
			slog.Warn("app: form selectors not applied", "err", err)
		}
	}
	if d.SpeechChanged {
		a.speech.SetDefaults(next.Speech)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: config changes need a restart", "sections", d.RestartRequired)
	}
}
