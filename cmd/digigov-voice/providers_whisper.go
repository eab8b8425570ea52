//go:build whisper

package main

import (
	"github.com/MrWong99/digigov-voice/internal/config"
	"github.com/MrWong99/digigov-voice/pkg/provider/stt"
	"github.com/MrWong99/digigov-voice/pkg/provider/stt/whisper"
)

// registerNativeWhisper registers the in-process whisper.cpp recognizer. The
// model file comes from the model_path option, or Model when that is unset.
// The model stays loaded for the life of the process.
func registerNativeWhisper(reg *config.Registry) {
	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		path := config.OptString(entry.Options, "model_path")
		if path == "" {
			path = entry.Model
		}
		opts := []whisper.NativeOption{whisper.WithNativeSegmentation(whisperSegmentation(entry))}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(path, opts...)
	})
}
