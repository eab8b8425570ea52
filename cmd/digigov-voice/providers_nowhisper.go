//go:build !whisper

package main

import "github.com/MrWong99/digigov-voice/internal/config"

// registerNativeWhisper is a no-op without -tags whisper; configs naming
// whisper-native get ErrProviderNotRegistered and the provider is skipped.
func registerNativeWhisper(*config.Registry) {}
