// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., OpenAI speech) and
// presents a uniform streaming interface: Synthesize returns a channel of raw
// PCM chunks as they arrive so that playback can start before the whole
// utterance has been rendered.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/digigov-voice/pkg/audio"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders req.Text and returns a channel that emits 16-bit
	// little-endian PCM chunks in Format(). The channel is closed when the
	// utterance is complete or ctx is cancelled; callers check ctx.Err() to
	// tell the two apart. A non-nil error means synthesis could not start.
	Synthesize(ctx context.Context, req Request) (<-chan []byte, error)

	// Format reports the PCM format of synthesized audio.
	Format() audio.Format

	// Voices lists the voices the provider offers.
	Voices(ctx context.Context) ([]Voice, error)
}
