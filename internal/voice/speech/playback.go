package speech

import (
	"context"
	"fmt"

	"github.com/MrWong99/digigov-voice/pkg/audio"
	"github.com/MrWong99/digigov-voice/pkg/provider/tts"
)

// PlaybackSynthesizer streams tts.Provider output to an audio.Sink, chunk by
// chunk, so playback starts before synthesis completes.
type PlaybackSynthesizer struct {
	provider tts.Provider
	sink     audio.Sink
	output   audio.Format
}

var _ Synthesizer = (*PlaybackSynthesizer)(nil)

// PlaybackOption is a functional option for [NewPlaybackSynthesizer].
type PlaybackOption func(*PlaybackSynthesizer)

// WithOutputFormat converts synthesized audio to the sink's native format.
// By default audio is played in the provider's format.
func WithOutputFormat(f audio.Format) PlaybackOption {
	return func(p *PlaybackSynthesizer) { p.output = f }
}

// NewPlaybackSynthesizer plays provider output on sink.
func NewPlaybackSynthesizer(provider tts.Provider, sink audio.Sink, opts ...PlaybackOption) *PlaybackSynthesizer {
	p := &PlaybackSynthesizer{provider: provider, sink: sink}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Speak implements [Synthesizer].
func (p *PlaybackSynthesizer) Speak(ctx context.Context, text string, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, err := p.provider.Synthesize(ctx, tts.Request{
		Text:  text,
		Voice: opts.Voice,
		Lang:  opts.Lang,
		Rate:  opts.Rate,
		Pitch: opts.Pitch,
	})
	if err != nil {
		return fmt.Errorf("speech: synthesize: %w", err)
	}
	// Unblock the provider if playback stops early.
	defer func() { go audio.Drain(chunks) }()

	conv := audio.NewConverter(p.provider.Format(), p.output)
	out := conv.Target()

	for chunk := range chunks {
		pcm := conv.Convert(chunk)
		if len(pcm) == 0 {
			continue
		}
		if opts.Volume > 0 {
			audio.ApplyGain(pcm, opts.Volume)
		}
		if err := p.sink.Play(ctx, pcm, out); err != nil {
			return fmt.Errorf("speech: play: %w", err)
		}
	}
	return ctx.Err()
}

// Voices implements [Synthesizer].
func (p *PlaybackSynthesizer) Voices(ctx context.Context) ([]tts.Voice, error) {
	return p.provider.Voices(ctx)
}
