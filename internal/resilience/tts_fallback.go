package resilience

import (
	"context"

	"github.com/MrWong99/digigov-voice/pkg/audio"
	"github.com/MrWong99/digigov-voice/pkg/provider/tts"
)

// TTSFallback is a [tts.Provider] that fails over between synthesizers.
//
// Audio always leaves in the primary's format: a fallback with a different
// sample rate or channel count has its chunks converted on the way through.
type TTSFallback struct {
	group  *FallbackGroup[tts.Provider]
	format audio.Format
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] that prefers primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group:  NewFallbackGroup(primary, primaryName, cfg),
		format: primary.Format(),
	}
}

// AddFallback appends a synthesizer tried after all earlier ones.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize starts synthesis on the first synthesizer that accepts the
// request. Failover covers starting the stream only; an error after audio
// has begun closes the channel early.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (<-chan []byte, error) {
	var served audio.Format
	ch, err := ExecuteWithResult(f.group, func(p tts.Provider) (<-chan []byte, error) {
		served = p.Format()
		return p.Synthesize(ctx, req)
	})
	if err != nil || served == f.format {
		return ch, err
	}
	return reformat(ctx, ch, audio.NewConverter(served, f.format)), nil
}

// reformat converts every chunk of in. The returned channel closes when in
// does or ctx ends.
func reformat(ctx context.Context, in <-chan []byte, conv *audio.Converter) <-chan []byte {
	out := make(chan []byte, cap(in))
	go func() {
		defer close(out)
		for chunk := range in {
			pcm := conv.Convert(chunk)
			if len(pcm) == 0 {
				continue
			}
			select {
			case out <- pcm:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Format reports the primary's PCM format, which every stream is delivered in.
func (f *TTSFallback) Format() audio.Format {
	return f.format
}

// Voices lists the voices of the first synthesizer that answers.
func (f *TTSFallback) Voices(ctx context.Context) ([]tts.Voice, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.Voice, error) {
		return p.Voices(ctx)
	})
}

// States reports the breaker state of every synthesizer.
func (f *TTSFallback) States() []EntryState {
	return f.group.States()
}
