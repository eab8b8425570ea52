package resilience

import (
	"context"

	"github.com/MrWong99/digigov-voice/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that opens each recognition session on the
// first recognizer whose breaker admits it. A session that has started stays
// on its recognizer; the recognizer's restart loop opens the next one.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] that prefers primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a recognizer tried after all earlier ones.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}

// States reports the breaker state of every recognizer, for the health check.
func (f *STTFallback) States() []EntryState {
	return f.group.States()
}
