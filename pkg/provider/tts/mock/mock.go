// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    Chunks:       [][]byte{make([]byte, 320)},
//	    VoicesResult: []tts.Voice{{ID: "v1", Lang: "en-US"}},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/digigov-voice/pkg/audio"
	"github.com/MrWong99/digigov-voice/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks is the sequence of PCM chunks emitted per Synthesize call.
	Chunks [][]byte

	// SynthesizeErr, if non-nil, is returned from Synthesize.
	SynthesizeErr error

	// AudioFormat is returned by Format. Defaults to 16 kHz mono.
	AudioFormat audio.Format

	// VoicesResult and VoicesErr are returned by Voices.
	VoicesResult []tts.Voice
	VoicesErr    error

	requests []tts.Request
}

// Synthesize records the request and streams Chunks.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (<-chan []byte, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(p.Chunks))
	copy(chunks, p.Chunks)
	p.mu.Unlock()

	ch := make(chan []byte)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Format returns AudioFormat or 16 kHz mono.
func (p *Provider) Format() audio.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.AudioFormat.SampleRate == 0 {
		return audio.Format{SampleRate: 16000, Channels: 1}
	}
	return p.AudioFormat
}

// Voices returns VoicesResult, VoicesErr.
func (p *Provider) Voices(_ context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.VoicesResult, p.VoicesErr
}

// Requests returns a copy of every Synthesize request.
func (p *Provider) Requests() []tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.Request, len(p.requests))
	copy(out, p.requests)
	return out
}

var _ tts.Provider = (*Provider)(nil)
