package audio

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Tone describes a short sine beep.
type Tone struct {
	Frequency float64       // Hz
	Duration  time.Duration // total length including fades
	Volume    float64       // 0..1
	Fade      time.Duration // linear fade in and out
}

// ConfirmationTone is the beep played when the wake word is recognised.
var ConfirmationTone = Tone{
	Frequency: 880,
	Duration:  150 * time.Millisecond,
	Volume:    0.3,
	Fade:      20 * time.Millisecond,
}

// Render returns the tone as mono 16-bit PCM at sampleRate.
func (t Tone) Render(sampleRate int) []byte {
	if sampleRate <= 0 || t.Duration <= 0 {
		return nil
	}
	n := int(int64(t.Duration) * int64(sampleRate) / int64(time.Second))
	fade := int(int64(t.Fade) * int64(sampleRate) / int64(time.Second))
	if fade*2 > n {
		fade = n / 2
	}
	vol := math.Max(0, math.Min(1, t.Volume))

	pcm := make([]byte, n*2)
	for i := range n {
		env := 1.0
		switch {
		case fade > 0 && i < fade:
			env = float64(i) / float64(fade)
		case fade > 0 && i >= n-fade:
			env = float64(n-1-i) / float64(fade)
		}
		v := int16(math.Sin(2*math.Pi*t.Frequency*float64(i)/float64(sampleRate)) * vol * env * math.MaxInt16)
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return pcm
}

// TonePlayer plays short beeps on a Sink.
type TonePlayer struct {
	sink       Sink
	sampleRate int
}

// NewTonePlayer returns a TonePlayer rendering at sampleRate.
func NewTonePlayer(sink Sink, sampleRate int) *TonePlayer {
	return &TonePlayer{sink: sink, sampleRate: sampleRate}
}

// Play renders t and blocks until it has been played.
func (p *TonePlayer) Play(ctx context.Context, t Tone) error {
	if p == nil || p.sink == nil {
		return nil
	}
	pcm := t.Render(p.sampleRate)
	if err := p.sink.Play(ctx, pcm, Format{SampleRate: p.sampleRate, Channels: 1}); err != nil {
		return fmt.Errorf("audio: play tone: %w", err)
	}
	return nil
}
