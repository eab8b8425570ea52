package audio

import "time"

// AudioFrame is a chunk of 16-bit little-endian PCM flowing from the
// microphone to the recognizer, or from the synthesizer to the speaker.
type AudioFrame struct {
	// PCM audio data.
	Data []byte

	// SampleRate in Hz (16000 for microphone capture, 24000 for OpenAI speech).
	SampleRate int

	// Channels: 1 for mono.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	return PCMDuration(len(f.Data), Format{SampleRate: f.SampleRate, Channels: f.Channels})
}

// PCMDuration returns the playback length of n bytes of 16-bit PCM in format f.
func PCMDuration(n int, f Format) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := n / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
