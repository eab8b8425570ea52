// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (e.g., WebRTC VAD) and
// surfaces it as a stateful, per-stream session. The transcription engine uses
// it to notice when a listening window passes without any speech so that the
// recognizer can report a no-speech condition instead of waiting forever.
//
// VAD is synchronous: ProcessFrame returns immediately with a detection result.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. Most VAD
	// models operate on fixed frame sizes (10, 20, or 30 ms).
	FrameSizeMs int

	// SpeechThreshold is the probability above which a frame is classified as
	// speech. Range: [0.0, 1.0]. Binary detectors ignore it.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which an active speech segment
	// is considered ended. Must be ≤ SpeechThreshold.
	SilenceThreshold float64

	// Mode is the detector aggressiveness for engines that support it
	// (WebRTC: 0 = least aggressive, 3 = most aggressive).
	Mode int
}

// SessionHandle represents an active VAD session for a single audio stream.
// A SessionHandle should not be shared between goroutines.
type SessionHandle interface {
	// ProcessFrame analyses a single audio frame of 16-bit little-endian PCM
	// and returns the detection result. Returns an error if the frame size is
	// wrong or the engine fails.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	NewSession(cfg Config) (SessionHandle, error)
}
