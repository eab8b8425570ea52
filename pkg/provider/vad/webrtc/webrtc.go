// Package webrtc provides a vad.Engine backed by the WebRTC voice activity
// detector (github.com/maxhawkins/go-webrtcvad).
//
// The WebRTC detector is binary per frame. Sessions add a small hangover so
// that isolated clicks do not start a speech segment and short pauses between
// words do not end one.
package webrtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/digigov-voice/pkg/provider/vad"
	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

const (
	defaultStartFrames = 3
	defaultEndFrames   = 15
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithStartFrames sets the number of consecutive voiced frames required to
// report VADSpeechStart.
func WithStartFrames(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.startFrames = n
		}
	}
}

// WithEndFrames sets the number of consecutive unvoiced frames required to
// report VADSpeechEnd.
func WithEndFrames(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.endFrames = n
		}
	}
}

// Engine implements vad.Engine.
type Engine struct {
	startFrames int
	endFrames   int
}

// New returns a WebRTC VAD engine.
func New(opts ...Option) *Engine {
	e := &Engine{startFrames: defaultStartFrames, endFrames: defaultEndFrames}
	for _, o := range opts {
		o(e)
	}
	return e
}

var _ vad.Engine = (*Engine)(nil)

// NewSession creates a detector for one audio stream. The sample rate must be
// 8, 16, 32 or 48 kHz and the frame size 10, 20 or 30 ms.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.Mode < 0 || cfg.Mode > 3 {
		return nil, fmt.Errorf("webrtc vad: mode %d out of range [0,3]", cfg.Mode)
	}
	det, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: create detector: %w", err)
	}
	frameBytes := cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2
	// A rejected detector is released by its finalizer.
	if !det.ValidRateAndFrameLength(cfg.SampleRate, frameBytes/2) {
		return nil, fmt.Errorf("webrtc vad: unsupported rate %d Hz with %d ms frames", cfg.SampleRate, cfg.FrameSizeMs)
	}
	if err := det.SetMode(cfg.Mode); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode: %w", err)
	}

	return &session{
		det:         det,
		sampleRate:  cfg.SampleRate,
		frameBytes:  frameBytes,
		startFrames: e.startFrames,
		endFrames:   e.endFrames,
	}, nil
}

// session implements vad.SessionHandle.
type session struct {
	mu          sync.Mutex
	det         *webrtcvad.VAD
	sampleRate  int
	frameBytes  int
	startFrames int
	endFrames   int

	inSpeech bool
	voiced   int
	unvoiced int
	closed   bool
}

var errClosed = errors.New("webrtc vad: session closed")

// ProcessFrame classifies one frame and applies hangover smoothing.
func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, errClosed
	}
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("webrtc vad: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	active, err := s.det.Process(s.sampleRate, frame)
	if err != nil {
		return vad.VADEvent{}, fmt.Errorf("webrtc vad: process: %w", err)
	}
	return s.step(active), nil
}

// step advances the hangover state machine by one frame.
func (s *session) step(active bool) vad.VADEvent {
	prob := 0.0
	if active {
		prob = 1.0
		s.voiced++
		s.unvoiced = 0
	} else {
		s.unvoiced++
		s.voiced = 0
	}

	switch {
	case !s.inSpeech && s.voiced >= s.startFrames:
		s.inSpeech = true
		return vad.VADEvent{Type: vad.VADSpeechStart, Probability: prob}
	case s.inSpeech && s.unvoiced >= s.endFrames:
		s.inSpeech = false
		return vad.VADEvent{Type: vad.VADSpeechEnd, Probability: prob}
	case s.inSpeech:
		return vad.VADEvent{Type: vad.VADSpeechContinue, Probability: prob}
	default:
		return vad.VADEvent{Type: vad.VADSilence, Probability: prob}
	}
}

// Reset clears the smoothing state.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
	s.voiced = 0
	s.unvoiced = 0
}

// Close marks the session closed. The underlying detector is released by
// its finalizer.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
