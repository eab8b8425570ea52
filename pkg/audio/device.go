// Package audio defines the local audio device abstractions used by the voice
// assistant and the PCM helpers shared between capture and playback.
//
// The two primary abstractions are:
//
//   - [Source]: a microphone. [Source.Probe] checks that the device can be
//     opened (the permission check performed before the assistant is enabled)
//     and [Source.Open] starts a [Capture] that delivers frames.
//   - [Sink]: a speaker. [Sink.Play] blocks until the PCM buffer has been
//     played or the context is cancelled.
//
// Implementations live in platform-specific subpackages (audio/portaudio).
// A microphone can be held by one capture at a time; a second Open returns
// [ErrDeviceBusy] until the first capture is closed.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned when the operating system refuses
	// access to the capture device.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")

	// ErrNoDevice is returned when no suitable device exists.
	ErrNoDevice = errors.New("audio: no device available")

	// ErrDeviceBusy is returned by Source.Open while another capture holds
	// the device.
	ErrDeviceBusy = errors.New("audio: device busy")
)

// Capture is an open microphone stream.
type Capture interface {
	// Frames delivers captured audio. The channel is closed after Close or
	// when the device fails.
	Frames() <-chan AudioFrame

	// Err reports the error that ended the capture, if any.
	Err() error

	// Close stops capturing and releases the device. Safe to call more than
	// once.
	Close() error
}

// Source is a capture device.
type Source interface {
	// Probe opens and immediately releases the device to verify that it is
	// present and accessible.
	Probe(ctx context.Context) error

	// Open starts capturing in the requested format.
	Open(ctx context.Context, f Format) (Capture, error)
}

// Sink is a playback device.
type Sink interface {
	// Play renders pcm in format f and returns once playback finished. It
	// returns ctx.Err() if the context is cancelled mid-playback; output stops
	// within one buffer.
	Play(ctx context.Context, pcm []byte, f Format) error
}
