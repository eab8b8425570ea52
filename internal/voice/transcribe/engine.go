// Package transcribe adapts a speech recognition engine into the continuous
// transcript stream the voice assistant consumes.
//
// An [Engine] is the low-level recognizer: it is started and stopped
// explicitly and reports result batches, errors and the end of each session
// through a [Listener]. [Recognizer] wraps an Engine with the behaviour the
// assistant relies on: finals are accumulated and reported trimmed, interim
// hypotheses are passed through, dropped sessions are restarted, and transient
// errors are retried after a delay while the caller still wants to listen.
//
// [StreamingEngine] is the production Engine. It pairs the microphone with a
// streaming STT provider and, optionally, a VAD engine for no-speech detection.
package transcribe

import "errors"

// ErrAlreadyStarted is returned by [Engine.Start] while a session is running.
var ErrAlreadyStarted = errors.New("transcribe: engine already started")

// ErrorCode classifies recognition failures reported through [Listener.OnError].
type ErrorCode string

const (
	// CodeAborted is reported when a session is cancelled with Abort. It is
	// expected during intentional stop and restart races.
	CodeAborted ErrorCode = "aborted"

	// CodeNoSpeech is reported when a session heard no speech in time.
	CodeNoSpeech ErrorCode = "no-speech"

	// CodeAudioCapture is reported when the microphone could not deliver audio.
	CodeAudioCapture ErrorCode = "audio-capture"

	// CodeNotAllowed is reported when microphone access was refused.
	CodeNotAllowed ErrorCode = "not-allowed"

	// CodeNetwork is reported when the recognition service failed.
	CodeNetwork ErrorCode = "network"

	// CodeRestartExhausted is reported by [Recognizer] when repeated failures
	// opened its circuit breaker and automatic restarts were given up.
	CodeRestartExhausted ErrorCode = "restart-exhausted"
)

// Transient reports whether the recognizer retries after this error.
func (c ErrorCode) Transient() bool {
	return c == CodeNoSpeech || c == CodeAudioCapture
}

// Segment is one recognition hypothesis within a result batch.
type Segment struct {
	Text       string
	Final      bool
	Confidence float64
}

// Listener receives engine callbacks. Callbacks may arrive on any goroutine
// but never concurrently for the same engine.
type Listener interface {
	// OnResults delivers a batch of new segments.
	OnResults(segments []Segment)

	// OnEnd reports that the current session ended, whether by Stop, Abort,
	// an error or the engine deciding the utterance is over.
	OnEnd()

	// OnError reports a failure. OnEnd follows.
	OnError(code ErrorCode)
}

// EngineOptions configures a single engine session.
type EngineOptions struct {
	// Continuous keeps the session open across utterances. When false the
	// session ends after the first final segment.
	Continuous bool

	// InterimResults requests non-final hypotheses.
	InterimResults bool

	// Language is a BCP-47 tag such as "en-IN".
	Language string
}

// Engine is a start/stop speech recognizer.
//
// Start returns [ErrAlreadyStarted] while a session is running. Every other
// failure is reported asynchronously through OnError followed by OnEnd.
// Stop ends the session gracefully, delivering pending results. Abort ends it
// immediately and reports [CodeAborted]. Both are no-ops when idle.
type Engine interface {
	SetListener(l Listener)
	Start(opts EngineOptions) error
	Stop()
	Abort()
}
