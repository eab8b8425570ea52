// Package mock provides a scriptable [transcribe.Engine] for tests.
//
// The engine never calls its listener on its own; tests drive it:
//
//	eng := &mock.Engine{}
//	rec := transcribe.New(eng, cfg, onResult)
//	_ = rec.StartListening()
//	eng.EmitFinal("hey digigov")
//	eng.End()
package mock

import (
	"sync"

	"github.com/MrWong99/digigov-voice/internal/voice/transcribe"
)

// Engine is a mock implementation of transcribe.Engine.
type Engine struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// BeforeStart, if set, runs at the top of Start without the lock held.
	BeforeStart func()

	listener   transcribe.Listener
	running    bool
	startCalls []transcribe.EngineOptions
	stopCalls  int
	abortCalls int
}

var _ transcribe.Engine = (*Engine)(nil)

// SetListener implements transcribe.Engine.
func (e *Engine) SetListener(l transcribe.Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

// Start records the call. It returns StartErr, or
// transcribe.ErrAlreadyStarted while running.
func (e *Engine) Start(opts transcribe.EngineOptions) error {
	if e.BeforeStart != nil {
		e.BeforeStart()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startCalls = append(e.startCalls, opts)
	if e.StartErr != nil {
		return e.StartErr
	}
	if e.running {
		return transcribe.ErrAlreadyStarted
	}
	e.running = true
	return nil
}

// Stop records the call. Like a real engine it delivers OnEnd if a session
// was running.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopCalls++
	wasRunning := e.running
	e.running = false
	l := e.listener
	e.mu.Unlock()
	if wasRunning && l != nil {
		l.OnEnd()
	}
}

// Abort records the call and delivers aborted followed by OnEnd if a session
// was running.
func (e *Engine) Abort() {
	e.mu.Lock()
	e.abortCalls++
	wasRunning := e.running
	e.running = false
	l := e.listener
	e.mu.Unlock()
	if wasRunning && l != nil {
		l.OnError(transcribe.CodeAborted)
		l.OnEnd()
	}
}

// Emit delivers a result batch.
func (e *Engine) Emit(segments ...transcribe.Segment) {
	if l := e.getListener(); l != nil {
		l.OnResults(segments)
	}
}

// EmitFinal delivers a single final segment.
func (e *Engine) EmitFinal(text string) {
	e.Emit(transcribe.Segment{Text: text, Final: true, Confidence: 1})
}

// EmitInterim delivers a single interim segment.
func (e *Engine) EmitInterim(text string) {
	e.Emit(transcribe.Segment{Text: text})
}

// End ends the running session as the engine would on silence.
func (e *Engine) End() {
	e.mu.Lock()
	e.running = false
	l := e.listener
	e.mu.Unlock()
	if l != nil {
		l.OnEnd()
	}
}

// Fail reports code and ends the session.
func (e *Engine) Fail(code transcribe.ErrorCode) {
	e.mu.Lock()
	e.running = false
	l := e.listener
	e.mu.Unlock()
	if l != nil {
		l.OnError(code)
		l.OnEnd()
	}
}

// Running reports whether a session is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// StartCalls returns a copy of the options passed to every Start call.
func (e *Engine) StartCalls() []transcribe.EngineOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]transcribe.EngineOptions, len(e.startCalls))
	copy(out, e.startCalls)
	return out
}

// StartCount returns the number of Start calls.
func (e *Engine) StartCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.startCalls)
}

// StopCount returns the number of Stop calls.
func (e *Engine) StopCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopCalls
}

// AbortCount returns the number of Abort calls.
func (e *Engine) AbortCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.abortCalls
}

func (e *Engine) getListener() transcribe.Listener {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listener
}
