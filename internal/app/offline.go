package app

import (
	"sync"

	"github.com/MrWong99/digigov-voice/internal/voice/transcribe"
)

// offlineEngine stands in for recognition when no STT provider or microphone
// is configured. Every session ends immediately with not-allowed, which
// disables the assistant.
type offlineEngine struct {
	mu       sync.Mutex
	listener transcribe.Listener
}

var _ transcribe.Engine = (*offlineEngine)(nil)

func newOfflineEngine() *offlineEngine { return &offlineEngine{} }

func (e *offlineEngine) SetListener(l transcribe.Listener) {
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
}

func (e *offlineEngine) Start(transcribe.EngineOptions) error {
	e.mu.Lock()
	l := e.listener
	e.mu.Unlock()
	if l != nil {
		go func() {
			l.OnError(transcribe.CodeNotAllowed)
			l.OnEnd()
		}()
	}
	return nil
}

func (e *offlineEngine) Stop()  {}
func (e *offlineEngine) Abort() {}
