// Package mock provides test doubles for the stt package interfaces.
//
// Provider hands out Sessions whose transcript channels are driven by the test:
//
//	p := &mock.Provider{}
//	h, _ := p.StartStream(ctx, cfg)
//	p.LastSession().EmitFinal("go to dashboard")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/digigov-voice/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall

	sessions []*Session
}

// StartStream records the call and returns a fresh Session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	s := NewSession()
	p.sessions = append(p.sessions, s)
	return s, nil
}

// LastSession returns the most recently started session, or nil.
func (p *Provider) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// StartCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) StartCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle. Transcripts pushed
// with EmitPartial and EmitFinal are delivered on the corresponding channel.
type Session struct {
	mu sync.Mutex

	partials chan stt.Transcript
	finals   chan stt.Transcript
	closed   bool

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	chunks     int
	closeCalls int
}

// NewSession returns a Session with buffered transcript channels.
func NewSession() *Session {
	return &Session{
		partials: make(chan stt.Transcript, 16),
		finals:   make(chan stt.Transcript, 16),
	}
}

// SendAudio counts the chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	s.chunks++
	return s.SendAudioErr
}

// Partials returns the interim transcript channel.
func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the final transcript channel.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// EmitPartial queues an interim transcript. No-op after Close.
func (s *Session) EmitPartial(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.partials <- stt.Transcript{Text: text}
	}
}

// EmitFinal queues a final transcript. No-op after Close.
func (s *Session) EmitFinal(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.finals <- stt.Transcript{Text: text, IsFinal: true, Confidence: 1}
	}
}

// Close closes both channels. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	if !s.closed {
		s.closed = true
		close(s.partials)
		close(s.finals)
	}
	return nil
}

// ChunkCount returns the number of successful SendAudio calls.
func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// CloseCount returns the number of Close calls.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

var _ stt.SessionHandle = (*Session)(nil)
