// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Sink] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so that tests
// can assert on call counts and arguments.
//
// Typical usage:
//
//	mic := &mock.Source{}
//	capture, _ := mic.Open(ctx, audio.Format{SampleRate: 16000, Channels: 1})
//	mic.LastCapture().Push(make([]byte, 640))
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/digigov-voice/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source]. It enforces exclusive
// ownership the same way real devices do.
type Source struct {
	mu sync.Mutex

	// ProbeErr, if non-nil, is returned by Probe.
	ProbeErr error

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	probeCalls int
	opens      []audio.Format
	captures   []*Capture
	active     *Capture
}

// Probe records the call and returns ProbeErr.
func (s *Source) Probe(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probeCalls++
	return s.ProbeErr
}

// Open returns a new Capture, or [audio.ErrDeviceBusy] while another capture
// is still open.
func (s *Source) Open(_ context.Context, f audio.Format) (audio.Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens = append(s.opens, f)
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	if s.active != nil && !s.active.isClosed() {
		return nil, audio.ErrDeviceBusy
	}
	c := &Capture{
		format: f,
		frames: make(chan audio.AudioFrame, 64),
	}
	s.captures = append(s.captures, c)
	s.active = c
	return c, nil
}

// ProbeCount returns the number of Probe calls.
func (s *Source) ProbeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probeCalls
}

// OpenCount returns the number of Open calls, including failed ones.
func (s *Source) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.opens)
}

// LastCapture returns the most recently opened capture, or nil.
func (s *Source) LastCapture() *Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.captures) == 0 {
		return nil
	}
	return s.captures[len(s.captures)-1]
}

var _ audio.Source = (*Source)(nil)

// Capture is a mock [audio.Capture]. Frames are injected with Push.
type Capture struct {
	mu     sync.Mutex
	format audio.Format
	frames chan audio.AudioFrame
	closed bool
	err    error
}

// Push delivers pcm as a frame. No-op after Close.
func (c *Capture) Push(pcm []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.frames <- audio.AudioFrame{Data: pcm, SampleRate: c.format.SampleRate, Channels: c.format.Channels}
}

// Fail ends the capture with err, as a device failure would.
func (c *Capture) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.err = err
	c.closed = true
	close(c.frames)
}

// Frames returns the frame channel.
func (c *Capture) Frames() <-chan audio.AudioFrame { return c.frames }

// Err returns the error passed to Fail.
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the frame channel. Safe to call more than once.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.frames)
	}
	return nil
}

func (c *Capture) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

var _ audio.Capture = (*Capture)(nil)

// ─── Sink ─────────────────────────────────────────────────────────────────────

// PlayCall records a single invocation of [Sink.Play].
type PlayCall struct {
	PCM    []byte
	Format audio.Format
}

// Sink is a mock implementation of [audio.Sink].
type Sink struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by Play.
	PlayErr error

	// Delay makes Play block for the given time (or until ctx is cancelled)
	// to emulate real playback.
	Delay time.Duration

	// Started, if non-nil, receives a value when Play begins.
	Started chan struct{}

	calls []PlayCall
}

// Play records the call and blocks for Delay.
func (s *Sink) Play(ctx context.Context, pcm []byte, f audio.Format) error {
	s.mu.Lock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.calls = append(s.calls, PlayCall{PCM: cp, Format: f})
	delay, err, started := s.Delay, s.PlayErr, s.Started
	s.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if err != nil {
		return err
	}
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PlayCalls returns a copy of the recorded calls.
func (s *Sink) PlayCalls() []PlayCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PlayCall, len(s.calls))
	copy(out, s.calls)
	return out
}

var _ audio.Sink = (*Sink)(nil)
