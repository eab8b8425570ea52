package transcribe

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/digigov-voice/pkg/audio"
	"github.com/MrWong99/digigov-voice/pkg/provider/stt"
	"github.com/MrWong99/digigov-voice/pkg/provider/vad"
)

const (
	// DefaultNoSpeechTimeout is how long a session may run without detected
	// speech before it reports [CodeNoSpeech].
	DefaultNoSpeechTimeout = 8 * time.Second

	vadFrameMs = 20
)

// StreamingOption is a functional option for [NewStreamingEngine].
type StreamingOption func(*StreamingEngine)

// WithVAD enables voice activity detection. Speech frames reset the no-speech
// timer; without VAD any transcript resets it.
func WithVAD(engine vad.Engine, mode int) StreamingOption {
	return func(e *StreamingEngine) {
		e.vad = engine
		e.vadMode = mode
	}
}

// WithNoSpeechTimeout overrides [DefaultNoSpeechTimeout].
func WithNoSpeechTimeout(d time.Duration) StreamingOption {
	return func(e *StreamingEngine) {
		if d > 0 {
			e.noSpeech = d
		}
	}
}

// WithKeywords passes vocabulary hints, typically the wake word, to the STT
// provider.
func WithKeywords(kw ...stt.KeywordBoost) StreamingOption {
	return func(e *StreamingEngine) { e.keywords = kw }
}

// WithCaptureFormat overrides the default 16 kHz mono capture format.
func WithCaptureFormat(f audio.Format) StreamingOption {
	return func(e *StreamingEngine) { e.format = f }
}

// StreamingEngine implements [Engine] by streaming microphone audio into an
// STT provider. The microphone is opened on Start and released when the
// session ends, so two engines sharing one device must not run at once.
type StreamingEngine struct {
	source   audio.Source
	provider stt.Provider
	vad      vad.Engine
	vadMode  int
	noSpeech time.Duration
	keywords []stt.KeywordBoost
	format   audio.Format

	mu       sync.Mutex
	listener Listener
	current  *streamSession
}

var _ Engine = (*StreamingEngine)(nil)

// NewStreamingEngine creates an engine reading from source and transcribing
// with provider.
func NewStreamingEngine(source audio.Source, provider stt.Provider, opts ...StreamingOption) *StreamingEngine {
	e := &StreamingEngine{
		source:   source,
		provider: provider,
		noSpeech: DefaultNoSpeechTimeout,
		format:   audio.Format{SampleRate: 16000, Channels: 1},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SetListener implements [Engine].
func (e *StreamingEngine) SetListener(l Listener) {
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
}

// Start implements [Engine].
func (e *StreamingEngine) Start(opts EngineOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &streamSession{
		engine: e,
		opts:   opts,
		cancel: cancel,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	e.current = s
	go s.run(ctx)
	return nil
}

// Stop implements [Engine].
func (e *StreamingEngine) Stop() {
	if s := e.session(); s != nil {
		s.stopOnce.Do(func() { close(s.stopCh) })
	}
}

// Abort implements [Engine].
func (e *StreamingEngine) Abort() {
	if s := e.session(); s != nil {
		s.mu.Lock()
		s.aborted = true
		s.mu.Unlock()
		s.cancel()
	}
}

// Wait blocks until the current session, if any, has fully ended.
func (e *StreamingEngine) Wait() {
	if s := e.session(); s != nil {
		<-s.done
	}
}

func (e *StreamingEngine) session() *streamSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *StreamingEngine) getListener() Listener {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listener
}

// streamSession is one Start..OnEnd cycle.
type streamSession struct {
	engine   *StreamingEngine
	opts     EngineOptions
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	aborted bool
}

func (s *streamSession) isAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

func (s *streamSession) run(ctx context.Context) {
	e := s.engine
	defer func() {
		s.cancel()
		e.mu.Lock()
		if e.current == s {
			e.current = nil
		}
		e.mu.Unlock()
		if l := e.getListener(); l != nil {
			l.OnEnd()
		}
		close(s.done)
	}()

	if code, ok := s.loop(ctx); ok {
		if l := e.getListener(); l != nil {
			l.OnError(code)
		}
	}
}

// loop runs the session and returns the error to report, if any.
func (s *streamSession) loop(ctx context.Context) (ErrorCode, bool) {
	e := s.engine

	capture, err := e.source.Open(ctx, e.format)
	if err != nil {
		if s.isAborted() {
			return CodeAborted, true
		}
		slog.Warn("transcribe: microphone unavailable", "err", err)
		if errors.Is(err, audio.ErrPermissionDenied) {
			return CodeNotAllowed, true
		}
		return CodeAudioCapture, true
	}
	defer capture.Close()

	sess, err := e.provider.StartStream(ctx, stt.StreamConfig{
		SampleRate:     e.format.SampleRate,
		Channels:       e.format.Channels,
		Language:       s.opts.Language,
		InterimResults: s.opts.InterimResults,
		Keywords:       e.keywords,
	})
	if err != nil {
		if s.isAborted() {
			return CodeAborted, true
		}
		slog.Warn("transcribe: stt session failed", "err", err)
		return CodeNetwork, true
	}
	sessClosed := false
	defer func() {
		if !sessClosed {
			_ = sess.Close()
		}
	}()

	detector := s.newDetector()
	if detector != nil {
		defer detector.close()
	}

	noSpeech := time.NewTimer(e.noSpeech)
	defer noSpeech.Stop()
	resetNoSpeech := func() {
		if !noSpeech.Stop() {
			select {
			case <-noSpeech.C:
			default:
			}
		}
		noSpeech.Reset(e.noSpeech)
	}

	frames := capture.Frames()
	partials := sess.Partials()
	finals := sess.Finals()

	for {
		select {
		case <-ctx.Done():
			return CodeAborted, true

		case <-s.stopCh:
			_ = capture.Close()
			// Close waits for the provider's last results, which flush
			// consumes until the channel closes.
			closed := make(chan struct{})
			go func() {
				_ = sess.Close()
				close(closed)
			}()
			sessClosed = true
			s.flush(finals)
			<-closed
			return "", false

		case <-noSpeech.C:
			return CodeNoSpeech, true

		case f, ok := <-frames:
			if !ok {
				if err := capture.Err(); err != nil {
					slog.Warn("transcribe: capture failed", "err", err)
					return CodeAudioCapture, true
				}
				return "", false
			}
			if err := sess.SendAudio(f.Data); err != nil {
				slog.Warn("transcribe: sending audio failed", "err", err)
				return CodeNetwork, true
			}
			if detector != nil && detector.speech(f.Data) {
				resetNoSpeech()
			}

		case t, ok := <-partials:
			if !ok {
				partials = nil
				if finals == nil {
					return CodeNetwork, true
				}
				continue
			}
			if detector == nil {
				resetNoSpeech()
			}
			s.deliver(Segment{Text: t.Text, Confidence: t.Confidence})

		case t, ok := <-finals:
			if !ok {
				finals = nil
				if partials == nil {
					return CodeNetwork, true
				}
				continue
			}
			resetNoSpeech()
			s.deliver(Segment{Text: t.Text, Final: true, Confidence: t.Confidence})
			if !s.opts.Continuous {
				return "", false
			}
		}
	}
}

// flush delivers finals that were still buffered when the session closed.
func (s *streamSession) flush(finals <-chan stt.Transcript) {
	if finals == nil {
		return
	}
	for t := range finals {
		s.deliver(Segment{Text: t.Text, Final: true, Confidence: t.Confidence})
	}
}

func (s *streamSession) deliver(seg Segment) {
	if seg.Text == "" {
		return
	}
	if l := s.engine.getListener(); l != nil {
		l.OnResults([]Segment{seg})
	}
}

func (s *streamSession) newDetector() *speechDetector {
	e := s.engine
	if e.vad == nil {
		return nil
	}
	h, err := e.vad.NewSession(vad.Config{
		SampleRate:  e.format.SampleRate,
		FrameSizeMs: vadFrameMs,
		Mode:        e.vadMode,
	})
	if err != nil {
		slog.Warn("transcribe: vad unavailable, falling back to transcript activity", "err", err)
		return nil
	}
	return &speechDetector{
		session:    h,
		frameBytes: e.format.SampleRate / 1000 * vadFrameMs * 2 * max(e.format.Channels, 1),
	}
}

// speechDetector feeds captured audio to a VAD session in fixed-size frames.
type speechDetector struct {
	session    vad.SessionHandle
	frameBytes int
	pending    []byte
}

// speech reports whether any complete frame in pcm contained speech.
func (d *speechDetector) speech(pcm []byte) bool {
	d.pending = append(d.pending, pcm...)
	heard := false
	for len(d.pending) >= d.frameBytes {
		frame := d.pending[:d.frameBytes]
		ev, err := d.session.ProcessFrame(frame)
		d.pending = d.pending[d.frameBytes:]
		if err != nil {
			slog.Debug("transcribe: vad frame rejected", "err", err)
			continue
		}
		if ev.Type.IsSpeech() {
			heard = true
		}
	}
	if len(d.pending) == 0 {
		d.pending = nil
	}
	return heard
}

func (d *speechDetector) close() { _ = d.session.Close() }
