// Package deepgram implements [stt.Provider] on the Deepgram live
// transcription websocket.
//
// Audio is sent as binary linear16 frames. Control messages (KeepAlive,
// CloseStream) and results are JSON text frames. Deepgram drops a stream that
// has carried no audio for about ten seconds, which happens whenever the
// microphone is paused during spoken feedback, so an idle session sends
// KeepAlive on a timer.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/digigov-voice/pkg/provider/stt"
)

const (
	listenEndpoint    = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en-IN"
	defaultSampleRate = 16000

	// Trailing silence before an utterance is finalised. Voice commands are
	// short, so the final should follow quickly.
	defaultEndpointing = 300 * time.Millisecond

	defaultKeepAlive = 4 * time.Second
	closeTimeout     = 2 * time.Second
)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel selects the model, e.g. "nova-3" or "nova-2".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 tag used when a stream does not name one.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithSampleRate sets the rate assumed when a stream does not name one.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithEndpointing sets the trailing silence that finalises an utterance.
// Zero leaves endpointing to the server.
func WithEndpointing(d time.Duration) Option {
	return func(p *Provider) { p.endpointing = d }
}

// WithEndpoint replaces the listen URL, for proxies and tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithKeepAlive sets how long a session may go without sending audio before
// a KeepAlive is sent.
func WithKeepAlive(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.keepAlive = d
		}
	}
}

// Provider opens Deepgram live transcription sessions.
type Provider struct {
	apiKey      string
	endpoint    string
	model       string
	language    string
	sampleRate  int
	endpointing time.Duration
	keepAlive   time.Duration
}

var _ stt.Provider = (*Provider)(nil)

// New returns a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: api key is required")
	}
	p := &Provider{
		apiKey:      apiKey,
		endpoint:    listenEndpoint,
		model:       defaultModel,
		language:    defaultLanguage,
		sampleRate:  defaultSampleRate,
		endpointing: defaultEndpointing,
		keepAlive:   defaultKeepAlive,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream dials Deepgram. The session is independent of ctx once the
// dial has succeeded and ends only on Close or when the server hangs up.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	target, err := p.listenURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: listen url: %w", err)
	}
	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Token " + p.apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{
		conn:      conn,
		cancel:    cancel,
		keepAlive: p.keepAlive,
		partials:  make(chan stt.Transcript, 64),
		finals:    make(chan stt.Transcript, 64),
		audio:     make(chan []byte, 256),
		closed:    make(chan struct{}),
		sent:      make(chan struct{}),
		received:  make(chan struct{}),
	}
	go s.receive(runCtx)
	go s.send(runCtx)
	return s, nil
}

func (p *Provider) listenURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	lang := orDefault(cfg.Language, p.language)
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(rate))
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if p.endpointing > 0 {
		q.Set("endpointing", strconv.FormatInt(p.endpointing.Milliseconds(), 10))
	}

	// Nova-3 takes plain key terms; older models take word:intensifier pairs.
	keyterms := strings.HasPrefix(p.model, "nova-3")
	for _, kw := range cfg.Keywords {
		if keyterms {
			q.Add("keyterm", kw.Keyword)
		} else {
			q.Add("keywords", kw.Keyword+":"+strconv.FormatFloat(kw.Boost, 'g', -1, 64))
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ── session ──────────────────────────────────────────────────────────────────

type control struct {
	Type string `json:"type"`
}

// result is the subset of a Deepgram "Results" message that is used.
type result struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type session struct {
	conn      *websocket.Conn
	cancel    context.CancelFunc
	keepAlive time.Duration

	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	// closed stops audio intake. sent and received are closed when the
	// sender and receiver goroutines exit.
	closed    chan struct{}
	sent      chan struct{}
	received  chan struct{}
	closeOnce sync.Once
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.closed:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.closed:
		return stt.ErrSessionClosed
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }
func (s *session) Finals() <-chan stt.Transcript   { return s.finals }

// Close stops audio intake and sends CloseStream. Deepgram answers with the
// results still pending and then closes the socket; those results are
// delivered before the transcript channels close. If the server does not
// hang up within closeTimeout the connection is dropped.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		<-s.sent

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := wsjson.Write(ctx, s.conn, control{Type: "CloseStream"}); err != nil {
			slog.Debug("deepgram: close stream failed", "err", err)
		}
		select {
		case <-s.received:
		case <-ctx.Done():
			slog.Debug("deepgram: server did not close the stream in time")
		}
		s.cancel()
		<-s.received
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
	})
	return nil
}

// send forwards audio and keeps an idle stream open. Audio queued before
// Close is still written.
func (s *session) send(ctx context.Context) {
	defer close(s.sent)
	idle := time.NewTimer(s.keepAlive)
	defer idle.Stop()
	for {
		select {
		case <-s.closed:
			for {
				select {
				case chunk := <-s.audio:
					if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
						return
					}
				default:
					return
				}
			}
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
			idle.Reset(s.keepAlive)
		case <-idle.C:
			if err := wsjson.Write(ctx, s.conn, control{Type: "KeepAlive"}); err != nil {
				return
			}
			idle.Reset(s.keepAlive)
		}
	}
}

// receive decodes results until the server closes the connection or ctx is
// cancelled, then closes both transcript channels.
func (s *session) receive(ctx context.Context) {
	defer close(s.received)
	defer close(s.finals)
	defer close(s.partials)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		t, ok := decodeResult(msg)
		if !ok {
			continue
		}
		out := s.partials
		if t.IsFinal {
			out = s.finals
		}
		select {
		case out <- t:
		case <-ctx.Done():
			return
		}
	}
}

// decodeResult extracts the best alternative of a Results message. Other
// message types and empty transcripts, which Deepgram sends for silence,
// are skipped.
func decodeResult(data []byte) (stt.Transcript, bool) {
	var r result
	if err := json.Unmarshal(data, &r); err != nil || r.Type != "Results" || len(r.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}
	alt := r.Channel.Alternatives[0]
	if strings.TrimSpace(alt.Transcript) == "" {
		return stt.Transcript{}, false
	}
	return stt.Transcript{
		Text:       alt.Transcript,
		IsFinal:    r.IsFinal,
		Confidence: alt.Confidence,
		Duration:   time.Duration(r.Duration * float64(time.Second)),
	}, true
}
