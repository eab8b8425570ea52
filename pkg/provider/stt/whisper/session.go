// Package whisper implements [stt.Provider] on whisper.cpp, the offline
// recognizer used as a fallback when the cloud recognizer is unreachable.
//
// whisper.cpp transcribes whole clips, so sessions cut the microphone stream
// into utterances with an energy gate: speech starts when a chunk's RMS level
// crosses the threshold and ends after a run of quiet chunks or when the
// utterance reaches its maximum length. Each utterance yields one final
// transcript, preceded by an identical partial when interim results were
// requested.
//
// Two backends share this session: [Provider] posts clips to a running
// whisper-server, and NativeProvider (built with -tags whisper) runs the
// model in-process through the cgo bindings.
package whisper

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/digigov-voice/pkg/audio"
	"github.com/MrWong99/digigov-voice/pkg/provider/stt"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// defaultThreshold is the RMS level, in 16-bit sample units, above which
	// a chunk counts as speech.
	defaultThreshold = 300.0

	defaultTrailingSilence = 600 * time.Millisecond
	defaultMaxUtterance    = 10 * time.Second

	// flushTimeout bounds the transcription of the last utterance on Close.
	flushTimeout = 15 * time.Second
)

// transcribeFunc turns one utterance of 16-bit PCM into text.
type transcribeFunc func(ctx context.Context, pcm []byte, f audio.Format, lang string) (string, error)

// Segmentation tunes utterance detection. Zero fields take the defaults.
type Segmentation struct {
	Threshold       float64
	TrailingSilence time.Duration
	MaxUtterance    time.Duration
}

func (s Segmentation) withDefaults() Segmentation {
	if s.Threshold <= 0 {
		s.Threshold = defaultThreshold
	}
	if s.TrailingSilence <= 0 {
		s.TrailingSilence = defaultTrailingSilence
	}
	if s.MaxUtterance <= 0 {
		s.MaxUtterance = defaultMaxUtterance
	}
	return s
}

// whisperLanguage maps a BCP-47 tag such as "en-IN" to the ISO 639-1 code
// whisper.cpp expects.
func whisperLanguage(tag string) string {
	primary, _, _ := strings.Cut(strings.TrimSpace(tag), "-")
	return strings.ToLower(primary)
}

// ── segmenter ────────────────────────────────────────────────────────────────

// segmenter accumulates speech and reports complete utterances.
type segmenter struct {
	cfg    Segmentation
	format audio.Format

	buf    []byte
	voiced bool
	quiet  time.Duration
}

// push adds chunk and returns an utterance once one is complete. Silence
// before the first voiced chunk is dropped.
func (g *segmenter) push(chunk []byte) []byte {
	if rms(chunk) >= g.cfg.Threshold {
		g.voiced = true
		g.quiet = 0
		g.buf = append(g.buf, chunk...)
		if audio.PCMDuration(len(g.buf), g.format) >= g.cfg.MaxUtterance {
			return g.take()
		}
		return nil
	}
	if !g.voiced {
		return nil
	}
	g.buf = append(g.buf, chunk...)
	g.quiet += audio.PCMDuration(len(chunk), g.format)
	if g.quiet >= g.cfg.TrailingSilence {
		return g.take()
	}
	return nil
}

// take returns the buffered speech, if any, and resets.
func (g *segmenter) take() []byte {
	out := g.buf
	if !g.voiced {
		out = nil
	}
	g.buf, g.voiced, g.quiet = nil, false, 0
	return out
}

func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// ── session ──────────────────────────────────────────────────────────────────

type session struct {
	transcribe transcribeFunc
	lang       string
	interim    bool
	seg        segmenter

	audio    chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	closed    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(ctx context.Context, fn transcribeFunc, cfg stt.StreamConfig, lang string, seg Segmentation, sampleRate int) *session {
	if cfg.Language != "" {
		lang = whisperLanguage(cfg.Language)
	}
	f := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if f.SampleRate <= 0 {
		f.SampleRate = sampleRate
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	s := &session{
		transcribe: fn,
		lang:       lang,
		interim:    cfg.InterimResults,
		seg:        segmenter{cfg: seg.withDefaults(), format: f},
		audio:      make(chan []byte, 256),
		partials:   make(chan stt.Transcript, 16),
		finals:     make(chan stt.Transcript, 16),
		closed:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.run(context.WithoutCancel(ctx))
	return s
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

// Close transcribes the speech still buffered, delivers it and closes both
// channels.
func (s *session) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	<-s.done
	return nil
}

func (s *session) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.finals)
	defer close(s.partials)

	for {
		select {
		case chunk := <-s.audio:
			if utt := s.seg.push(chunk); utt != nil {
				s.emit(ctx, utt)
			}
		case <-s.closed:
		drain:
			for {
				select {
				case chunk := <-s.audio:
					if utt := s.seg.push(chunk); utt != nil {
						s.emit(ctx, utt)
					}
				default:
					break drain
				}
			}
			if utt := s.seg.take(); utt != nil {
				fctx, cancel := context.WithTimeout(ctx, flushTimeout)
				s.emit(fctx, utt)
				cancel()
			}
			return
		}
	}
}

func (s *session) emit(ctx context.Context, pcm []byte) {
	start := time.Now()
	text, err := s.transcribe(ctx, pcm, s.seg.format, s.lang)
	if err != nil {
		slog.Warn("whisper: transcription failed", "err", err)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	slog.Debug("whisper: utterance transcribed", "audio", audio.PCMDuration(len(pcm), s.seg.format), "took", time.Since(start))

	t := stt.Transcript{Text: text, Duration: audio.PCMDuration(len(pcm), s.seg.format)}
	if s.interim {
		select {
		case s.partials <- t:
		default:
		}
	}
	t.IsFinal = true
	s.finals <- t
}
