package speech_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/digigov-voice/internal/voice/speech"
	"github.com/MrWong99/digigov-voice/pkg/audio"
	audiomock "github.com/MrWong99/digigov-voice/pkg/audio/mock"
	"github.com/MrWong99/digigov-voice/pkg/provider/tts"
	ttsmock "github.com/MrWong99/digigov-voice/pkg/provider/tts/mock"
)

// blockingSynth plays until cancelled or released.
type blockingSynth struct {
	mu      sync.Mutex
	calls   []string
	opts    []speech.Options
	started chan string
	release chan struct{}
	err     error
	voices  []tts.Voice
}

func newBlockingSynth() *blockingSynth {
	return &blockingSynth{started: make(chan string, 8), release: make(chan struct{})}
}

func (b *blockingSynth) Speak(ctx context.Context, text string, opts speech.Options) error {
	b.mu.Lock()
	b.calls = append(b.calls, text)
	b.opts = append(b.opts, opts)
	err := b.err
	b.mu.Unlock()
	b.started <- text
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.release:
		return nil
	}
}

func (b *blockingSynth) Voices(context.Context) ([]tts.Voice, error) { return b.voices, nil }

func (b *blockingSynth) lastOpts() speech.Options {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opts[len(b.opts)-1]
}

func waitStarted(t *testing.T, b *blockingSynth, want string) {
	t.Helper()
	select {
	case got := <-b.started:
		if got != want {
			t.Fatalf("started %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("utterance %q never started", want)
	}
}

func TestSpeak_Unsupported(t *testing.T) {
	t.Parallel()

	s := speech.New(nil)
	if s.Supported() {
		t.Error("Supported = true without synthesizer")
	}
	if err := s.Speak(context.Background(), "hello", speech.Options{}); !errors.Is(err, speech.ErrUnsupported) {
		t.Fatalf("Speak = %v, want ErrUnsupported", err)
	}
}

func TestSpeak_CompletesAndMergesDefaults(t *testing.T) {
	t.Parallel()

	synth := newBlockingSynth()
	close(synth.release)
	s := speech.New(synth, speech.WithDefaults(speech.Options{Lang: "hi-IN", Rate: 0.9}))

	if err := s.Speak(context.Background(), "Opening the dashboard.", speech.Options{Volume: 0.5}); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	got := synth.lastOpts()
	want := speech.Options{Lang: "hi-IN", Rate: 0.9, Pitch: 1, Volume: 0.5}
	if got != want {
		t.Errorf("options = %+v, want %+v", got, want)
	}
	if s.Speaking() {
		t.Error("Speaking = true after completion")
	}
}

func TestSpeak_BlankTextIsNoop(t *testing.T) {
	t.Parallel()

	synth := newBlockingSynth()
	s := speech.New(synth)
	if err := s.Speak(context.Background(), "   ", speech.Options{}); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(synth.calls) != 0 {
		t.Errorf("synthesizer called for blank text")
	}
}

func TestSpeak_NewerUtteranceInterrupts(t *testing.T) {
	t.Parallel()

	synth := newBlockingSynth()
	s := speech.New(synth)

	first := make(chan error, 1)
	go func() { first <- s.Speak(context.Background(), "first", speech.Options{}) }()
	waitStarted(t, synth, "first")

	second := make(chan error, 1)
	go func() { second <- s.Speak(context.Background(), "second", speech.Options{}) }()

	if err := <-first; !errors.Is(err, speech.ErrInterrupted) {
		t.Fatalf("first Speak = %v, want ErrInterrupted", err)
	}
	waitStarted(t, synth, "second")
	close(synth.release)
	if err := <-second; err != nil {
		t.Fatalf("second Speak = %v", err)
	}
}

func TestStopSpeaking(t *testing.T) {
	t.Parallel()

	synth := newBlockingSynth()
	s := speech.New(synth)

	done := make(chan error, 1)
	go func() { done <- s.Speak(context.Background(), "a long announcement", speech.Options{}) }()
	waitStarted(t, synth, "a long announcement")

	s.StopSpeaking()
	if s.Speaking() {
		t.Error("Speaking = true after StopSpeaking returned")
	}
	if err := <-done; !errors.Is(err, speech.ErrInterrupted) {
		t.Fatalf("Speak = %v, want ErrInterrupted", err)
	}
	s.StopSpeaking()
}

func TestSpeak_ErrorsAndCancellation(t *testing.T) {
	t.Parallel()

	boom := errors.New("device gone")
	synth := newBlockingSynth()
	synth.err = boom
	s := speech.New(synth)
	if err := s.Speak(context.Background(), "hello", speech.Options{}); !errors.Is(err, boom) {
		t.Fatalf("Speak = %v, want %v", err, boom)
	}

	blocking := newBlockingSynth()
	s = speech.New(blocking)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Speak(ctx, "hello", speech.Options{}) }()
	waitStarted(t, blocking, "hello")
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Speak after cancel = %v, want context.Canceled", err)
	}
}

func TestPreferredVoice(t *testing.T) {
	t.Parallel()

	voices := []tts.Voice{
		{ID: "alloy", Lang: "en-US"},
		{ID: "hindi", Lang: "hi-IN"},
		{ID: "british", Lang: "en_GB"},
		{ID: "indian", Lang: "en-IN"},
	}

	tests := []struct {
		lang string
		want string
	}{
		{"hi-IN", "hindi"},
		{"HI", "hindi"},
		{"en-IN", "indian"},
		{"en-in", "indian"},
		{"en-GB", "british"},
		{"en-AU", "alloy"},
		{"en", "alloy"},
		{"ta-IN", "alloy"},
		{"", "alloy"},
	}
	synth := newBlockingSynth()
	synth.voices = voices
	s := speech.New(synth)
	for _, tc := range tests {
		v, err := s.PreferredVoice(context.Background(), tc.lang)
		if err != nil {
			t.Fatalf("PreferredVoice(%q): %v", tc.lang, err)
		}
		if v.ID != tc.want {
			t.Errorf("PreferredVoice(%q) = %s, want %s", tc.lang, v.ID, tc.want)
		}
	}

	empty := speech.New(newBlockingSynth())
	if _, err := empty.PreferredVoice(context.Background(), "en"); !errors.Is(err, speech.ErrNoVoice) {
		t.Errorf("PreferredVoice with no voices = %v, want ErrNoVoice", err)
	}
}

func TestPlaybackSynthesizer(t *testing.T) {
	t.Parallel()

	// Two samples at full scale.
	chunk := []byte{0xff, 0x7f, 0x00, 0x80}
	prov := &ttsmock.Provider{
		Chunks:      [][]byte{chunk, chunk},
		AudioFormat: audio.Format{SampleRate: 24000, Channels: 1},
	}
	sink := &audiomock.Sink{}
	p := speech.NewPlaybackSynthesizer(prov, sink)

	err := p.Speak(context.Background(), "Form submitted.", speech.Options{Lang: "en-IN", Rate: 1.2, Volume: 0.5, Voice: "alloy"})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}

	reqs := prov.Requests()
	if len(reqs) != 1 || reqs[0].Text != "Form submitted." || reqs[0].Voice != "alloy" || reqs[0].Rate != 1.2 {
		t.Errorf("requests = %+v", reqs)
	}
	calls := sink.PlayCalls()
	if len(calls) != 2 {
		t.Fatalf("play calls = %d, want 2", len(calls))
	}
	if calls[0].Format != prov.AudioFormat {
		t.Errorf("format = %+v, want provider format", calls[0].Format)
	}
	got := int16(uint16(calls[0].PCM[0]) | uint16(calls[0].PCM[1])<<8)
	if got != 16384 {
		t.Errorf("first sample = %d, want 16384 after half gain", got)
	}
}

func TestPlaybackSynthesizer_ConvertsToOutputFormat(t *testing.T) {
	t.Parallel()

	prov := &ttsmock.Provider{
		Chunks:      [][]byte{make([]byte, 480)},
		AudioFormat: audio.Format{SampleRate: 24000, Channels: 1},
	}
	sink := &audiomock.Sink{}
	out := audio.Format{SampleRate: 48000, Channels: 2}
	p := speech.NewPlaybackSynthesizer(prov, sink, speech.WithOutputFormat(out))

	if err := p.Speak(context.Background(), "hello", speech.Options{}); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	calls := sink.PlayCalls()
	if len(calls) != 1 || calls[0].Format != out {
		t.Fatalf("calls = %+v", calls)
	}
	if len(calls[0].PCM) != 480*4 {
		t.Errorf("converted length = %d, want %d", len(calls[0].PCM), 480*4)
	}
}

func TestPlaybackSynthesizer_SinkFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("speaker unplugged")
	prov := &ttsmock.Provider{Chunks: [][]byte{make([]byte, 4), make([]byte, 4)}}
	p := speech.NewPlaybackSynthesizer(prov, &audiomock.Sink{PlayErr: boom})
	if err := p.Speak(context.Background(), "hello", speech.Options{}); !errors.Is(err, boom) {
		t.Fatalf("Speak = %v, want %v", err, boom)
	}
}
