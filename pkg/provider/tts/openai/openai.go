// Package openai provides a TTS provider backed by the OpenAI speech API.
//
// Audio is requested in the raw "pcm" response format (24 kHz, 16-bit, mono)
// and streamed to the caller as the HTTP body arrives.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/digigov-voice/pkg/audio"
	"github.com/MrWong99/digigov-voice/pkg/provider/tts"
)

const (
	// DefaultModel is the default OpenAI speech model.
	DefaultModel = oai.SpeechModelTTS1

	// DefaultVoice is used when a request names no voice.
	DefaultVoice = "alloy"

	pcmSampleRate = 24000
	readChunk     = 4800 // 100 ms of 24 kHz mono PCM
)

// builtinVoices are the voices offered by the speech endpoint. They are
// multilingual; Lang records the language they are primarily tuned for.
var builtinVoices = []string{"alloy", "ash", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
	lang   string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
	lang    string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithLanguage sets the language tag reported for the built-in voices.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.lang = lang
	}
}

// New constructs a new OpenAI TTS Provider.
// If model is empty, DefaultModel (tts-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{lang: "en-US"}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model, lang: cfg.lang}, nil
}

// Format implements tts.Provider.
func (p *Provider) Format() audio.Format {
	return audio.Format{SampleRate: pcmSampleRate, Channels: 1}
}

// Voices implements tts.Provider.
func (p *Provider) Voices(_ context.Context) ([]tts.Voice, error) {
	out := make([]tts.Voice, 0, len(builtinVoices))
	for _, v := range builtinVoices {
		out = append(out, tts.Voice{ID: v, Name: v, Lang: p.lang, Default: v == DefaultVoice})
	}
	return out, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (<-chan []byte, error) {
	voice := req.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          req.Text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if req.Rate > 0 {
		params.Speed = oai.Float(clamp(req.Rate, 0.25, 4))
	}
	if req.Pitch != 0 && req.Pitch != 1 {
		slog.Debug("openai tts: pitch is not supported, ignoring", "pitch", req.Pitch)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: synthesize: %w", err)
	}

	out := make(chan []byte, 8)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		streamPCM(ctx, resp.Body, out)
	}()
	return out, nil
}

// streamPCM copies r to out in sample-aligned chunks.
func streamPCM(ctx context.Context, r io.Reader, out chan<- []byte) {
	buf := make([]byte, readChunk)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			even := len(data) &^ 1
			chunk := make([]byte, even)
			copy(chunk, data[:even])
			carry = append([]byte(nil), data[even:]...)
			if len(chunk) > 0 {
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				slog.Warn("openai tts: stream interrupted", "err", err)
			}
			return
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
