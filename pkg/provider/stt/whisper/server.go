package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/digigov-voice/pkg/audio"
	"github.com/MrWong99/digigov-voice/pkg/provider/stt"
)

// Option is a functional option for [New].
type Option func(*Provider)

// WithLanguage sets the default recognition language. BCP-47 tags are
// reduced to their primary subtag.
func WithLanguage(tag string) Option {
	return func(p *Provider) { p.language = whisperLanguage(tag) }
}

// WithModel names the model the server should use. Empty keeps the model
// the server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithSampleRate sets the rate assumed when a stream does not declare one.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithSegmentation tunes utterance detection.
func WithSegmentation(s Segmentation) Option {
	return func(p *Provider) { p.seg = s }
}

// WithHTTPClient replaces the client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider sends utterances to a whisper-server instance (POST /inference).
type Provider struct {
	serverURL  string
	model      string
	language   string
	sampleRate int
	seg        Segmentation
	client     *http.Client
}

var _ stt.Provider = (*Provider)(nil)

// New creates a Provider for the whisper-server at serverURL, for example
// "http://localhost:8080".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: server url is required")
	}
	p := &Provider{
		serverURL:  strings.TrimSuffix(serverURL, "/"),
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a session. No request is made until the first
// utterance is complete.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}
	return newSession(ctx, p.infer, cfg, p.language, p.seg, p.sampleRate), nil
}

// infer uploads pcm as a WAV file and returns the recognised text.
func (p *Provider) infer(ctx context.Context, pcm []byte, f audio.Format, lang string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: form file: %w", err)
	}
	if _, err := fw.Write(encodeWAV(pcm, f)); err != nil {
		return "", fmt.Errorf("whisper: form file: %w", err)
	}
	fields := map[string]string{"language": lang, "model": p.model, "response_format": "json"}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: form field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: inference: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	return out.Text, nil
}

// encodeWAV wraps 16-bit PCM in a canonical 44-byte RIFF header.
func encodeWAV(pcm []byte, f audio.Format) []byte {
	blockAlign := 2 * f.Channels
	buf := make([]byte, 44, 44+len(pcm))
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+len(pcm)))
	copy(buf[8:], "WAVEfmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:], uint32(f.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(buf[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(len(pcm)))
	return append(buf, pcm...)
}
