//go:build whisper

package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/digigov-voice/pkg/audio"
	"github.com/MrWong99/digigov-voice/pkg/provider/stt"
)

// NativeOption is a functional option for [NewNative].
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default recognition language.
func WithNativeLanguage(tag string) NativeOption {
	return func(p *NativeProvider) { p.language = whisperLanguage(tag) }
}

// WithNativeSegmentation tunes utterance detection.
func WithNativeSegmentation(s Segmentation) NativeOption {
	return func(p *NativeProvider) { p.seg = s }
}

// NativeProvider runs a whisper.cpp model in-process. libwhisper and
// whisper.h must be reachable through LIBRARY_PATH and C_INCLUDE_PATH.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	seg      Segmentation

	// mu serialises inference; a model context is not safe for concurrent
	// use and one recognizer runs at a time anyway.
	mu sync.Mutex
}

var _ stt.Provider = (*NativeProvider)(nil)

// NewNative loads the ggml model at modelPath. Call Close to release it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path is required")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &NativeProvider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *NativeProvider) Close() error { return p.model.Close() }

func (p *NativeProvider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}
	return newSession(ctx, p.infer, cfg, p.language, p.seg, defaultSampleRate), nil
}

func (p *NativeProvider) infer(_ context.Context, pcm []byte, f audio.Format, lang string) (string, error) {
	// whisper.cpp wants 16 kHz mono float samples.
	if f.SampleRate != defaultSampleRate || f.Channels != 1 {
		pcm = audio.NewConverter(f, audio.Format{SampleRate: defaultSampleRate, Channels: 1}).Convert(pcm)
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: new context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: language not supported by model, using auto", "language", lang, "err", err)
		_ = wctx.SetLanguage("auto")
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process: %w", err)
	}

	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: next segment: %w", err)
		}
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}
