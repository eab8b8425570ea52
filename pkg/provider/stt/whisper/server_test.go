package whisper

import (
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/digigov-voice/pkg/audio"
	"github.com/MrWong99/digigov-voice/pkg/provider/stt"
)

func TestNew_RequiresServer(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("New with empty url succeeded")
	}
}

func TestEncodeWAV(t *testing.T) {
	t.Parallel()

	pcm := []byte{1, 2, 3, 4}
	wav := encodeWAV(pcm, audio.Format{SampleRate: 16000, Channels: 1})
	if len(wav) != 48 || string(wav[0:4]) != "RIFF" || string(wav[8:16]) != "WAVEfmt " || string(wav[36:40]) != "data" {
		t.Fatalf("header = %q", wav[:44])
	}
	if got := binary.LittleEndian.Uint32(wav[24:]); got != 16000 {
		t.Errorf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:]); got != 32000 {
		t.Errorf("byte rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:]); got != 4 {
		t.Errorf("data size = %d", got)
	}
}

// fakeServer answers /inference like whisper-server and reports each
// request's form fields on the returned channel.
func fakeServer(t *testing.T, status int) (*httptest.Server, <-chan map[string]string) {
	t.Helper()
	forms := make(chan map[string]string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		form := map[string]string{}
		for k, v := range r.MultipartForm.Value {
			form[k] = v[0]
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		head, _ := io.ReadAll(io.LimitReader(f, 4))
		form["file"] = string(head)
		forms <- form
		if status != http.StatusOK {
			http.Error(w, "model not loaded", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":" open ration card\n"}`)
	}))
	t.Cleanup(srv.Close)
	return srv, forms
}

func TestProvider_Infer(t *testing.T) {
	t.Parallel()

	srv, forms := fakeServer(t, http.StatusOK)
	p, err := New(srv.URL+"/", WithLanguage("en-IN"), WithModel("base"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	_ = h.SendAudio(chunk(3000))
	done := make(chan []string)
	go func() { done <- collect(h.Finals()) }()
	_ = h.Close()

	got := <-done
	if len(got) != 1 || got[0] != "open ration card" {
		t.Errorf("finals = %q", got)
	}
	form := <-forms
	for k, want := range map[string]string{"language": "en", "model": "base", "response_format": "json", "file": "RIFF"} {
		if form[k] != want {
			t.Errorf("form %s = %q, want %q", k, form[k], want)
		}
	}
}

func TestProvider_InferServerError(t *testing.T) {
	t.Parallel()

	srv, _ := fakeServer(t, http.StatusServiceUnavailable)
	p, _ := New(srv.URL)
	_, err := p.infer(context.Background(), chunk(3000), mono16k, "en")
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("infer = %v, want status 503 error", err)
	}
}

func TestProvider_StartStreamCancelled(t *testing.T) {
	t.Parallel()

	p, _ := New("http://localhost:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.StartStream(ctx, stt.StreamConfig{}); err == nil {
		t.Error("StartStream with cancelled context succeeded")
	}
}
