package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/digigov-voice/internal/resilience"
	"github.com/MrWong99/digigov-voice/pkg/audio"
	audiomock "github.com/MrWong99/digigov-voice/pkg/audio/mock"
)

func fixed(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func get(t *testing.T, h *Handler, path string) (int, Report) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, rep
}

func TestHealthz_IgnoresCheckers(t *testing.T) {
	t.Parallel()

	code, rep := get(t, New(Checker{Name: "stt", Check: fixed(errors.New("down"))}), "/healthz")
	if code != http.StatusOK || rep.Status != StatusOK || rep.Checks != nil {
		t.Errorf("got %d %+v, want 200 ok without checks", code, rep)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	degraded := fmt.Errorf("%w: circuit open for deepgram", ErrDegraded)
	tests := []struct {
		name     string
		checkers []Checker
		wantCode int
		want     Status
		wantEach map[string]Status
	}{
		{
			name:     "no checkers",
			wantCode: http.StatusOK,
			want:     StatusOK,
		},
		{
			name:     "all pass",
			checkers: []Checker{{"microphone", fixed(nil)}, {"stt", fixed(nil)}},
			wantCode: http.StatusOK,
			want:     StatusOK,
			wantEach: map[string]Status{"microphone": StatusOK, "stt": StatusOK},
		},
		{
			name:     "degraded stays ready",
			checkers: []Checker{{"microphone", fixed(nil)}, {"stt", fixed(degraded)}},
			wantCode: http.StatusOK,
			want:     StatusDegraded,
			wantEach: map[string]Status{"microphone": StatusOK, "stt": StatusDegraded},
		},
		{
			name: "failure wins over degraded",
			checkers: []Checker{
				{"microphone", fixed(audio.ErrPermissionDenied)},
				{"stt", fixed(degraded)},
				{"tts", fixed(nil)},
			},
			wantCode: http.StatusServiceUnavailable,
			want:     StatusFail,
			wantEach: map[string]Status{"microphone": StatusFail, "stt": StatusDegraded, "tts": StatusOK},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, rep := get(t, New(tt.checkers...), "/readyz")
			if code != tt.wantCode || rep.Status != tt.want {
				t.Errorf("got %d %q, want %d %q", code, rep.Status, tt.wantCode, tt.want)
			}
			for name, want := range tt.wantEach {
				if got := rep.Checks[name].Status; got != want {
					t.Errorf("%s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_FailureDetail(t *testing.T) {
	t.Parallel()

	_, rep := get(t, New(Checker{"microphone", fixed(audio.ErrPermissionDenied)}), "/readyz")
	if got := rep.Checks["microphone"].Detail; got != audio.ErrPermissionDenied.Error() {
		t.Errorf("detail = %q, want %q", got, audio.ErrPermissionDenied.Error())
	}
}

func TestCheck_RunsConcurrently(t *testing.T) {
	t.Parallel()

	// Each check waits for the other to start.
	a, b := make(chan struct{}), make(chan struct{})
	rendezvous := func(mine, other chan struct{}) func(context.Context) error {
		return func(ctx context.Context) error {
			close(mine)
			select {
			case <-other:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return errors.New("peer never started")
			}
		}
	}
	rep := New(Checker{"a", rendezvous(a, b)}, Checker{"b", rendezvous(b, a)}).Check(context.Background())
	if rep.Status != StatusOK {
		t.Errorf("report = %+v", rep)
	}
}

func TestCheck_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := New(Checker{"slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}).Check(ctx)
	if rep.Status != StatusFail {
		t.Errorf("status = %q, want fail", rep.Status)
	}
}

func TestMicrophone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"available", nil, false},
		{"held by assistant", audio.ErrDeviceBusy, false},
		{"denied", audio.ErrPermissionDenied, true},
		{"missing", audio.ErrNoDevice, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := &audiomock.Source{ProbeErr: tt.err}
			c := Microphone(src)
			if err := c.Check(context.Background()); (err != nil) != tt.wantErr {
				t.Errorf("Check = %v, wantErr %v", err, tt.wantErr)
			}
			if c.Name != "microphone" || src.ProbeCount() != 1 {
				t.Errorf("name %q, probes %d", c.Name, src.ProbeCount())
			}
		})
	}
}

type fakeReporter []resilience.EntryState

func (f fakeReporter) States() []resilience.EntryState { return f }

func TestBreakers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		states fakeReporter
		want   Status
		detail string
	}{
		{name: "empty", want: StatusOK},
		{
			name:   "primary closed",
			states: fakeReporter{{Name: "deepgram", State: resilience.StateClosed}},
			want:   StatusOK,
		},
		{
			name: "running on fallback",
			states: fakeReporter{
				{Name: "deepgram", State: resilience.StateOpen},
				{Name: "mock", State: resilience.StateHalfOpen},
			},
			want:   StatusDegraded,
			detail: "deepgram",
		},
		{
			name: "all open",
			states: fakeReporter{
				{Name: "deepgram", State: resilience.StateOpen},
				{Name: "mock", State: resilience.StateOpen},
			},
			want:   StatusFail,
			detail: "deepgram, mock",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := evaluate(Breakers("stt", tt.states).Check(context.Background()))
			if res.Status != tt.want || !strings.Contains(res.Detail, tt.detail) {
				t.Errorf("got %+v, want %q mentioning %q", res, tt.want, tt.detail)
			}
		})
	}
}
