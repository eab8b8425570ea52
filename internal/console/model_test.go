package console

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/digigov-voice/internal/voice/assistant"
	"github.com/MrWong99/digigov-voice/internal/voice/command"
)

type fakeController struct {
	mu        sync.Mutex
	toggles   int
	toggleErr error
	muted     []bool
	simulated []string
	events    chan assistant.Event
}

func (f *fakeController) Toggle(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	return f.toggleErr
}

func (f *fakeController) SetMuted(m bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted = append(f.muted, m)
}

func (f *fakeController) Simulate(_ context.Context, text string) (command.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulated = append(f.simulated, text)
	return command.Result{Success: true, Message: "done"}, nil
}

func (f *fakeController) Snapshot() assistant.Snapshot {
	return assistant.Snapshot{Phase: assistant.PhaseIdle, WakeWord: "hey digigov"}
}

func (f *fakeController) Subscribe(int) (<-chan assistant.Event, func()) {
	return f.events, func() {}
}

func newModel(t *testing.T) (*Model, *fakeController) {
	t.Helper()
	ctrl := &fakeController{events: make(chan assistant.Event, 4)}
	m := New(context.Background(), ctrl)
	t.Cleanup(m.Close)
	return m, ctrl
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestModel_RendersEvents(t *testing.T) {
	t.Parallel()

	m, _ := newModel(t)
	if v := m.View(); !strings.Contains(v, "OFF") || !strings.Contains(v, `"hey digigov"`) {
		t.Fatalf("initial view missing idle badge or wake word:\n%s", v)
	}

	m.Update(eventMsg{Kind: assistant.EventPhase, Phase: assistant.PhaseListeningCommand})
	m.Update(eventMsg{Kind: assistant.EventTranscript, Transcript: "go to dash"})
	m.Update(eventMsg{Kind: assistant.EventCommand, Entry: &assistant.HistoryEntry{
		Transcript: "go to dashboard",
		Result:     command.Result{Success: true, Message: "Opening the dashboard."},
	}})
	m.Update(eventMsg{Kind: assistant.EventMuted, Muted: true})

	v := m.View()
	for _, want := range []string{"LISTENING", "go to dash", "Opening the dashboard.", "(muted)"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestModel_EventLoop(t *testing.T) {
	t.Parallel()

	m, ctrl := newModel(t)
	ctrl.events <- assistant.Event{Kind: assistant.EventError, Error: "microphone permission denied"}

	msg := m.Init()()
	_, cmd := m.Update(msg)
	if cmd == nil {
		t.Fatal("event handling did not re-arm the event wait")
	}
	if !strings.Contains(m.View(), "microphone permission denied") {
		t.Errorf("error not shown:\n%s", m.View())
	}

	close(ctrl.events)
	if _, ok := cmd().(closedMsg); !ok {
		t.Fatal("closed stream not reported")
	}
}

func TestModel_Keys(t *testing.T) {
	t.Parallel()

	m, ctrl := newModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace})
	if cmd == nil {
		t.Fatal("space produced no toggle command")
	}
	cmd()
	m.Update(runes("m"))
	m.Update(runes("m"))

	ctrl.mu.Lock()
	toggles, muted := ctrl.toggles, append([]bool(nil), ctrl.muted...)
	ctrl.mu.Unlock()
	if toggles != 1 {
		t.Errorf("toggles = %d, want 1", toggles)
	}
	if len(muted) != 2 || !muted[0] || muted[1] {
		t.Errorf("mute calls = %v, want [true false]", muted)
	}

	if _, cmd := m.Update(runes("q")); cmd == nil {
		t.Error("q did not quit")
	}
}

func TestModel_TypedCommand(t *testing.T) {
	t.Parallel()

	m, ctrl := newModel(t)
	m.Update(runes(":"))
	for _, k := range []tea.KeyMsg{runes("go"), {Type: tea.KeySpace}, runes("hom"), {Type: tea.KeyBackspace}, runes("me")} {
		m.Update(k)
	}
	if !strings.Contains(m.View(), "> go home") {
		t.Fatalf("input line not shown:\n%s", m.View())
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter produced no command")
	}
	m.Update(cmd())

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.simulated) != 1 || ctrl.simulated[0] != "go home" {
		t.Errorf("simulated = %q", ctrl.simulated)
	}
}

func TestModel_ToggleError(t *testing.T) {
	t.Parallel()

	m, ctrl := newModel(t)
	ctrl.toggleErr = errors.New("no microphone")
	_, cmd := m.Update(runes("t"))
	m.Update(cmd())
	if !strings.Contains(m.View(), "no microphone") {
		t.Errorf("toggle error not shown:\n%s", m.View())
	}
}
