// Package console is a terminal indicator for the assistant: the phase
// badge, the live transcript and recent command results, with keys to
// toggle, mute and type commands.
package console

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/digigov-voice/internal/voice/assistant"
	"github.com/MrWong99/digigov-voice/internal/voice/command"
)

const historyRows = 5

// Controller is the assistant as seen by the console. *assistant.Assistant
// implements it.
type Controller interface {
	Toggle(ctx context.Context) error
	SetMuted(muted bool)
	Simulate(ctx context.Context, text string) (command.Result, error)
	Snapshot() assistant.Snapshot
	Subscribe(buffer int) (<-chan assistant.Event, func())
}

type (
	eventMsg  assistant.Event
	closedMsg struct{}
	errMsg    struct{ err error }
	resultMsg struct {
		text string
		res  command.Result
	}
)

// Model is the bubbletea model.
type Model struct {
	ctx    context.Context
	ctrl   Controller
	events <-chan assistant.Event
	cancel func()

	snap   assistant.Snapshot
	typing bool
	input  string
	err    string
	width  int
}

// New subscribes to ctrl. Call [Model.Close] when the program exits.
func New(ctx context.Context, ctrl Controller) *Model {
	events, cancel := ctrl.Subscribe(128)
	return &Model{
		ctx:    ctx,
		ctrl:   ctrl,
		events: events,
		cancel: cancel,
		snap:   ctrl.Snapshot(),
	}
}

// Close unsubscribes from the assistant.
func (m *Model) Close() { m.cancel() }

// Run starts an interactive program on the terminal until the user quits or
// ctx is done.
func Run(ctx context.Context, ctrl Controller) error {
	m := New(ctx, ctrl)
	defer m.Close()
	_, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}

func (m *Model) wait() tea.Msg {
	ev, ok := <-m.events
	if !ok {
		return closedMsg{}
	}
	return eventMsg(ev)
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd { return m.wait }

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		return m.handleKey(msg)
	case eventMsg:
		m.apply(assistant.Event(msg))
		return m, m.wait
	case closedMsg:
		return m, tea.Quit
	case resultMsg:
		m.err = ""
		m.snap = m.ctrl.Snapshot()
	case errMsg:
		m.err = msg.err.Error()
	}
	return m, nil
}

func (m *Model) apply(ev assistant.Event) {
	switch ev.Kind {
	case assistant.EventPhase:
		m.snap.Phase = ev.Phase
		m.snap.Enabled = ev.Phase != assistant.PhaseIdle
	case assistant.EventTranscript:
		m.snap.Transcript = ev.Transcript
	case assistant.EventCommand:
		if ev.Entry != nil {
			m.snap.History = append(m.snap.History, *ev.Entry)
		}
	case assistant.EventError:
		m.err = ev.Error
	case assistant.EventMuted:
		m.snap.Muted = ev.Muted
	case assistant.EventEnabled:
		m.snap.Enabled = ev.Enabled
		if ev.Enabled {
			m.err = ""
		}
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	if m.typing {
		switch msg.Type {
		case tea.KeyEsc:
			m.typing, m.input = false, ""
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input)
			m.typing, m.input = false, ""
			if text != "" {
				return m, m.simulate(text)
			}
		case tea.KeyBackspace:
			if r := []rune(m.input); len(r) > 0 {
				m.input = string(r[:len(r)-1])
			}
		case tea.KeySpace:
			m.input += " "
		case tea.KeyRunes:
			m.input += string(msg.Runes)
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeySpace:
		return m, m.toggle
	case tea.KeyRunes:
		switch string(msg.Runes) {
		case "q":
			return m, tea.Quit
		case "t":
			return m, m.toggle
		case "m":
			muted := !m.snap.Muted
			m.snap.Muted = muted
			m.ctrl.SetMuted(muted)
		case ":", "/":
			m.typing = true
		}
	}
	return m, nil
}

func (m *Model) toggle() tea.Msg {
	if err := m.ctrl.Toggle(m.ctx); err != nil {
		return errMsg{err}
	}
	return nil
}

func (m *Model) simulate(text string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.ctrl.Simulate(m.ctx, text)
		if err != nil {
			return errMsg{err}
		}
		return resultMsg{text: text, res: res}
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	badge := badgeStyle.Background(phaseColor(m.snap.Phase)).Render(phaseLabels[m.snap.Phase])
	header := lipgloss.JoinHorizontal(lipgloss.Center, titleStyle.Render("DigiGov Voice "), badge)
	if m.snap.Muted {
		header += mutedTextStyle.Render("  (muted)")
	}
	b.WriteString(header + "\n")

	if m.snap.WakeWord != "" {
		b.WriteString(mutedTextStyle.Render(fmt.Sprintf("Say %q, then a command.", m.snap.WakeWord)) + "\n")
	}

	transcript := m.snap.Transcript
	if transcript == "" {
		transcript = "…"
	}
	b.WriteString(transcriptStyle.Render("“"+transcript+"”") + "\n")

	if m.err != "" {
		b.WriteString(errorStyle.Render("error: "+m.err) + "\n")
	}

	b.WriteString(panelStyle.Render(m.renderHistory()) + "\n")

	if m.typing {
		b.WriteString("> " + m.input + "█\n")
	} else {
		b.WriteString(mutedTextStyle.Render("space toggle · m mute · : type a command · q quit") + "\n")
	}
	return b.String()
}

func (m *Model) renderHistory() string {
	h := m.snap.History
	if len(h) == 0 {
		return mutedTextStyle.Render("No commands yet.")
	}
	if len(h) > historyRows {
		h = h[len(h)-historyRows:]
	}
	lines := make([]string, 0, len(h))
	for _, e := range h {
		style := successStyle
		if !e.Result.Success {
			style = errorStyle
		}
		lines = append(lines, fmt.Sprintf("%s %s", mutedTextStyle.Render(e.Transcript+" →"), style.Render(e.Result.Message)))
	}
	return strings.Join(lines, "\n")
}
