package console

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/digigov-voice/internal/voice/assistant"
)

var (
	colorIdle      = lipgloss.Color("#6B7280")
	colorWake      = lipgloss.Color("#06B6D4")
	colorCommand   = lipgloss.Color("#10B981")
	colorBusy      = lipgloss.Color("#F59E0B")
	colorSpeaking  = lipgloss.Color("#8B5CF6")
	colorError     = lipgloss.Color("#EF4444")
	colorText      = lipgloss.Color("#F8FAFC")
	colorTextMuted = lipgloss.Color("#94A3B8")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorText)

	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("#0F172A"))

	transcriptStyle = lipgloss.NewStyle().Italic(true).Foreground(colorText)
	mutedTextStyle  = lipgloss.NewStyle().Foreground(colorTextMuted)
	errorStyle      = lipgloss.NewStyle().Foreground(colorError)
	successStyle    = lipgloss.NewStyle().Foreground(colorCommand)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorTextMuted).
			Padding(0, 1)
)

// phaseLabels are the indicator captions per phase.
var phaseLabels = map[assistant.Phase]string{
	assistant.PhaseIdle:             "OFF",
	assistant.PhaseListeningWake:    "WAITING FOR WAKE WORD",
	assistant.PhaseListeningCommand: "LISTENING",
	assistant.PhaseProcessing:       "PROCESSING",
	assistant.PhaseSpeaking:         "SPEAKING",
}

func phaseColor(p assistant.Phase) lipgloss.Color {
	switch p {
	case assistant.PhaseListeningWake:
		return colorWake
	case assistant.PhaseListeningCommand:
		return colorCommand
	case assistant.PhaseProcessing:
		return colorBusy
	case assistant.PhaseSpeaking:
		return colorSpeaking
	}
	return colorIdle
}
