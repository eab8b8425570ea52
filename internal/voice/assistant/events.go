package assistant

import (
	"log/slog"
	"time"
)

// EventKind identifies an [Event].
type EventKind string

const (
	EventPhase      EventKind = "phase"
	EventTranscript EventKind = "transcript"
	EventCommand    EventKind = "command"
	EventError      EventKind = "error"
	EventMuted      EventKind = "muted"
	EventEnabled    EventKind = "enabled"
)

// Event is a state change published to subscribers.
type Event struct {
	Kind       EventKind     `json:"kind"`
	Phase      Phase         `json:"phase,omitempty"`
	Transcript string        `json:"transcript,omitempty"`
	Final      bool          `json:"final,omitempty"`
	Entry      *HistoryEntry `json:"entry,omitempty"`
	Error      string        `json:"error,omitempty"`
	Muted      bool          `json:"muted,omitempty"`
	Enabled    bool          `json:"enabled,omitempty"`
	At         time.Time     `json:"at"`
}

// Subscribe returns a stream of events. A subscriber that falls more than
// buffer events behind loses events rather than stalling the assistant. The
// channel is closed by cancel or Close, and already closed when the
// assistant is.
func (a *Assistant) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	a.subMu.Lock()
	if a.subsEnd {
		a.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	a.subMu.Unlock()

	return ch, func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		if c, ok := a.subs[id]; ok {
			close(c)
			delete(a.subs, id)
		}
	}
}

func (a *Assistant) publish(ev Event) {
	ev.At = time.Now()
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for id, ch := range a.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("assistant: subscriber lagging, event dropped", "subscriber", id, "kind", ev.Kind)
		}
	}
}
