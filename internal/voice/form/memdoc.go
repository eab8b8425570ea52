package form

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// EventKind is the type of a synthetic DOM event.
type EventKind string

const (
	EventInput  EventKind = "input"
	EventChange EventKind = "change"
	EventClick  EventKind = "click"
)

// maxEvents bounds the event log kept by a [MemDocument].
const maxEvents = 256

// Event is a synthetic event dispatched on an element.
type Event struct {
	Kind  EventKind `json:"kind"`
	Key   string    `json:"key"`
	Value string    `json:"value,omitempty"`
}

// MemDocument is an in-memory [Document]. The websocket hub keeps one per
// client, mirrored from the fields the browser reports, and forwards the
// dispatched events back to the page. Safe for concurrent use.
type MemDocument struct {
	mu        sync.Mutex
	fields    []Field
	events    []Event
	observers map[int]func(Event)
	nextObs   int
}

var _ Document = (*MemDocument)(nil)

// NewMemDocument returns a document holding fields in order.
func NewMemDocument(fields ...Field) *MemDocument {
	d := &MemDocument{observers: make(map[int]func(Event))}
	d.Replace(fields)
	return d
}

// Replace swaps the document contents, e.g. after the user navigated, and
// clears the event log. Elements without a key are keyed by id, then name,
// then position.
func (d *MemDocument) Replace(fields []Field) {
	cp := make([]Field, len(fields))
	for i, f := range fields {
		if f.Key == "" {
			switch {
			case f.ID != "":
				f.Key = f.ID
			case f.Name != "":
				f.Key = f.Name
			default:
				f.Key = fmt.Sprintf("el-%d", i)
			}
		}
		if f.Tag == "" {
			f.Tag = "input"
		}
		f.Tag = strings.ToLower(f.Tag)
		cp[i] = f
	}
	d.mu.Lock()
	d.fields = cp
	d.events = nil
	d.mu.Unlock()
}

// Fields implements [Document].
func (d *MemDocument) Fields() []Field {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.fields)
}

// SetValue implements [Document].
func (d *MemDocument) SetValue(key, value string) error {
	d.mu.Lock()
	i := d.indexLocked(key)
	if i < 0 {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchElement, key)
	}
	if !d.fields[i].Editable() {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotEditable, key)
	}
	d.fields[i].Value = value
	evs := []Event{
		{Kind: EventInput, Key: key, Value: value},
		{Kind: EventChange, Key: key, Value: value},
	}
	obs := d.dispatchLocked(evs...)
	d.mu.Unlock()
	notify(obs, evs)
	return nil
}

// Click implements [Document].
func (d *MemDocument) Click(key string) error {
	d.mu.Lock()
	if d.indexLocked(key) < 0 {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchElement, key)
	}
	ev := Event{Kind: EventClick, Key: key}
	obs := d.dispatchLocked(ev)
	d.mu.Unlock()
	notify(obs, []Event{ev})
	return nil
}

// Value returns the current value of the element, or "" if absent.
func (d *MemDocument) Value(key string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := d.indexLocked(key); i >= 0 {
		return d.fields[i].Value
	}
	return ""
}

// Events returns the most recent events dispatched since the last Replace,
// oldest first.
func (d *MemDocument) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.events)
}

// Observe registers fn for every future event. The returned function
// unregisters it.
func (d *MemDocument) Observe(fn func(Event)) (cancel func()) {
	d.mu.Lock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
	}
}

func (d *MemDocument) indexLocked(key string) int {
	return slices.IndexFunc(d.fields, func(f Field) bool { return f.Key == key })
}

func (d *MemDocument) dispatchLocked(evs ...Event) []func(Event) {
	d.events = append(d.events, evs...)
	if n := len(d.events) - maxEvents; n > 0 {
		d.events = slices.Delete(d.events, 0, n)
	}
	obs := make([]func(Event), 0, len(d.observers))
	for _, fn := range d.observers {
		obs = append(obs, fn)
	}
	return obs
}

func notify(obs []func(Event), evs []Event) {
	for _, ev := range evs {
		for _, fn := range obs {
			fn(ev)
		}
	}
}
