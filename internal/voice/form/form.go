// Package form locates and fills form fields on the page the user is looking
// at.
//
// The page is reached through [Document], a narrow view of its interactive
// elements. A [Strategy] maps logical field names ("name", "phone", "submit")
// to ordered [Selector] heuristics; [Filler] resolves a field with the first
// selector that matches any element, sets its value and dispatches the
// synthetic input and change events reactive UIs listen for. Strategies are
// data, so deployments can tune them without code changes.
package form

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

// ErrNoSuchElement is returned by a [Document] for an unknown element key.
var ErrNoSuchElement = errors.New("form: no such element")

// ErrNotEditable is returned when setting the value of a button.
var ErrNotEditable = errors.New("form: element is not editable")

// FieldNotFoundError reports that no element matched any selector for Field.
type FieldNotFoundError struct {
	Field string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("form: no %s field on the page", e.Field)
}

// Field describes one interactive element.
type Field struct {
	// Key identifies the element within its document.
	Key         string `json:"key"`
	Tag         string `json:"tag"`
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
	Type        string `json:"type,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Label       string `json:"label,omitempty"`
	Text        string `json:"text,omitempty"`
	Value       string `json:"value,omitempty"`
}

// Editable reports whether the element accepts a value.
func (f Field) Editable() bool {
	switch strings.ToLower(f.Tag) {
	case "input":
		t := strings.ToLower(f.Type)
		return t != "submit" && t != "button" && t != "reset"
	case "textarea", "select":
		return true
	}
	return false
}

// Document is the page as seen by voice commands.
type Document interface {
	// Fields returns the elements in document order.
	Fields() []Field

	// SetValue sets the element's value and dispatches input and change
	// events.
	SetValue(key, value string) error

	// Click dispatches a click on the element.
	Click(key string) error
}

// Selector is one field discovery heuristic. Every non-empty criterion must
// hold. Comparisons are case-insensitive; the Contains criteria are substring
// matches.
type Selector struct {
	Tag                 string `yaml:"tag,omitempty" toml:"tag,omitempty"`
	Name                string `yaml:"name,omitempty" toml:"name,omitempty"`
	IDContains          string `yaml:"id_contains,omitempty" toml:"id_contains,omitempty"`
	PlaceholderContains string `yaml:"placeholder_contains,omitempty" toml:"placeholder_contains,omitempty"`
	LabelContains       string `yaml:"label_contains,omitempty" toml:"label_contains,omitempty"`
	Type                string `yaml:"type,omitempty" toml:"type,omitempty"`
	TextContains        string `yaml:"text_contains,omitempty" toml:"text_contains,omitempty"`
}

// Empty reports whether s has no criteria. An empty selector matches nothing.
func (s Selector) Empty() bool {
	return s == Selector{}
}

// Matches reports whether f satisfies every criterion of s.
func (s Selector) Matches(f Field) bool {
	if s.Empty() {
		return false
	}
	return equalFold(s.Tag, f.Tag) &&
		equalFold(s.Name, f.Name) &&
		equalFold(s.Type, f.Type) &&
		containsFold(s.IDContains, f.ID) &&
		containsFold(s.PlaceholderContains, f.Placeholder) &&
		containsFold(s.LabelContains, f.Label) &&
		containsFold(s.TextContains, f.Text)
}

func equalFold(want, got string) bool {
	return want == "" || strings.EqualFold(want, got)
}

func containsFold(want, got string) bool {
	return want == "" || strings.Contains(strings.ToLower(got), strings.ToLower(want))
}

// Strategy maps logical field names to selectors in priority order.
type Strategy map[string][]Selector

// DefaultStrategy returns the built-in heuristics for the portal's forms.
func DefaultStrategy() Strategy {
	return Strategy{
		"name": {
			{Name: "name"},
			{Name: "fullName"},
			{IDContains: "name"},
			{PlaceholderContains: "name"},
			{LabelContains: "name"},
		},
		"email": {
			{Name: "email"},
			{Type: "email"},
			{IDContains: "email"},
			{PlaceholderContains: "email"},
		},
		"phone": {
			{Name: "phone"},
			{Type: "tel"},
			{IDContains: "phone"},
			{IDContains: "mobile"},
			{PlaceholderContains: "phone"},
			{PlaceholderContains: "mobile"},
		},
		"amount": {
			{Name: "amount"},
			{IDContains: "amount"},
			{PlaceholderContains: "amount"},
			{Tag: "input", Type: "number"},
		},
		"address": {
			{Name: "address"},
			{IDContains: "address"},
			{PlaceholderContains: "address"},
			{Tag: "textarea"},
		},
		"search": {
			{Type: "search"},
			{Name: "search"},
			{IDContains: "search"},
			{PlaceholderContains: "search"},
		},
		"submit": {
			{Type: "submit"},
			{Tag: "button", TextContains: "submit"},
			{Tag: "button", TextContains: "pay"},
		},
		"cancel": {
			{Tag: "button", TextContains: "cancel"},
			{IDContains: "cancel"},
			{Tag: "button", TextContains: "close"},
		},
	}
}

// Merge returns a copy of s with the entries of override replacing whole
// selector lists.
func (s Strategy) Merge(override Strategy) Strategy {
	out := maps.Clone(s)
	if out == nil {
		out = Strategy{}
	}
	maps.Copy(out, override)
	return out
}

// Filler resolves logical fields against a [Document].
type Filler struct {
	strategy Strategy
}

// NewFiller creates a Filler. A nil strategy uses [DefaultStrategy].
func NewFiller(s Strategy) *Filler {
	if s == nil {
		s = DefaultStrategy()
	}
	return &Filler{strategy: s}
}

// Strategy returns the filler's selector table.
func (f *Filler) Strategy() Strategy { return f.strategy }

// Find returns the element for field. Selectors are tried in priority order;
// within one selector the first element in document order wins.
func (f *Filler) Find(doc Document, field string) (Field, error) {
	selectors := f.strategy[field]
	if len(selectors) == 0 {
		selectors = []Selector{{Name: field}, {IDContains: field}, {PlaceholderContains: field}}
	}
	elements := doc.Fields()
	for _, sel := range selectors {
		for _, el := range elements {
			if sel.Matches(el) {
				return el, nil
			}
		}
	}
	return Field{}, &FieldNotFoundError{Field: field}
}

// Fill sets field to value.
func (f *Filler) Fill(doc Document, field, value string) error {
	el, err := f.Find(doc, field)
	if err != nil {
		return err
	}
	if err := doc.SetValue(el.Key, value); err != nil {
		return fmt.Errorf("form: fill %s: %w", field, err)
	}
	return nil
}

// Press clicks the control registered as field, e.g. "submit".
func (f *Filler) Press(doc Document, field string) error {
	el, err := f.Find(doc, field)
	if err != nil {
		return err
	}
	if err := doc.Click(el.Key); err != nil {
		return fmt.Errorf("form: press %s: %w", field, err)
	}
	return nil
}
