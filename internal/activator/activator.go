// Package activator toggles the assistant from a global keyboard shortcut,
// the desktop counterpart of the portal's microphone button.
package activator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// DefaultShortcut is used when no shortcut is configured.
const DefaultShortcut = "ctrl+shift+v"

// ErrUnsupported is returned by [New] when the binary has no global shortcut
// backend for this platform. Build with -tags hotkey on a desktop to get one.
var ErrUnsupported = errors.New("activator: global shortcuts unsupported on this platform")

// Toggler is the assistant as seen by the shortcut.
type Toggler interface {
	Toggle(ctx context.Context) error
}

// Binding is a registered shortcut. Keydown delivers one value per press.
type Binding interface {
	Register() error
	Unregister() error
	Keydown() <-chan struct{}
}

// Modifier is a shortcut modifier key.
type Modifier uint8

const (
	ModCtrl Modifier = iota + 1
	ModShift
)

// keyNames lists the accepted key names.
var keyNames = func() []string {
	var names []string
	for c := 'a'; c <= 'z'; c++ {
		names = append(names, string(c))
	}
	for c := '0'; c <= '9'; c++ {
		names = append(names, string(c))
	}
	for i := 1; i <= 12; i++ {
		names = append(names, fmt.Sprintf("f%d", i))
	}
	return append(names, "space")
}()

// Shortcut is a parsed key combination.
type Shortcut struct {
	Mods []Modifier
	Key  string
	text string
}

func (s Shortcut) String() string { return s.text }

// ParseShortcut parses "ctrl+shift+v". Only ctrl and shift are accepted as
// modifiers since the others differ per platform. Exactly one key is
// required.
func ParseShortcut(s string) (Shortcut, error) {
	parts := strings.Split(strings.ToLower(strings.ReplaceAll(s, " ", "")), "+")
	var (
		sc     Shortcut
		hasKey bool
	)
	for _, p := range parts {
		switch p {
		case "ctrl", "control":
			sc.Mods = append(sc.Mods, ModCtrl)
		case "shift":
			sc.Mods = append(sc.Mods, ModShift)
		case "":
			return Shortcut{}, fmt.Errorf("activator: empty key in shortcut %q", s)
		default:
			if !slices.Contains(keyNames, p) {
				return Shortcut{}, fmt.Errorf("activator: unknown key %q in shortcut %q", p, s)
			}
			if hasKey {
				return Shortcut{}, fmt.Errorf("activator: shortcut %q has more than one key", s)
			}
			sc.Key, hasKey = p, true
		}
	}
	if !hasKey {
		return Shortcut{}, fmt.Errorf("activator: shortcut %q has no key", s)
	}
	sc.text = strings.Join(parts, "+")
	return sc, nil
}

// Option is a functional option for [New].
type Option func(*Activator)

// WithBinding replaces the OS hotkey.
func WithBinding(b Binding) Option {
	return func(a *Activator) { a.binding = b }
}

// Activator toggles a [Toggler] on every key press.
type Activator struct {
	target   Toggler
	shortcut Shortcut
	binding  Binding
}

// New creates an Activator for shortcut; an empty shortcut uses
// [DefaultShortcut]. Without an injected binding the platform backend is
// used, and New returns [ErrUnsupported] if there is none.
func New(target Toggler, shortcut string, opts ...Option) (*Activator, error) {
	if shortcut == "" {
		shortcut = DefaultShortcut
	}
	sc, err := ParseShortcut(shortcut)
	if err != nil {
		return nil, err
	}
	a := &Activator{target: target, shortcut: sc}
	for _, o := range opts {
		o(a)
	}
	if a.binding == nil {
		if a.binding, err = newBinding(sc); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Shortcut returns the parsed shortcut.
func (a *Activator) Shortcut() Shortcut { return a.shortcut }

// Run registers the shortcut and toggles the target on every key press until
// ctx is done.
func (a *Activator) Run(ctx context.Context) error {
	b := a.binding
	if err := b.Register(); err != nil {
		return fmt.Errorf("activator: register %s: %w", a.shortcut, err)
	}
	defer func() {
		if err := b.Unregister(); err != nil {
			slog.Debug("activator: unregister failed", "err", err)
		}
	}()
	slog.Info("activator: shortcut registered", "shortcut", a.shortcut.String())

	keydown := b.Keydown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-keydown:
			if !ok {
				return nil
			}
			slog.Debug("activator: shortcut pressed")
			if err := a.target.Toggle(ctx); err != nil {
				slog.Warn("activator: toggle failed", "err", err)
			}
		}
	}
}
