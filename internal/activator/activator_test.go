package activator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeBinding struct {
	mu           sync.Mutex
	registered   bool
	unregistered bool
	registerErr  error
	keydown      chan struct{}
}

func (b *fakeBinding) Register() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered = true
	return b.registerErr
}

func (b *fakeBinding) Unregister() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unregistered = true
	return nil
}

func (b *fakeBinding) Keydown() <-chan struct{} { return b.keydown }

type countingToggler struct {
	mu sync.Mutex
	n  int
}

func (c *countingToggler) Toggle(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return nil
}

func (c *countingToggler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestParseShortcut(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		mods    int
		key     string
		text    string
		wantErr bool
	}{
		{in: "ctrl+shift+v", mods: 2, key: "v", text: "ctrl+shift+v"},
		{in: "Ctrl + Space", mods: 1, key: "space", text: "ctrl+space"},
		{in: "F9", key: "f9", text: "f9"},
		{in: "control+7", mods: 1, key: "7", text: "control+7"},
		{in: "ctrl+shift", wantErr: true},
		{in: "ctrl+a+b", wantErr: true},
		{in: "alt+v", wantErr: true},
		{in: "ctrl++v", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			sc, err := ParseShortcut(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseShortcut(%q) = %+v, want error", tc.in, sc)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseShortcut(%q): %v", tc.in, err)
			}
			if len(sc.Mods) != tc.mods || sc.Key != tc.key || sc.String() != tc.text {
				t.Errorf("ParseShortcut(%q) = %+v", tc.in, sc)
			}
		})
	}
}

func TestNew_DefaultShortcut(t *testing.T) {
	t.Parallel()

	a, err := New(&countingToggler{}, "", WithBinding(&fakeBinding{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Shortcut().String() != DefaultShortcut {
		t.Errorf("shortcut = %s, want %s", a.Shortcut(), DefaultShortcut)
	}
}

func TestRun_TogglesOnKeydown(t *testing.T) {
	t.Parallel()

	b := &fakeBinding{keydown: make(chan struct{})}
	target := &countingToggler{}
	a, err := New(target, "ctrl+shift+v", WithBinding(b))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	b.keydown <- struct{}{}
	b.keydown <- struct{}{}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := target.count(); got != 2 {
		t.Errorf("toggles = %d, want 2", got)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.registered || !b.unregistered {
		t.Errorf("registered=%v unregistered=%v", b.registered, b.unregistered)
	}
}

func TestRun_RegisterFailure(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("grab failed")
	a, _ := New(&countingToggler{}, "f9", WithBinding(&fakeBinding{registerErr: sentinel}))
	if err := a.Run(context.Background()); !errors.Is(err, sentinel) {
		t.Fatalf("Run = %v, want wrapped register error", err)
	}
}
