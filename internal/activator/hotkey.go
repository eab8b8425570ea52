//go:build hotkey

package activator

import (
	"runtime"
	"sync"

	"golang.design/x/hotkey"
)

var hotkeyKeys = map[string]hotkey.Key{
	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
	"space": hotkey.KeySpace,
	"f1":    hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}

var hotkeyMods = map[Modifier]hotkey.Modifier{
	ModCtrl:  hotkey.ModCtrl,
	ModShift: hotkey.ModShift,
}

// newBinding maps sc onto an OS-level hotkey. macOS is excluded because the
// library needs the process main thread there.
func newBinding(sc Shortcut) (Binding, error) {
	if runtime.GOOS == "darwin" {
		return nil, ErrUnsupported
	}
	mods := make([]hotkey.Modifier, 0, len(sc.Mods))
	for _, m := range sc.Mods {
		mods = append(mods, hotkeyMods[m])
	}
	return &osBinding{hk: hotkey.New(mods, hotkeyKeys[sc.Key])}, nil
}

// osBinding adapts *hotkey.Hotkey to [Binding].
type osBinding struct {
	hk      *hotkey.Hotkey
	keydown chan struct{}
	stop    chan struct{}
	once    sync.Once
}

func (b *osBinding) Register() error {
	if err := b.hk.Register(); err != nil {
		return err
	}
	b.keydown = make(chan struct{})
	b.stop = make(chan struct{})
	go func() {
		events := b.hk.Keydown()
		for {
			select {
			case <-b.stop:
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				select {
				case b.keydown <- struct{}{}:
				case <-b.stop:
					return
				}
			}
		}
	}()
	return nil
}

func (b *osBinding) Unregister() error {
	b.once.Do(func() {
		if b.stop != nil {
			close(b.stop)
		}
	})
	return b.hk.Unregister()
}

func (b *osBinding) Keydown() <-chan struct{} { return b.keydown }
