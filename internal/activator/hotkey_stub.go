//go:build !hotkey

package activator

// newBinding has no backend in builds without the hotkey tag, so headless
// hosts never load the X11 or Cocoa bindings.
func newBinding(Shortcut) (Binding, error) {
	return nil, ErrUnsupported
}
