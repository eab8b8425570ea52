package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/digigov-voice/internal/config"
)

const (
	portalYAML = `
server:
  log_level: info
assistant:
  wake_word: hey digigov
routes:
  - path: /
    title: home page
`
	portalYAMLEdited = `
server:
  log_level: debug
assistant:
  wake_word: hello portal
routes:
  - path: /
    title: home page
  - path: /pension
    title: pension page
`
	brokenYAML = `
server:
  log_level: loud
`
)

type reload struct{ old, new *config.Config }

// watchFile writes content to name in a temp dir and watches it at a short
// interval. Accepted edits arrive on the returned channel.
func watchFile(t *testing.T, name, content string, opts ...config.WatcherOption) (string, *config.Watcher, <-chan reload) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	writeFile(t, path, content, time.Now().Add(-time.Minute))

	reloads := make(chan reload, 4)
	opts = append([]config.WatcherOption{config.WithInterval(20 * time.Millisecond)}, opts...)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		select {
		case reloads <- reload{old, new}:
		default:
		}
	}, opts...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return path, w, reloads
}

// writeFile writes content and stamps it with mtime, so consecutive writes
// are distinguishable on coarse-grained filesystems.
func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func waitReload(t *testing.T, reloads <-chan reload) reload {
	t.Helper()
	select {
	case r := <-reloads:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("edit was not picked up")
	}
	return reload{}
}

func expectNoReload(t *testing.T, reloads <-chan reload) {
	t.Helper()
	select {
	case r := <-reloads:
		t.Fatalf("unexpected reload to %+v", r.new.Server)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	_, w, _ := watchFile(t, "config.yaml", portalYAML)
	cfg := w.Current()
	if cfg.Server.LogLevel != config.LogInfo || cfg.Assistant.WakeWord != "hey digigov" {
		t.Errorf("Current() = %+v / %q", cfg.Server, cfg.Assistant.WakeWord)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()

	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("NewWatcher on a missing file succeeded")
	}
	path := filepath.Join(t.TempDir(), "broken.yaml")
	writeFile(t, path, brokenYAML, time.Now())
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("NewWatcher on an invalid file succeeded")
	}
}

func TestWatcher_AcceptsEdit(t *testing.T) {
	t.Parallel()

	path, w, reloads := watchFile(t, "config.yaml", portalYAML)
	writeFile(t, path, portalYAMLEdited, time.Now())

	r := waitReload(t, reloads)
	if r.old.Server.LogLevel != config.LogInfo || r.new.Server.LogLevel != config.LogDebug {
		t.Errorf("log level %q -> %q, want info -> debug", r.old.Server.LogLevel, r.new.Server.LogLevel)
	}
	d := config.Diff(r.old, r.new)
	if !d.WakeWordChanged || !d.LogLevelChanged || !d.RoutesChanged || len(d.RestartRequired) != 0 {
		t.Errorf("Diff = %+v", d)
	}
	if w.Current() != r.new {
		t.Error("Current() does not return the accepted config")
	}
}

func TestWatcher_RejectsInvalidEdit(t *testing.T) {
	t.Parallel()

	errs := make(chan error, 16)
	path, w, reloads := watchFile(t, "config.yaml", portalYAML,
		config.WithReloadErrorHandler(func(err error) {
			select {
			case errs <- err:
			default:
			}
		}),
	)
	writeFile(t, path, brokenYAML, time.Now())

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("error handler called with nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error handler not called")
	}
	expectNoReload(t, reloads)
	if got := w.Current().Assistant.WakeWord; got != "hey digigov" {
		t.Errorf("wake word = %q, want the previous config kept", got)
	}

	// A fixed file is accepted again.
	writeFile(t, path, portalYAMLEdited, time.Now().Add(time.Second))
	if r := waitReload(t, reloads); r.old.Assistant.WakeWord != "hey digigov" {
		t.Errorf("old wake word = %q, want hey digigov", r.old.Assistant.WakeWord)
	}
}

func TestWatcher_IgnoresTouch(t *testing.T) {
	t.Parallel()

	path, _, reloads := watchFile(t, "config.yaml", portalYAML)
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	expectNoReload(t, reloads)
}

func TestWatcher_TOML(t *testing.T) {
	t.Parallel()

	path, w, reloads := watchFile(t, "config.toml", "[server]\nlog_level = \"warn\"\n")
	if got := w.Current().Server.LogLevel; got != config.LogWarn {
		t.Fatalf("log_level = %q, want warn", got)
	}
	writeFile(t, path, "[server]\nlog_level = \"error\"\n", time.Now())
	if r := waitReload(t, reloads); r.new.Server.LogLevel != config.LogError {
		t.Errorf("reloaded log_level = %q, want error", r.new.Server.LogLevel)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	_, w, _ := watchFile(t, "config.yaml", portalYAML)
	w.Stop()
	w.Stop()
}
