package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/digigov-voice/internal/config"
)

const defaultConfigPath = "config.yaml"

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	logFile    string

	level   *slog.LevelVar
	logSink io.Closer
}

func newRootCmd() *cobra.Command {
	g := &globals{level: new(slog.LevelVar)}

	root := &cobra.Command{
		Use:   "digigov-voice",
		Short: "Voice control for the DigiGov citizen portal",
		Long: `digigov-voice listens for a wake word, recognises a spoken command and
drives the DigiGov portal through a websocket: navigation, form filling and
page actions, with spoken confirmation.

Examples:
  digigov-voice serve --config config.yaml
  digigov-voice simulate "go to ration card"
  digigov-voice commands
  digigov-voice console`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.setupLogging(cmd.Name() == "console")
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if g.logSink != nil {
				g.logSink.Close()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", defaultConfigPath, "path to the YAML or TOML configuration file")
	pf.StringVar(&g.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	pf.StringVar(&g.logFile, "log-file", "", "write logs to this file instead of stderr")

	root.AddCommand(
		newServeCmd(g),
		newSimulateCmd(g),
		newCommandsCmd(g),
		newVoicesCmd(g),
		newConsoleCmd(g),
	)
	return root
}

// setupLogging installs the default logger. The console draws over the
// terminal, so without a log file its logs are discarded.
func (g *globals) setupLogging(quiet bool) error {
	if g.logLevel != "" {
		lvl := config.LogLevel(strings.ToLower(g.logLevel))
		if !lvl.IsValid() {
			return fmt.Errorf("invalid --log-level %q", g.logLevel)
		}
		g.level.Set(lvl.SlogLevel())
	}

	var w io.Writer = os.Stderr
	switch {
	case g.logFile != "":
		f, err := os.OpenFile(g.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w, g.logSink = f, f
	case quiet:
		w = io.Discard
	}
	slog.SetDefault(newLogger(w, g.level))
	return nil
}

// loadConfig reads the configuration file. When optional is set and the
// default file does not exist, the built-in defaults are used.
func (g *globals) loadConfig(optional bool) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if errors.Is(err, os.ErrNotExist) {
		if optional && g.configPath == defaultConfigPath {
			slog.Debug("no config file, using defaults", "path", g.configPath)
			cfg, err = config.LoadFromReader(strings.NewReader(""))
		} else {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", g.configPath)
		}
	}
	if err != nil {
		return nil, err
	}
	if g.logLevel == "" {
		g.level.Set(cfg.Server.LogLevel.SlogLevel())
	}
	return cfg, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
