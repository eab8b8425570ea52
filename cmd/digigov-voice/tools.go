package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/digigov-voice/internal/app"
	"github.com/MrWong99/digigov-voice/internal/config"
	"github.com/MrWong99/digigov-voice/internal/console"
	"github.com/MrWong99/digigov-voice/internal/voice/speech"
	"github.com/MrWong99/digigov-voice/pkg/audio/mock"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// offlineApp builds an application with no recognizer and no audio. It
// serves commands typed as text.
func offlineApp(g *globals) (*app.App, error) {
	cfg, err := g.loadConfig(true)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, &app.Providers{}, app.WithLogLevel(g.level))
}

func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		slog.Warn("shutdown", "err", err)
	}
}

// ── simulate ──────────────────────────────────────────────────────────────────

func newSimulateCmd(g *globals) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "simulate <text>",
		Short: "Run a command transcript without speaking",
		Long: `Feeds text to the command grammar as if it had been heard after the
wake word and prints the result. No microphone, recognizer or speaker is
used.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := offlineApp(g)
			if err != nil {
				return err
			}
			defer closeApp(a)

			text := strings.Join(args, " ")
			res, err := a.Assistant().Simulate(cmd.Context(), text)
			if err != nil {
				return err
			}

			var name string
			if h := a.Assistant().Snapshot().History; len(h) > 0 {
				name = h[len(h)-1].Command
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Transcript string `json:"transcript"`
					Command    string `json:"command,omitempty"`
					Success    bool   `json:"success"`
					Message    string `json:"message"`
				}{text, name, res.Success, res.Message})
			}

			mark := okStyle.Render("✓")
			if !res.Success {
				mark = failStyle.Render("✗")
			}
			if name != "" {
				fmt.Fprintf(out, "%s %s %s\n", mark, res.Message, dimStyle.Render("("+name+")"))
			} else {
				fmt.Fprintf(out, "%s %s\n", mark, res.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

// ── commands ──────────────────────────────────────────────────────────────────

func newCommandsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the voice commands in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := offlineApp(g)
			if err != nil {
				return err
			}
			defer closeApp(a)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCATEGORY\tEXAMPLE\tDESCRIPTION")
			for _, c := range a.Assistant().Registry().Commands() {
				var example string
				if len(c.Examples) > 0 {
					example = fmt.Sprintf("%q", c.Examples[0])
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Name, c.Category, example, c.Description)
			}
			return tw.Flush()
		},
	}
}

// ── voices ────────────────────────────────────────────────────────────────────

func newVoicesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices offered by the configured tts provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig(false)
			if err != nil {
				return err
			}
			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			entry := withLanguage(cfg.Providers.TTS, cfg.Assistant.Language)
			p, err := createProvider("tts", entry, reg.CreateTTS)
			if err != nil {
				return err
			}
			if p == nil {
				return errors.New("no tts provider configured")
			}

			svc := speech.New(speech.NewPlaybackSynthesizer(p, &mock.Sink{}))
			voices, err := svc.Voices(cmd.Context())
			if err != nil {
				return err
			}
			preferred, _ := svc.PreferredVoice(cmd.Context(), cfg.Assistant.Language)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tLANG\t")
			for _, v := range voices {
				var mark string
				if v.ID == preferred.ID {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID, v.Name, v.Lang, mark)
			}
			return tw.Flush()
		},
	}
}

// ── console ───────────────────────────────────────────────────────────────────

func newConsoleCmd(g *globals) *cobra.Command {
	var withAudio bool
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive terminal indicator and command prompt",
		Long: `Shows the assistant state and command history in the terminal. Type
a command to simulate it, or press the toggle key to start listening. With
--audio the configured microphone, recognizer and speaker are used and the
server runs alongside; logs go to --log-file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !withAudio {
				a, err := offlineApp(g)
				if err != nil {
					return err
				}
				defer closeApp(a)
				return console.Run(cmd.Context(), a.Assistant())
			}
			return runAudioConsole(cmd.Context(), g)
		},
	}
	cmd.Flags().BoolVar(&withAudio, "audio", false, "use the configured audio providers and run the server")
	return cmd
}

func runAudioConsole(ctx context.Context, g *globals) error {
	cfg, err := g.loadConfig(false)
	if err != nil {
		return err
	}
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return err
	}
	if c, ok := providers.Audio.(io.Closer); ok {
		defer c.Close()
	}
	a, err := app.New(cfg, providers, app.WithLogLevel(g.level))
	if err != nil {
		return err
	}
	defer closeApp(a)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return a.Run(ctx) })
	eg.Go(func() error {
		defer cancel()
		return console.Run(ctx, a.Assistant())
	})
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
