package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/MrWong99/digigov-voice/internal/app"
	"github.com/MrWong99/digigov-voice/internal/config"
	"github.com/MrWong99/digigov-voice/internal/observe"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(g *globals) *cobra.Command {
	var (
		quiet  bool
		reload time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant server",
		Long: `Runs the websocket hub, the HTTP API and the voice pipeline until
interrupted. Changes to the wake word, routes, form selectors, speech
defaults and log level are picked up from the config file without a
restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), g, serveOptions{quiet: quiet, reloadInterval: reload})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the startup summary")
	cmd.Flags().DurationVar(&reload, "reload-interval", 5*time.Second, "how often the config file is checked for changes")
	return cmd
}

type serveOptions struct {
	quiet          bool
	reloadInterval time.Duration
}

func serve(ctx context.Context, g *globals, opts serveOptions) error {
	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := g.loadConfig(false)
	if err != nil {
		return err
	}
	slog.Info("digigov-voice starting",
		"version", version,
		"config", g.configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Registry:       promReg,
		SampleRatio:    cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	reg.SetMetrics(observe.DefaultMetrics())
	registerBuiltinProviders(reg)
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return err
	}

	if !opts.quiet {
		printStartupSummary(cfg)
	}

	application, err := app.New(cfg, providers,
		app.WithPrometheusRegistry(promReg),
		app.WithLogLevel(g.level),
	)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(g.configPath, application.Reload, config.WithInterval(opts.reloadInterval))
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	var errs []error
	if err := application.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown: %w", err))
	}
	if c, ok := providers.Audio.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audio device: %w", err))
		}
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		errs = append(errs, runErr)
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("stopped with errors", "err", err)
		return err
	}
	slog.Info("goodbye")
	return nil
}
