package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vmunix/reeldl/internal/config"
	"github.com/vmunix/reeldl/internal/telemetry"
)

// annotation that marks commands able to run without a valid config.
const skipConfig = "reeldl/skip-config"

// app carries global flags and the state built from them.
type app struct {
	configPath string
	apiURL     string
	jsonOutput bool
	quiet      bool
	logLevel   string

	cfg      *config.Config
	cfgPath  string // "" when running on defaults
	log      *slog.Logger
	shutdown telemetry.Shutdown
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "reeldl",
		Short: "Control and watch download jobs",
		Long: `reeldl - client for the download service

Start, pause, resume and cancel download jobs, and follow their progress
live over the service's event stream.

Jobs can be named by id or by title; titles are matched loosely against
the incomplete jobs.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}
	root.SetVersionTemplate("reeldl {{.Version}}\n")

	f := root.PersistentFlags()
	f.StringVarP(&a.configPath, "config", "c", "", "Config file (default: discovered)")
	f.StringVar(&a.apiURL, "api-url", "", "Download service base URL, overrides config")
	f.BoolVar(&a.jsonOutput, "json", false, "Output as JSON")
	f.BoolVarP(&a.quiet, "quiet", "q", false, "Only print errors and requested data")
	f.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newStartCmd(a),
		newControlCmd(a, opPause),
		newControlCmd(a, opResume),
		newControlCmd(a, opCancel),
		newStatusCmd(a),
		newListCmd(a),
		newWatchCmd(a),
		newHistoryCmd(a),
		newConfigCmd(a),
		newCompletionCmd(root),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		return 1
	}
	return 0
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	a.cfg = config.Default()
	if cmd.Annotations[skipConfig] == "" {
		cfg, path, err := a.loadConfig()
		if err != nil {
			return err
		}
		a.cfg, a.cfgPath = cfg, path
	}

	level := a.logLevel
	if level == "" {
		level = a.cfg.Log.Level
	}
	a.log = newLogger(cmd.ErrOrStderr(), level)
	slog.SetDefault(a.log)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := telemetry.Init(ctx, "reeldl", version, a.log)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return a.shutdown(ctx)
}

// loadConfig resolves the config file from --config or discovery. A missing
// file is not an error; the defaults apply.
func (a *app) loadConfig() (*config.Config, string, error) {
	path := a.configPath
	if path == "" {
		found, err := config.Discover()
		switch {
		case err == nil:
			path = found
		case errors.Is(err, config.ErrNotFound):
		default:
			return nil, "", err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if a.apiURL != "" {
		cfg.API.BaseURL = strings.TrimRight(a.apiURL, "/")
	}
	return cfg, path, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLogLevel(level)}))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
