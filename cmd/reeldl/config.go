package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vmunix/reeldl/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(newConfigInitCmd(a), newConfigShowCmd(a), newConfigTestCmd())
	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a commented default config file",
		Long: `Write the default config file, by default to
$XDG_CONFIG_HOME/reeldl/config.toml (~/.config/reeldl/config.toml).`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath()
			if len(args) > 0 {
				path = args[0]
			}
			if err := config.WriteDefault(path, force); err != nil {
				if errors.Is(err, config.ErrExists) {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
				return fmt.Errorf("write config: %w", err)
			}
			if !a.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return printJSON(out, a.cfg)
			}
			if a.cfgPath != "" {
				fmt.Fprintf(out, "# %s\n", a.cfgPath)
			} else {
				fmt.Fprintln(out, "# defaults (no config file found)")
			}
			return a.cfg.Encode(out)
		},
	}
}

func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "test [path]",
		Short:       "Validate a configuration file",
		Long:        "Validates config syntax, field values and environment variable substitution.",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath()
			if len(args) > 0 {
				path = args[0]
			} else if found, err := config.Discover(); err == nil {
				path = found
			}
			return runConfigTest(cmd.OutOrStdout(), path)
		},
	}
}

func runConfigTest(w io.Writer, path string) error {
	fmt.Fprintf(w, "Validating %s...\n\n", path)

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		var configErr *config.ConfigError
		if errors.As(err, &configErr) {
			printConfigErrors(w, configErr)
			return fmt.Errorf("configuration invalid")
		}
		return fmt.Errorf("failed to load config: %w", err)
	}

	printConfigSummary(w, cfg)
	fmt.Fprintln(w, "\nConfiguration valid!")
	return nil
}

func printConfigErrors(w io.Writer, e *config.ConfigError) {
	if len(e.Missing) > 0 {
		fmt.Fprintln(w, "Missing environment variables:")
		for _, m := range e.Missing {
			fmt.Fprintf(w, "  - %s\n", m)
		}
		fmt.Fprintln(w)
	}

	if len(e.Errors) > 0 {
		fmt.Fprintln(w, "Validation errors:")
		for _, err := range e.Errors {
			fmt.Fprintf(w, "  - %s\n", err)
		}
		fmt.Fprintln(w)
	}
}

func printConfigSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Configuration Summary:")
	fmt.Fprintf(w, "  API:      %s (%s, timeout %s)\n", cfg.API.BaseURL, cfg.API.Transport, cfg.API.Timeout.Duration)

	retries := fmt.Sprint(cfg.Stream.MaxRetries)
	if cfg.Stream.MaxRetries < 0 {
		retries = "unlimited"
	}
	fmt.Fprintf(w, "  Stream:   %s retries, backoff %s..%s\n", retries,
		cfg.Stream.InitialDelay.Duration, cfg.Stream.MaxDelay.Duration)

	if cfg.History.Enabled {
		fmt.Fprintf(w, "  History:  %s (keep %s)\n", cfg.History.Path, cfg.History.Retention.Duration)
	} else {
		fmt.Fprintln(w, "  History:  disabled")
	}
	if cfg.Metrics.Addr != "" {
		fmt.Fprintf(w, "  Metrics:  %s\n", cfg.Metrics.Addr)
	}
	fmt.Fprintf(w, "  Log:      %s\n", cfg.Log.Level)
}
