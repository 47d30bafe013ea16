// Package config handles TOML configuration loading with environment variable substitution.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvAPIURL overrides api.base_url when set.
const EnvAPIURL = "REELDL_API_URL"

// Config is the root configuration structure.
type Config struct {
	API     APIConfig     `toml:"api"`
	Stream  StreamConfig  `toml:"stream"`
	Tracker TrackerConfig `toml:"tracker"`
	History HistoryConfig `toml:"history"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
}

type APIConfig struct {
	BaseURL   string   `toml:"base_url"`
	Timeout   Duration `toml:"timeout"`
	Transport string   `toml:"transport"` // "sse" or "websocket"
}

type StreamConfig struct {
	MaxRetries   int      `toml:"max_retries"` // -1 retries forever
	InitialDelay Duration `toml:"initial_delay"`
	MaxDelay     Duration `toml:"max_delay"`
}

type TrackerConfig struct {
	CloseDelay       Duration `toml:"close_delay"`
	RetainFor        Duration `toml:"retain_for"`
	SweepInterval    Duration `toml:"sweep_interval"`
	StaleAfter       Duration `toml:"stale_after"`
	ProgressInterval Duration `toml:"progress_interval"`
}

type HistoryConfig struct {
	Enabled   bool     `toml:"enabled"`
	Path      string   `toml:"path"`
	Retention Duration `toml:"retention"` // 0 keeps everything
}

type LogConfig struct {
	Level string `toml:"level"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"` // empty disables the /metrics listener
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   "http://localhost:3001/api",
			Timeout:   Duration{30 * time.Second},
			Transport: "sse",
		},
		Stream: StreamConfig{
			MaxRetries:   5,
			InitialDelay: Duration{time.Second},
			MaxDelay:     Duration{30 * time.Second},
		},
		Tracker: TrackerConfig{
			CloseDelay:       Duration{time.Second},
			RetainFor:        Duration{10 * time.Minute},
			SweepInterval:    Duration{time.Minute},
			StaleAfter:       Duration{2 * time.Minute},
			ProgressInterval: Duration{250 * time.Millisecond},
		},
		History: HistoryConfig{
			Enabled:   true,
			Path:      DefaultDataPath(),
			Retention: Duration{30 * 24 * time.Hour},
		},
		Log: LogConfig{Level: "warn"},
	}
}

// Load reads, substitutes and validates the configuration file. An empty
// path yields the defaults.
func Load(path string) (*Config, error) {
	cfg, err := LoadWithoutValidation(path)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, &ConfigError{Path: path, Errors: errs}
	}
	return cfg, nil
}

// LoadWithoutValidation reads the configuration without running Validate.
// Unresolved environment variables are still an error.
func LoadWithoutValidation(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}

		content, missing := substituteEnvVars(string(data))
		if len(missing) > 0 {
			return nil, &ConfigError{Path: path, Missing: missing}
		}

		// Keys absent from the file keep their defaults.
		if _, err := toml.Decode(content, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.API.BaseURL = v
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	cfg.History.Path = expandHome(cfg.History.Path)
	return cfg, nil
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}

// LoadDotEnv loads variables from a .env file without overriding the real
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Encode writes the configuration as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// envVarPattern matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:-|:\?)([^}]*))?\}`)

// substituteEnvVars expands environment references. Unresolved references
// are left in place and reported in missing.
func substituteEnvVars(content string) (string, []string) {
	var missing []string
	out := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		m := envVarPattern.FindStringSubmatch(match)
		name, op, arg := m[1], m[2], m[3]
		value, ok := os.LookupEnv(name)

		switch op {
		case ":-":
			if value == "" {
				return arg
			}
			return value
		case ":?":
			if value == "" {
				missing = append(missing, fmt.Sprintf("%s: %s", name, arg))
				return match
			}
			return value
		}
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})
	return out, missing
}
