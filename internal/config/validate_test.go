package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidate_Default(t *testing.T) {
	assert.Empty(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty base url", func(c *Config) { c.API.BaseURL = "" }, "api.base_url"},
		{"non-http base url", func(c *Config) { c.API.BaseURL = "ftp://host/api" }, "api.base_url"},
		{"relative base url", func(c *Config) { c.API.BaseURL = "/api" }, "api.base_url"},
		{"negative timeout", func(c *Config) { c.API.Timeout = Duration{-time.Second} }, "api.timeout"},
		{"unknown transport", func(c *Config) { c.API.Transport = "grpc" }, "api.transport"},
		{"zero retries", func(c *Config) { c.Stream.MaxRetries = 0 }, "stream.max_retries"},
		{"retries below -1", func(c *Config) { c.Stream.MaxRetries = -2 }, "stream.max_retries"},
		{"zero initial delay", func(c *Config) { c.Stream.InitialDelay = Duration{} }, "stream.initial_delay"},
		{"max below initial", func(c *Config) { c.Stream.MaxDelay = Duration{time.Millisecond} }, "stream.max_delay"},
		{"negative close delay", func(c *Config) { c.Tracker.CloseDelay = Duration{-1} }, "tracker.close_delay"},
		{"zero sweep", func(c *Config) { c.Tracker.SweepInterval = Duration{} }, "tracker.sweep_interval"},
		{"negative progress interval", func(c *Config) { c.Tracker.ProgressInterval = Duration{-1} }, "tracker.progress_interval"},
		{"history without path", func(c *Config) { c.History.Path = "" }, "history.path"},
		{"negative retention", func(c *Config) { c.History.Retention = Duration{-time.Hour} }, "history.retention"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if assert.Len(t, errs, 1, "errors: %s", strings.Join(errs, "; ")) {
				assert.True(t, strings.HasPrefix(errs[0], tt.field), "got %q", errs[0])
			}
		})
	}
}

func TestValidate_UnlimitedRetries(t *testing.T) {
	cfg := Default()
	cfg.Stream.MaxRetries = -1
	assert.Empty(t, cfg.Validate())
}

func TestValidate_HistoryDisabledNeedsNoPath(t *testing.T) {
	cfg := Default()
	cfg.History.Enabled = false
	cfg.History.Path = ""
	assert.Empty(t, cfg.Validate())
}
