package config

import (
	"fmt"
	"net/url"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "": true,
}

var validTransports = map[string]bool{
	"sse": true, "websocket": true,
}

// Validate checks the configuration for errors.
// Returns a slice of error messages (empty if valid).
func (c *Config) Validate() []string {
	var errs []string

	if c.API.BaseURL == "" {
		errs = append(errs, "api.base_url: required")
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("api.base_url: must be an http or https URL, got %q", c.API.BaseURL))
	}
	if c.API.Timeout.Duration < 0 {
		errs = append(errs, "api.timeout: must not be negative")
	}
	if !validTransports[c.API.Transport] {
		errs = append(errs, fmt.Sprintf("api.transport: must be one of sse, websocket; got %q", c.API.Transport))
	}

	if c.Stream.MaxRetries < -1 || c.Stream.MaxRetries == 0 {
		errs = append(errs, fmt.Sprintf("stream.max_retries: must be positive, or -1 for unlimited; got %d", c.Stream.MaxRetries))
	}
	if c.Stream.InitialDelay.Duration <= 0 {
		errs = append(errs, "stream.initial_delay: must be positive")
	}
	if c.Stream.MaxDelay.Duration < c.Stream.InitialDelay.Duration {
		errs = append(errs, "stream.max_delay: must not be less than initial_delay")
	}

	if c.Tracker.CloseDelay.Duration < 0 {
		errs = append(errs, "tracker.close_delay: must not be negative")
	}
	if c.Tracker.SweepInterval.Duration <= 0 {
		errs = append(errs, "tracker.sweep_interval: must be positive")
	}
	if c.Tracker.ProgressInterval.Duration < 0 {
		errs = append(errs, "tracker.progress_interval: must not be negative")
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path: required when history is enabled")
	}
	if c.History.Retention.Duration < 0 {
		errs = append(errs, "history.retention: must not be negative")
	}

	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level: must be one of debug, info, warn, error; got %q", c.Log.Level))
	}

	return errs
}
