package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigError(t *testing.T) {
	const path = "/home/user/.config/reeldl/config.toml"

	tests := []struct {
		name     string
		err      ConfigError
		want     string
		problems []string
	}{
		{
			name: "nothing wrong",
			err:  ConfigError{Path: path},
			want: "",
		},
		{
			name:     "one unset variable",
			err:      ConfigError{Path: path, Missing: []string{"REELDL_API_URL"}},
			want:     path + ": unset environment variable REELDL_API_URL",
			problems: []string{"unset environment variable REELDL_API_URL"},
		},
		{
			name: "required variable with message and a bad transport",
			err: ConfigError{
				Path:    path,
				Missing: []string{"REELDL_API_URL: point this at the download service"},
				Errors:  []string{`api.transport: must be "sse" or "websocket"`},
			},
			want: path + `: 2 problems: unset environment variable REELDL_API_URL: point this at the download service; api.transport: must be "sse" or "websocket"`,
			problems: []string{
				"unset environment variable REELDL_API_URL: point this at the download service",
				`api.transport: must be "sse" or "websocket"`,
			},
		},
		{
			name:     "no path",
			err:      ConfigError{Errors: []string{"stream.max_delay: must not be less than stream.initial_delay"}},
			want:     "config: stream.max_delay: must not be less than stream.initial_delay",
			problems: []string{"stream.max_delay: must not be less than stream.initial_delay"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.Equal(t, tt.want != "", tt.err.HasErrors())
			if tt.problems == nil {
				assert.Empty(t, tt.err.Problems())
			} else {
				assert.Equal(t, tt.problems, tt.err.Problems())
			}
		})
	}
}
