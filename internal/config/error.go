package config

import (
	"fmt"
	"strings"
)

// ConfigError reports every problem found in one config file, so a user can
// fix them in a single pass.
type ConfigError struct {
	Path string
	// Missing holds unresolved ${VAR} references, as "VAR" or, for
	// ${VAR:?message}, "VAR: message".
	Missing []string
	// Errors holds validation failures as "section.key: problem".
	Errors []string
}

func (e *ConfigError) Error() string {
	problems := e.Problems()
	if len(problems) == 0 {
		return ""
	}
	where := e.Path
	if where == "" {
		where = "config"
	}
	if len(problems) == 1 {
		return fmt.Sprintf("%s: %s", where, problems[0])
	}
	return fmt.Sprintf("%s: %d problems: %s", where, len(problems), strings.Join(problems, "; "))
}

// Problems returns one line per problem, unresolved variables first.
func (e *ConfigError) Problems() []string {
	out := make([]string, 0, len(e.Missing)+len(e.Errors))
	for _, m := range e.Missing {
		out = append(out, "unset environment variable "+m)
	}
	return append(out, e.Errors...)
}

// HasErrors reports whether the file has any problem at all.
func (e *ConfigError) HasErrors() bool {
	return len(e.Missing) > 0 || len(e.Errors) > 0
}
