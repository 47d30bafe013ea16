// Package migrations provides embedded SQL migration files.
package migrations

import (
	_ "embed"
)

//go:embed sql/001_history.sql
var HistorySQL string

// All lists every migration in the order it must be applied.
var All = []string{HistorySQL}
