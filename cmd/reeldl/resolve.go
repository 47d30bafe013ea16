package main

import (
	"context"
	"fmt"

	"github.com/vmunix/reeldl/internal/download"
	"github.com/vmunix/reeldl/pkg/match"
)

// resolveJob turns a job id or a loosely typed title into a job id. Titles
// are matched against the incomplete jobs; an argument that matches nothing
// is passed through as an id for the service to judge.
func resolveJob(ctx context.Context, ctrl download.Controller, arg string) (string, error) {
	jobs, err := ctrl.Incomplete(ctx)
	if err != nil {
		return "", fmt.Errorf("list jobs: %w", err)
	}

	titles := make([]string, len(jobs))
	for i, j := range jobs {
		if j.ID == arg {
			return arg, nil
		}
		titles[i] = j.Title
	}

	r := match.Best(arg, titles)
	switch {
	case r.Resolved():
		return jobs[r.Index].ID, nil
	case r.Index >= 0:
		return "", fmt.Errorf("no job matches %q closely enough; did you mean %q (id %s)?",
			arg, r.Title, jobs[r.Index].ID)
	default:
		return arg, nil
	}
}
