package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmunix/reeldl/internal/history"
	"github.com/vmunix/reeldl/pkg/match"
)

// how many recent records a title lookup scans
const historyLookupWindow = 500

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		action string
	)
	cmd := &cobra.Command{
		Use:   "history [id|title]",
		Short: "Show the lifecycle history of downloads",
		Long: `Show recorded lifecycle changes: starts, pauses, completions, errors.

History is recorded while reeldl tracks jobs (watch, start --watch). Name a
download by id, or by a title seen in the recorded history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arg string
			if len(args) > 0 {
				arg = args[0]
			}
			return a.runHistory(cmd, arg, limit, action)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries")
	cmd.Flags().StringVar(&action, "action", "", "Filter by action (started, paused, resumed, completed, error, cancelled, evicted)")

	cmd.AddCommand(newHistoryPruneCmd(a))
	return cmd
}

func newHistoryPruneCmd(a *app) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old history entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				olderThan = a.cfg.History.Retention.Duration
			}
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			store, err := a.requireHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]int64{"deleted": n})
			}
			if !a.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries older than %s\n", n, olderThan)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age cutoff (default: history.retention)")
	return cmd
}

func (a *app) requireHistory() (*history.Store, error) {
	store, err := a.openHistory()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("history is disabled (history.enabled = false)")
	}
	return store, nil
}

func (a *app) runHistory(cmd *cobra.Command, arg string, limit int, action string) error {
	store, err := a.requireHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	f := history.Filter{Limit: limit}
	if action != "" {
		act := history.Action(strings.ToLower(action))
		if !slices.Contains(historyActions, act) {
			return fmt.Errorf("invalid action %q", action)
		}
		f.Action = &act
	}

	if arg != "" {
		id, err := resolveHistoryJob(ctx, store, arg)
		if err != nil {
			return err
		}
		f.JobID = &id
	}

	records, err := store.List(ctx, f)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}

	if a.jsonOutput {
		if records == nil {
			records = []*history.Record{}
		}
		return printJSON(cmd.OutOrStdout(), records)
	}
	printHistoryTable(cmd.OutOrStdout(), records, time.Now())
	return nil
}

var historyActions = []history.Action{
	history.ActionStarted,
	history.ActionPaused,
	history.ActionResumed,
	history.ActionCompleted,
	history.ActionError,
	history.ActionCancelled,
	history.ActionEvicted,
}

// resolveHistoryJob maps arg to a job id: an id with recorded history wins,
// then a close title match among recent records. Anything else is taken as
// an id.
func resolveHistoryJob(ctx context.Context, store *history.Store, arg string) (string, error) {
	recs, err := store.ForJob(ctx, arg)
	if err != nil {
		return "", err
	}
	if len(recs) > 0 {
		return arg, nil
	}

	recent, err := store.List(ctx, history.Filter{Limit: historyLookupWindow})
	if err != nil {
		return "", err
	}
	var titles, ids []string
	for _, r := range recent {
		if r.Title == "" || slices.Contains(ids, r.JobID) {
			continue
		}
		titles = append(titles, r.Title)
		ids = append(ids, r.JobID)
	}
	if m := match.Best(arg, titles); m.Resolved() {
		return ids[m.Index], nil
	}
	return arg, nil
}

func printHistoryTable(w io.Writer, records []*history.Record, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No history")
		return
	}

	fmt.Fprintf(w, "  %-10s %-14s %-10s %-36s %-7s %s\n", "WHEN", "ID", "ACTION", "TITLE", "PCT", "MESSAGE")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 96))
	for _, r := range records {
		fmt.Fprintf(w, "  %-10s %-14s %-10s %-36s %-7s %s\n",
			formatTimeAgo(r.OccurredAt, now), truncate(r.JobID, 14), r.Action,
			truncate(displayTitle(r.Title, r.JobID), 36),
			fmt.Sprintf("%.1f%%", r.Percent), r.Message)
	}
}
