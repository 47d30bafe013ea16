package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vmunix/reeldl/internal/download"
	"github.com/vmunix/reeldl/internal/server"
	"github.com/vmunix/reeldl/internal/tracker"
)

var errWatchDone = errors.New("watched downloads finished")

type watchOptions struct {
	exitWhenDone bool
	metricsAddr  string
}

func newWatchCmd(a *app) *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch [id|title...]",
		Short: "Follow live progress of downloads",
		Long: `Follow live progress of incomplete downloads over the event stream.

Without arguments every incomplete download is watched. Streams reconnect
with backoff; a download whose stream gives up is marked stale and polled
until it recovers.

Examples:
  reeldl watch                      # Watch everything in progress
  reeldl watch 3f2a9c "heat" -x     # Watch two downloads, exit when both finish
  reeldl watch --metrics-addr :9464 # Also serve Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("metrics-addr") {
				opts.metricsAddr = a.cfg.Metrics.Addr
			}
			return a.runWatch(cmd, args, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.exitWhenDone, "exit-when-done", "x", false, "Exit once every watched download has finished")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func (a *app) runWatch(cmd *cobra.Command, args []string, opts watchOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl := a.controller()
	var ids []string
	for _, arg := range args {
		id, err := resolveJob(ctx, ctrl, arg)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	s, err := a.newSession(ctrl)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.tracker.LoadIncomplete(ctx); err != nil {
		return fmt.Errorf("load downloads: %w", err)
	}

	// Named downloads that already finished are not in the incomplete list.
	out := cmd.OutOrStdout()
	var finished []tracker.View
	for _, id := range ids {
		if _, ok := s.tracker.Get(id); ok {
			continue
		}
		job, err := ctrl.Status(ctx, id)
		if err != nil {
			return fmt.Errorf("status %s: %w", id, err)
		}
		finished = append(finished, tracker.ViewFromJob(job, time.Now()))
	}

	return a.follow(ctx, out, s, ids, finished, opts)
}

// startAndWatch starts a job through the tracker and follows it to the end.
func (a *app) startAndWatch(cmd *cobra.Command, req download.StartRequest) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := a.newSession(a.controller())
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := s.tracker.Start(ctx, req)
	if err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	if !a.quiet && !a.jsonOutput {
		fmt.Fprintf(cmd.OutOrStdout(), "Started %s (id %s)\n", req.Title, v.ID)
	}
	return a.follow(ctx, cmd.OutOrStdout(), s, []string{v.ID}, nil, watchOptions{
		exitWhenDone: true,
		metricsAddr:  a.cfg.Metrics.Addr,
	})
}

// follow prints view updates for the watched jobs until ctx ends or, with
// exitWhenDone, every watched job has finished. Without ids every tracked
// job is watched. It fails when a watched job ends in error.
func (a *app) follow(ctx context.Context, w io.Writer, s *session, ids []string, finished []tracker.View, opts watchOptions) error {
	updates := s.tracker.Updates().Subscribe(256)

	// id -> finished
	watched := make(map[string]bool)
	var failed []string
	note := func(v tracker.View, removed bool) {
		watched[v.ID] = removed || v.IsTerminal()
		if v.Status == download.StatusError && !slices.Contains(failed, v.ID) {
			failed = append(failed, v.ID)
		}
	}

	for _, v := range finished {
		a.printUpdate(w, tracker.Update{Type: tracker.UpdateUpdated, View: v, At: time.Now()})
		note(v, false)
	}
	for _, v := range s.tracker.List() {
		if len(ids) > 0 && !slices.Contains(ids, v.ID) {
			continue
		}
		a.printUpdate(w, tracker.Update{Type: tracker.UpdateAdded, View: v, At: v.UpdatedAt})
		note(v, false)
	}

	if len(watched) == 0 && !a.quiet && !a.jsonOutput {
		fmt.Fprintln(w, "No incomplete downloads")
	}
	if opts.exitWhenDone && allFinished(watched) {
		return failure(failed)
	}

	var pruner server.Pruner
	if s.history != nil {
		pruner = s.history
	}
	runner := server.NewRunner(s.tracker, pruner, a.runnerConfig(opts.metricsAddr), a.log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(ctx) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case u, ok := <-updates:
				if !ok {
					return nil
				}
				if _, tracked := watched[u.View.ID]; !tracked && len(ids) > 0 {
					continue
				}
				a.printUpdate(w, u)
				note(u.View, u.Type == tracker.UpdateRemoved)
				if opts.exitWhenDone && allFinished(watched) {
					return errWatchDone
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errWatchDone) {
		return err
	}
	return failure(failed)
}

func (a *app) printUpdate(w io.Writer, u tracker.Update) {
	if a.jsonOutput {
		_ = json.NewEncoder(w).Encode(u)
		return
	}
	if a.quiet && !u.View.IsTerminal() && u.Type != tracker.UpdateRemoved {
		return
	}
	line := formatViewLine(u.View)
	if u.Type == tracker.UpdateRemoved {
		line = fmt.Sprintf("%-30s removed", truncate(displayTitle(u.View.Title, u.View.ID), 30))
	}
	fmt.Fprintf(w, "%s  %s\n", u.At.Local().Format("15:04:05"), line)
}

func allFinished(watched map[string]bool) bool {
	for _, done := range watched {
		if !done {
			return false
		}
	}
	return true
}

func failure(failed []string) error {
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d download(s) failed: %v", len(failed), failed)
}
