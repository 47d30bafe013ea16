package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vmunix/reeldl/internal/download"
)

func newStartCmd(a *app) *cobra.Command {
	var (
		req        download.StartRequest
		mediaType  string
		season, ep int
		watch      bool
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a download",
		Long: `Start a download job for a movie or a single TV episode.

Examples:
  reeldl start --tmdb-id 550 --title "Fight Club"
  reeldl start --tmdb-id 1399 --type tv --title "Game of Thrones" --season 1 --episode 1
  reeldl start --tmdb-id 603 --title "The Matrix" --source "urn:btih:..." --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.MediaType = download.MediaType(mediaType)
			if cmd.Flags().Changed("season") {
				req.SeasonNumber = &season
			}
			if cmd.Flags().Changed("episode") {
				req.EpisodeNumber = &ep
			}
			if watch {
				return a.startAndWatch(cmd, req)
			}
			return a.runStart(cmd, req)
		},
	}

	f := cmd.Flags()
	f.Int64Var(&req.TMDBID, "tmdb-id", 0, "TMDB id of the title")
	f.StringVarP(&mediaType, "type", "t", string(download.MediaMovie), "Media type (movie, tv)")
	f.StringVar(&req.Title, "title", "", "Title to download")
	f.StringVar(&req.SourceURN, "source", "", "Source URN (magnet, video URL, local path)")
	f.StringVar(&req.Quality, "quality", "", "Preferred quality, e.g. 1080p")
	f.IntVar(&season, "season", 0, "Season number (tv)")
	f.IntVar(&ep, "episode", 0, "Episode number (tv)")
	f.BoolVarP(&watch, "watch", "w", false, "Follow progress until the download finishes")
	_ = cmd.MarkFlagRequired("tmdb-id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func (a *app) runStart(cmd *cobra.Command, req download.StartRequest) error {
	resp, err := a.controller().Start(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if a.jsonOutput {
		return printJSON(out, resp)
	}
	if a.quiet {
		fmt.Fprintln(out, resp.ID)
		return nil
	}
	fmt.Fprintf(out, "Started %s (id %s, %s)\n", req.Title, resp.ID, resp.Status)
	fmt.Fprintf(out, "Use 'reeldl watch %s' to follow progress\n", resp.ID)
	return nil
}

type controlOp struct {
	name  string
	done  string
	short string
	call  func(download.Controller, context.Context, string) (*download.StatusResponse, error)
}

var (
	opPause  = controlOp{"pause", "Paused", "Pause a download", download.Controller.Pause}
	opResume = controlOp{"resume", "Resumed", "Resume a paused download", download.Controller.Resume}
	opCancel = controlOp{"cancel", "Cancelled", "Cancel a download", download.Controller.Cancel}
)

func newControlCmd(a *app, op controlOp) *cobra.Command {
	return &cobra.Command{
		Use:   op.name + " <id|title>",
		Short: op.short,
		Long: fmt.Sprintf(`%s.

The job may be named by id or by title. Titles are matched loosely against
incomplete downloads and must match with at least medium confidence.

Examples:
  reeldl %s 3f2a9c
  reeldl %s "fight club"`, op.short, op.name, op.name),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runControl(cmd, op, args[0])
		},
	}
}

func (a *app) runControl(cmd *cobra.Command, op controlOp, arg string) error {
	ctx := cmd.Context()
	ctrl := a.controller()

	id, err := resolveJob(ctx, ctrl, arg)
	if err != nil {
		return err
	}
	resp, err := op.call(ctrl, ctx, id)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op.name, err)
	}

	out := cmd.OutOrStdout()
	if a.jsonOutput {
		return printJSON(out, map[string]any{"id": id, "status": resp.Status})
	}
	if !a.quiet {
		fmt.Fprintf(out, "%s %s (%s)\n", op.done, id, resp.Status)
	}
	return nil
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id|title>",
		Short: "Show detailed status of a download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl := a.controller()

			id, err := resolveJob(ctx, ctrl, args[0])
			if err != nil {
				return err
			}
			job, err := ctrl.Status(ctx, id)
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}

			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), job)
			}
			printJobDetail(cmd.OutOrStdout(), job)
			return nil
		},
	}
}

var listStatuses = []string{
	string(download.StatusQueued),
	string(download.StatusActive),
	string(download.StatusPaused),
	string(download.StatusError),
}

func newListCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List incomplete downloads",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if status != "" && !slices.Contains(listStatuses, strings.ToLower(status)) {
				return fmt.Errorf("invalid status %q, valid statuses: %s", status, strings.Join(listStatuses, ", "))
			}

			jobs, err := a.controller().Incomplete(cmd.Context())
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			if status != "" {
				jobs = slices.DeleteFunc(jobs, func(j *download.Job) bool {
					return !strings.EqualFold(string(j.Status), status)
				})
			}

			if a.jsonOutput {
				if jobs == nil {
					jobs = []*download.Job{}
				}
				return printJSON(cmd.OutOrStdout(), jobs)
			}
			printJobTable(cmd.OutOrStdout(), jobs)
			return nil
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status ("+strings.Join(listStatuses, ", ")+")")
	return cmd
}
