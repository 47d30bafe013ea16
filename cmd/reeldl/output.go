package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vmunix/reeldl/internal/download"
	"github.com/vmunix/reeldl/internal/tracker"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

func formatSpeed(bytesPerSec *int64) string {
	if bytesPerSec == nil || *bytesPerSec <= 0 {
		return "-"
	}
	return formatBytes(*bytesPerSec) + "/s"
}

func formatBytes(n int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1f GB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.1f MB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.1f KB", float64(n)/KB)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func formatETA(seconds *int64) string {
	if seconds == nil || *seconds < 0 {
		return "-"
	}
	d := time.Duration(*seconds) * time.Second
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

func formatSize(downloaded, total *int64) string {
	switch {
	case downloaded != nil && total != nil:
		return formatBytes(*downloaded) + " / " + formatBytes(*total)
	case total != nil:
		return formatBytes(*total)
	case downloaded != nil:
		return formatBytes(*downloaded)
	default:
		return "-"
	}
}

func formatTimeAgo(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	ago := now.Sub(t)
	switch {
	case ago < time.Minute:
		return "just now"
	case ago < time.Hour:
		return fmt.Sprintf("%dm ago", int(ago.Minutes()))
	case ago < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(ago.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(ago.Hours()/24))
	}
}

func displayTitle(title, id string) string {
	if title == "" {
		return id
	}
	return title
}

func printJobTable(w io.Writer, jobs []*download.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No incomplete downloads")
		return
	}

	fmt.Fprintf(w, "Downloads (%d):\n\n", len(jobs))
	fmt.Fprintf(w, "  %-14s %-10s %-40s %-8s %-11s %s\n", "ID", "STATUS", "TITLE", "PROGRESS", "SPEED", "ETA")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 96))
	for _, j := range jobs {
		fmt.Fprintf(w, "  %-14s %-10s %-40s %-8s %-11s %s\n",
			truncate(j.ID, 14), j.Status, truncate(displayTitle(j.Title, j.ID), 40),
			fmt.Sprintf("%.1f%%", j.Progress), formatSpeed(j.Speed), formatETA(j.ETA))
	}
}

func printJobDetail(w io.Writer, j *download.Job) {
	fmt.Fprintf(w, "Download %s\n\n", j.ID)
	if j.Title != "" {
		fmt.Fprintf(w, "  %-10s %s\n", "Title:", j.Title)
	}
	if j.SeasonNumber != nil && j.EpisodeNumber != nil {
		fmt.Fprintf(w, "  %-10s S%02dE%02d\n", "Episode:", *j.SeasonNumber, *j.EpisodeNumber)
	}
	fmt.Fprintf(w, "  %-10s %s\n", "Status:", j.Status)
	fmt.Fprintf(w, "  %-10s %.1f%%\n", "Progress:", j.Progress)
	if j.SourceType != "" {
		fmt.Fprintf(w, "  %-10s %s\n", "Source:", j.SourceType)
	}
	fmt.Fprintf(w, "  %-10s %s\n", "Size:", formatSize(j.Downloaded, j.Total))
	if j.Status == download.StatusActive {
		fmt.Fprintf(w, "  %-10s %s\n", "Speed:", formatSpeed(j.Speed))
		fmt.Fprintf(w, "  %-10s %s\n", "ETA:", formatETA(j.ETA))
		if j.Peers != nil {
			fmt.Fprintf(w, "  %-10s %d\n", "Peers:", *j.Peers)
		}
	}
	if j.ErrorState != "" {
		fmt.Fprintf(w, "  %-10s %s\n", "Error:", j.ErrorState)
	}
}

// formatViewLine renders one line of watch output.
func formatViewLine(v tracker.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %-9s %5.1f%%", truncate(displayTitle(v.Title, v.ID), 30), v.Status, v.Percent)
	switch v.Status {
	case download.StatusActive:
		fmt.Fprintf(&b, "  %s  eta %s", formatSpeed(v.Speed), formatETA(v.ETA))
		if v.Peers != nil {
			fmt.Fprintf(&b, "  %d peers", *v.Peers)
		}
	case download.StatusError:
		fmt.Fprintf(&b, "  %s", v.Error)
	}
	if v.Stale {
		b.WriteString("  (stale)")
	}
	return b.String()
}
