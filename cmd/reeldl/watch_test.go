package main

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/reeldl/internal/download"
	"github.com/vmunix/reeldl/internal/tracker"
)

const (
	evProgress50 = `{"event":"progress","progress":{"percent":50,"speed":1024,"eta":30}}`
	evCompleted  = `{"event":"completed"}`
	evDiskFull   = `{"event":"error","error":"disk full"}`
)

func decodeUpdates(t *testing.T, out string) []tracker.Update {
	t.Helper()
	var updates []tracker.Update
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var u tracker.Update
		require.NoError(t, json.Unmarshal(sc.Bytes(), &u), "line %q", sc.Text())
		updates = append(updates, u)
	}
	return updates
}

func TestWatchCmd_ExitWhenDone(t *testing.T) {
	svc := newFakeService(t, &download.Job{ID: "job-1", Title: "Heat", Status: download.StatusActive, Progress: 10})
	svc.script("job-1", evProgress50, evCompleted)
	cli := newTestCLI(t, svc.URL())

	out, err := cli.run("watch", "-x")
	require.NoError(t, err)
	assert.Contains(t, out, "Heat")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "100.0%")
}

func TestWatchCmd_JSON(t *testing.T) {
	svc := newFakeService(t,
		&download.Job{ID: "job-1", Title: "Heat", Status: download.StatusActive},
		&download.Job{ID: "job-2", Title: "Fight Club", Status: download.StatusPaused},
	)
	svc.script("job-1", evProgress50, evCompleted)
	cli := newTestCLI(t, svc.URL())

	out, err := cli.run("--json", "watch", "heat", "--exit-when-done")
	require.NoError(t, err)

	updates := decodeUpdates(t, out)
	require.NotEmpty(t, updates)
	for _, u := range updates {
		assert.Equal(t, "job-1", u.View.ID, "only the named job is printed")
	}
	last := updates[len(updates)-1]
	assert.Equal(t, download.StatusCompleted, last.View.Status)
	assert.InDelta(t, 100.0, last.View.Percent, 0.001)
}

func TestWatchCmd_FailedDownload(t *testing.T) {
	svc := newFakeService(t, &download.Job{ID: "job-1", Title: "Heat", Status: download.StatusActive})
	svc.script("job-1", evDiskFull)
	cli := newTestCLI(t, svc.URL())

	out, err := cli.run("watch", "job-1", "-x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 download(s) failed")
	assert.Contains(t, out, "disk full")
}

func TestWatchCmd_AlreadyFinishedJob(t *testing.T) {
	svc := newFakeService(t, &download.Job{ID: "job-1", Title: "Heat", Status: download.StatusCompleted, Progress: 100})
	cli := newTestCLI(t, svc.URL())

	out, err := cli.run("watch", "job-1", "-x")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
}

func TestWatchCmd_UnknownJob(t *testing.T) {
	svc := newFakeService(t)
	cli := newTestCLI(t, svc.URL())

	_, err := cli.run("watch", "job-9", "-x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status job-9")
}

func TestWatchCmd_NothingToWatch(t *testing.T) {
	svc := newFakeService(t)
	cli := newTestCLI(t, svc.URL())

	out, err := cli.run("watch", "-x")
	require.NoError(t, err)
	assert.Contains(t, out, "No incomplete downloads")
}

func TestStartCmd_Watch(t *testing.T) {
	svc := newFakeService(t)
	svc.script("job-1", `{"event":"started"}`, evProgress50, evCompleted)
	cli := newTestCLI(t, svc.URL())

	out, err := cli.run("start", "--tmdb-id", "949", "--title", "Heat", "--watch")
	require.NoError(t, err)
	assert.Contains(t, out, "Started Heat (id job-1)")
	assert.Contains(t, out, "completed")
}

func TestWatchCmd_RecordsHistory(t *testing.T) {
	svc := newFakeService(t, &download.Job{ID: "job-1", Title: "Heat", Status: download.StatusActive})
	svc.script("job-1", evCompleted)
	cli := newTestCLI(t, svc.URL(), withHistory())

	_, err := cli.run("watch", "-x")
	require.NoError(t, err)

	out, err := cli.run("--json", "history", "job-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"action": "completed"`)
	assert.Contains(t, out, `"jobId": "job-1"`)
}
