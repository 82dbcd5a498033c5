package cron

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakePruner) PruneRuns(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func newTestScheduler(t *testing.T, pruner RunPruner, opts Options) *Scheduler {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	s, err := NewScheduler(pruner, opts, logger)
	require.NoError(t, err)
	return s
}

func TestNewSchedulerRejectsBadExpression(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	_, err := NewScheduler(nil, Options{Expression: "every hour"}, logger)
	assert.ErrorContains(t, err, "every hour")
}

func TestNextRun(t *testing.T) {
	s := newTestScheduler(t, nil, Options{Expression: "0 * * * *"})
	s.now = func() time.Time { return time.Date(2026, 3, 1, 10, 15, 30, 0, time.UTC) }

	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), s.NextRun())
}

func TestRunOncePrunesRunsAndScreenshots(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	write := func(name string, age time.Duration) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
		mod := now.Add(-age)
		require.NoError(t, os.Chtimes(path, mod, mod))
		return path
	}
	old := write("screenshot_default_dash1_1.png", 10*24*time.Hour)
	fresh := write("screenshot_default_dash1_2.png", time.Hour)
	unrelated := write("notes.txt", 10*24*time.Hour)

	pruner := &fakePruner{n: 3}
	s := newTestScheduler(t, pruner, Options{
		Expression:    "0 * * * *",
		Retention:     7 * 24 * time.Hour,
		ScreenshotDir: dir,
	})
	s.now = func() time.Time { return now }

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Runs: 3, Screenshots: 1}, res)
	assert.Equal(t, now.Add(-7*24*time.Hour), pruner.cutoff)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, unrelated)
}

func TestRunOnceMissingScreenshotDir(t *testing.T) {
	s := newTestScheduler(t, nil, Options{
		Expression:    "0 * * * *",
		Retention:     time.Hour,
		ScreenshotDir: filepath.Join(t.TempDir(), "missing"),
	})

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res)
}

func TestRunOncePrunerError(t *testing.T) {
	s := newTestScheduler(t, &fakePruner{err: errors.New("database is locked")}, Options{Expression: "0 * * * *"})

	_, err := s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "database is locked")
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(t, nil, Options{Expression: "*/5 * * * *"})
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 1)
	s.Stop()
}
