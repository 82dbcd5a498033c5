// Package cron runs periodic housekeeping: pruning old run history and
// diagnostic screenshots.
package cron

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// RunPruner deletes run history older than a cutoff
type RunPruner interface {
	PruneRuns(ctx context.Context, cutoff time.Time) (int64, error)
}

// Options configure the retention job
type Options struct {
	Expression    string // 5-field cron expression
	Retention     time.Duration
	ScreenshotDir string
}

// Result summarizes one retention pass
type Result struct {
	Runs        int64
	Screenshots int
}

// Scheduler runs the retention job on a cron schedule
type Scheduler struct {
	pruner RunPruner
	opts   Options
	cron   *cron.Cron
	expr   *cronexpr.Expression
	log    logrus.FieldLogger
	now    func() time.Time

	mu      sync.Mutex
	running bool
}

// NewScheduler validates the expression and prepares the job. pruner may be
// nil when run history is disabled.
func NewScheduler(pruner RunPruner, opts Options, log logrus.FieldLogger) (*Scheduler, error) {
	expr, err := cronexpr.Parse(opts.Expression)
	if err != nil {
		return nil, fmt.Errorf("invalid retention cron expression '%s': %w", opts.Expression, err)
	}
	return &Scheduler{
		pruner: pruner,
		opts:   opts,
		cron:   cron.New(),
		expr:   expr,
		log:    log,
		now:    time.Now,
	}, nil
}

// Start registers the job and starts the cron runner
func (s *Scheduler) Start() error {
	entryID, err := s.cron.AddFunc(s.opts.Expression, s.tick)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.cron.Start()

	s.log.WithFields(logrus.Fields{
		"expression": s.opts.Expression,
		"entry_id":   entryID,
		"retention":  s.opts.Retention.String(),
		"next_run":   s.NextRun().Format(time.RFC3339),
	}).Info("[CRON] Retention scheduler started")
	return nil
}

// Stop stops the runner and waits for a running pass to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("[CRON] Retention scheduler stopped")
}

// NextRun is the next time the job fires
func (s *Scheduler) NextRun() time.Time {
	return s.expr.Next(s.now()).UTC().Truncate(time.Second)
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("[CRON] Previous retention pass still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if _, err := s.RunOnce(context.Background()); err != nil {
		s.log.WithError(err).Error("[CRON] Retention pass failed")
	}
}

// RunOnce prunes everything older than the retention window
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	cutoff := s.now().Add(-s.opts.Retention)

	if s.pruner != nil {
		n, err := s.pruner.PruneRuns(ctx, cutoff)
		if err != nil {
			return res, fmt.Errorf("prune runs: %w", err)
		}
		res.Runs = n
	}

	if s.opts.ScreenshotDir != "" {
		n, err := pruneScreenshots(s.opts.ScreenshotDir, cutoff)
		if err != nil {
			return res, fmt.Errorf("prune screenshots: %w", err)
		}
		res.Screenshots = n
	}

	s.log.WithFields(logrus.Fields{
		"runs":        res.Runs,
		"screenshots": res.Screenshots,
		"cutoff":      cutoff.UTC().Format(time.RFC3339),
		"next_run":    s.NextRun().Format(time.RFC3339),
	}).Info("[CRON] Retention pass complete")
	return res, nil
}

// pruneScreenshots removes diagnostic screenshots modified before cutoff
func pruneScreenshots(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "screenshot_") || filepath.Ext(name) != ".png" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
