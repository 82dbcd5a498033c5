package render

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/report-generator/pkg/model"
	"github.com/yourusername/report-generator/pkg/monitoring"
)

const defaultCloseGrace = 5 * time.Second

// Manager hands out one browser session per request. Sessions are never
// shared or pooled.
type Manager struct {
	driver     Driver
	defaults   model.Dimensions
	closeGrace time.Duration
	log        logrus.FieldLogger
	metrics    *monitoring.Metrics
}

// NewManager creates a session manager. defaults is used when a request
// carries no dimensions.
func NewManager(driver Driver, defaults model.Dimensions, log logrus.FieldLogger, metrics *monitoring.Metrics) *Manager {
	return &Manager{
		driver:     driver,
		defaults:   defaults,
		closeGrace: defaultCloseGrace,
		log:        log,
		metrics:    metrics,
	}
}

// Session is a live browser plus the task draining its event stream
type Session struct {
	Browser Browser

	cancel      context.CancelFunc
	drain       *errgroup.Group
	closeGrace  time.Duration
	log         logrus.FieldLogger
	metrics     *monitoring.Metrics
	releaseOnce sync.Once
}

// Launch starts a browser sized to dims. The caller must defer Release on
// the returned session immediately.
func (m *Manager) Launch(ctx context.Context, dims model.Dimensions) (*Session, error) {
	opts := LaunchOptions{Dimensions: dims.OrDefault(m.defaults)}

	m.log.WithFields(logrus.Fields{
		"backend": m.driver.Name(),
		"width":   opts.Dimensions.Width,
		"height":  opts.Dimensions.Height,
	}).Debug("[SESSION] Launching browser")

	browser, err := m.driver.Launch(ctx, opts)
	if err != nil {
		return nil, model.NewError(model.KindBrowserLaunch, "", "", err)
	}

	drainCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, drainCtx := errgroup.WithContext(drainCtx)
	g.Go(func() error {
		return browser.Drain(drainCtx)
	})

	m.metrics.SessionStarted()
	return &Session{
		Browser:    browser,
		cancel:     cancel,
		drain:      g,
		closeGrace: m.closeGrace,
		log:        m.log,
		metrics:    m.metrics,
	}, nil
}

// Release tears the session down: close, wait up to the grace period, kill,
// stop the drain task and join it. It is safe to call more than once.
// Errors are logged, not returned.
func (s *Session) Release() {
	s.releaseOnce.Do(func() {
		if err := s.Browser.Close(); err != nil {
			s.log.WithError(err).Debug("[SESSION] Browser close failed")
		}

		waitCtx, cancelWait := context.WithTimeout(context.Background(), s.closeGrace)
		if err := s.Browser.Wait(waitCtx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				s.log.Warn("[SESSION] Browser did not exit within grace period, killing")
			} else {
				s.log.WithError(err).Debug("[SESSION] Browser wait failed")
			}
		}
		cancelWait()

		if err := s.Browser.Kill(); err != nil {
			s.log.WithError(err).Debug("[SESSION] Browser kill failed")
		}

		s.cancel()
		if err := s.drain.Wait(); err != nil {
			s.log.WithError(err).Warn("[SESSION] Event drain ended with error")
		}

		s.metrics.SessionEnded()
		s.log.Debug("[SESSION] Released")
	})
}
