package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/report-generator/pkg/model"
	"github.com/yourusername/report-generator/pkg/monitoring"
	"github.com/yourusername/report-generator/pkg/timerange"
)

// Selectors of the target web application
const (
	emailInputSelector    = "input[type='email']"
	passwordInputSelector = "input[type='password']"
	dataLoadedSelector    = "span#dashboardVariablesAndPanelsDataLoaded"
	mainSelector          = "main"
	displaySelector       = "div.displayDiv"
)

// ErrDataLoadTimeout means the data-ready marker never appeared. It is not
// fatal: the dashboard is captured as it is.
var ErrDataLoadTimeout = errors.New("dashboard data did not finish loading in time")

var errRenderNotReady = errors.New("dashboard layout not found on page")

// State is the position of a render in the navigation sequence
type State int

const (
	StateInit State = iota
	StateLoggedIn
	StateOrgSelected
	StateDashboardLoaded
	StateDataReady
	StateCaptured
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateLoggedIn:
		return "logged_in"
	case StateOrgSelected:
		return "org_selected"
	case StateDashboardLoaded:
		return "dashboard_loaded"
	case StateDataReady:
		return "data_ready"
	case StateCaptured:
		return "captured"
	case StateClosed:
		return "closed"
	default:
		return "failed"
	}
}

// Credentials of the service account used to log in
type Credentials struct {
	Email    string
	Password string
}

// Options tune the navigation sequence
type Options struct {
	Credentials     Credentials
	DataLoadTimeout time.Duration
	PollInterval    time.Duration
	LoginSettle     time.Duration
	OrgSettle       time.Duration

	// SaveScreenshots enables diagnostic screenshots under ScreenshotDir
	SaveScreenshots bool
	ScreenshotDir   string
}

// DefaultOptions returns the timings the web app needs in practice
func DefaultOptions() Options {
	return Options{
		DataLoadTimeout: 20 * time.Second,
		PollInterval:    time.Second,
		LoginSettle:     5 * time.Second,
		OrgSettle:       2 * time.Second,
	}
}

// Job is one dashboard to render
type Job struct {
	OrgID     string
	WebURL    string
	Dashboard model.ReportDashboard
	Format    model.ArtifactFormat
	Timezone  string
	Window    timerange.Window
}

// Artifact is the result of a render
type Artifact struct {
	Data     []byte
	Format   model.ArtifactFormat
	EmailURL string
	// DataReady is false when the capture happened after a data-load timeout
	DataReady bool
}

// Renderer drives a browser session through login, org selection and
// dashboard load, then captures the result.
type Renderer struct {
	manager *Manager
	opts    Options
	log     logrus.FieldLogger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// NewRenderer creates a renderer
func NewRenderer(manager *Manager, opts Options, log logrus.FieldLogger, metrics *monitoring.Metrics) *Renderer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Renderer{
		manager: manager,
		opts:    opts,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// Render runs the whole navigation sequence in a fresh session. The session
// is released on every return path.
func (r *Renderer) Render(ctx context.Context, job Job) (artifact Artifact, err error) {
	log := r.log.WithFields(logrus.Fields{
		"org_id":    job.OrgID,
		"dashboard": job.Dashboard.Dashboard,
		"format":    job.Format,
	})
	start := r.now()

	session, err := r.manager.Launch(ctx, job.Dashboard.Dimensions)
	if err != nil {
		return Artifact{}, err
	}
	defer func() {
		session.Release()
		r.metrics.ObserveRender(string(job.Format), r.now().Sub(start))
		if err != nil {
			log.WithField("state", StateFailed).WithError(err).Error("[REPORT] Render failed")
		} else {
			log.WithField("state", StateClosed).Debug("[REPORT] Session closed")
		}
	}()

	nav := &navigation{r: r, job: job, log: log, browser: session.Browser}
	if err := nav.login(ctx); err != nil {
		return Artifact{}, err
	}
	if err := nav.selectOrg(ctx); err != nil {
		return Artifact{}, err
	}
	if err := nav.loadDashboard(); err != nil {
		return Artifact{}, err
	}
	ready := nav.waitForData(ctx)
	if err := nav.checkRendered(); err != nil {
		return Artifact{}, err
	}

	data, err := nav.capture()
	if err != nil {
		return Artifact{}, err
	}
	nav.transition(StateCaptured)

	return Artifact{
		Data:      data,
		Format:    job.Format,
		EmailURL:  EmailDashboardURL(job),
		DataReady: ready,
	}, nil
}

type navigation struct {
	r       *Renderer
	job     Job
	log     logrus.FieldLogger
	browser Browser
	page    Page
	state   State
}

func (n *navigation) transition(s State) {
	n.state = s
	n.log.WithField("state", s).Debug("[REPORT] State changed")
}

// currentURL is the last known page location, for error reports
func (n *navigation) currentURL(fallback string) string {
	if n.page == nil {
		return fallback
	}
	if u := n.page.URL(); u != "" {
		return u
	}
	return fallback
}

func (n *navigation) fail(kind model.Kind, fallbackURL string, err error) error {
	n.state = StateFailed
	return model.NewError(kind, n.job.Dashboard.Dashboard, n.currentURL(fallbackURL), err)
}

func (n *navigation) login(ctx context.Context) error {
	loginURL := LoginURL(n.job.WebURL)

	page, err := n.browser.NewPage(loginURL)
	if err != nil {
		return n.fail(model.KindLogin, loginURL, fmt.Errorf("failed to open login page: %w", err))
	}
	n.page = page

	if err := n.submitCredentials(); err != nil {
		n.saveDiagnostic("login")
		return n.fail(model.KindLogin, loginURL, err)
	}
	if err := n.page.WaitNavigation(); err != nil {
		n.saveDiagnostic("login")
		return n.fail(model.KindLogin, loginURL, fmt.Errorf("login navigation: %w", err))
	}
	sleep(ctx, n.r.opts.LoginSettle)

	n.transition(StateLoggedIn)
	return nil
}

func (n *navigation) submitCredentials() error {
	email, err := n.page.Find(emailInputSelector)
	if err != nil {
		return err
	}
	if err := email.Click(); err != nil {
		return fmt.Errorf("click email input: %w", err)
	}
	if err := email.Type(n.r.opts.Credentials.Email); err != nil {
		return fmt.Errorf("type email: %w", err)
	}

	password, err := n.page.Find(passwordInputSelector)
	if err != nil {
		return err
	}
	if err := password.Click(); err != nil {
		return fmt.Errorf("click password input: %w", err)
	}
	if err := password.Type(n.r.opts.Credentials.Password); err != nil {
		return fmt.Errorf("type password: %w", err)
	}
	if err := password.Submit(); err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}
	return nil
}

func (n *navigation) selectOrg(ctx context.Context) error {
	orgURL := OrgURL(n.job.WebURL, n.job.OrgID)
	if err := n.page.Navigate(orgURL); err != nil {
		n.saveDiagnostic("org")
		return n.fail(model.KindNavigation, orgURL, fmt.Errorf("open org page: %w", err))
	}
	if err := n.page.WaitNavigation(); err != nil {
		n.saveDiagnostic("org")
		return n.fail(model.KindNavigation, orgURL, fmt.Errorf("org page navigation: %w", err))
	}
	sleep(ctx, n.r.opts.OrgSettle)

	n.transition(StateOrgSelected)
	return nil
}

func (n *navigation) loadDashboard() error {
	dashURL := SessionDashboardURL(n.job)
	n.log.WithField("url", dashURL).Debug("[REPORT] Navigating to dashboard")

	if err := n.page.Navigate(dashURL); err != nil {
		n.saveDiagnostic("dashboard")
		return n.fail(model.KindNavigation, dashURL, fmt.Errorf("open dashboard: %w", err))
	}
	if err := n.page.WaitNavigation(); err != nil {
		n.saveDiagnostic("dashboard")
		return n.fail(model.KindNavigation, dashURL, fmt.Errorf("dashboard navigation: %w", err))
	}

	n.transition(StateDashboardLoaded)
	return nil
}

// waitForData polls for the data-ready marker. A timeout is logged and
// counted but still advances to DataReady; the result reports whether the
// marker was seen.
func (n *navigation) waitForData(ctx context.Context) bool {
	deadline := n.r.now().Add(n.r.opts.DataLoadTimeout)
	for {
		found, err := n.page.Has(dataLoadedSelector)
		if err == nil && found {
			n.transition(StateDataReady)
			return true
		}
		if !n.r.now().Before(deadline) || ctx.Err() != nil {
			break
		}
		sleep(ctx, n.r.opts.PollInterval)
	}

	n.r.metrics.DataLoadTimeout()
	n.log.WithField("timeout", n.r.opts.DataLoadTimeout).
		WithError(ErrDataLoadTimeout).
		Warn("[REPORT] Capturing dashboard before data finished loading")
	n.transition(StateDataReady)
	return false
}

func (n *navigation) checkRendered() error {
	for _, sel := range []string{mainSelector, displaySelector} {
		found, err := n.page.Has(sel)
		if err == nil && found {
			continue
		}
		if err == nil {
			err = fmt.Errorf("%w: %s", errRenderNotReady, sel)
		}
		n.saveDiagnostic("render")
		return n.fail(model.KindRenderNotReady, "", err)
	}
	return nil
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
