package render

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/report-generator/pkg/config"
)

// PlaywrightDriver launches Chromium through the Playwright driver
type PlaywrightDriver struct {
	cfg            config.Chrome
	elementTimeout time.Duration
	log            logrus.FieldLogger

	executable func() string
}

// NewPlaywrightDriver creates a driver; a system Chromium is preferred over the bundled one
func NewPlaywrightDriver(cfg config.Chrome, elementTimeout time.Duration, log logrus.FieldLogger) *PlaywrightDriver {
	d := &PlaywrightDriver{
		cfg:            cfg,
		elementTimeout: elementTimeout,
		log:            log,
	}
	d.executable = sync.OnceValue(func() string {
		if cfg.Path != "" {
			return cfg.Path
		}
		if cfg.CheckDefaultPath {
			if bin := findChromeBinary(); bin != "" {
				log.Infof("[SESSION] Using system Chromium for Playwright: %s", bin)
				return bin
			}
		}
		log.Warnf("[SESSION] No system Chromium found, Playwright will use its bundled build")
		return ""
	})
	return d
}

// Name returns the backend name
func (d *PlaywrightDriver) Name() string {
	return "playwright"
}

// Launch starts a Playwright driver process and a Chromium instance under it
func (d *PlaywrightDriver) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	runOptions := &playwright.RunOptions{
		Browsers:            []string{"chromium"},
		SkipInstallBrowsers: true,
	}
	if d.cfg.DownloadPath != "" {
		runOptions.DriverDirectory = filepath.Join(d.cfg.DownloadPath, "playwright-driver")
	}

	pw, err := playwright.Run(runOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to start Playwright: %w", err)
	}

	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(!d.cfg.WithHead),
		Args:     d.args(opts),
	}
	if bin := d.executable(); bin != "" {
		launchOptions.ExecutablePath = playwright.String(bin)
	}

	browser, err := pw.Chromium.Launch(launchOptions)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch Chromium: %w", err)
	}

	b := &pwBrowser{
		pw:             pw,
		browser:        browser,
		dims:           opts,
		elementTimeout: d.elementTimeout,
		disconnected:   make(chan struct{}),
	}
	browser.OnDisconnected(func(playwright.Browser) {
		b.disconnectOnce.Do(func() { close(b.disconnected) })
	})
	return b, nil
}

func (d *PlaywrightDriver) args(opts LaunchOptions) []string {
	var args []string
	if !d.cfg.DisableDefaultArgs {
		for _, f := range defaultFlags {
			args = append(args, "--"+string(f))
		}
	}
	if d.cfg.NoSandbox {
		args = append(args, "--no-sandbox")
	}
	args = append(args, fmt.Sprintf("--window-size=%d,%d", opts.Dimensions.Width, opts.Dimensions.Height))
	for _, arg := range d.cfg.AdditionalArgs {
		args = append(args, "--"+strings.TrimLeft(arg, "-"))
	}
	return args
}

type pwBrowser struct {
	pw             *playwright.Playwright
	browser        playwright.Browser
	dims           LaunchOptions
	elementTimeout time.Duration

	disconnected   chan struct{}
	disconnectOnce sync.Once
	stopOnce       sync.Once
	stopErr        error
}

func (b *pwBrowser) NewPage(url string) (Page, error) {
	page, err := b.browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{
			Width:  b.dims.Dimensions.Width,
			Height: b.dims.Dimensions.Height,
		},
	})
	if err != nil {
		return nil, err
	}
	page.SetDefaultTimeout(float64(b.elementTimeout.Milliseconds()))

	p := &pwPage{page: page, elementTimeout: b.elementTimeout}
	if err := p.Navigate(url); err != nil {
		return nil, err
	}
	return p, nil
}

func (b *pwBrowser) Drain(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-b.disconnected:
	}
	return nil
}

func (b *pwBrowser) Close() error {
	return b.browser.Close()
}

func (b *pwBrowser) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.stop()
		close(done)
	}()
	select {
	case <-done:
		return b.stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *pwBrowser) Kill() error {
	b.stop()
	return b.stopErr
}

// stop shuts down the driver process, which takes the browser with it
func (b *pwBrowser) stop() {
	b.stopOnce.Do(func() {
		b.stopErr = b.pw.Stop()
	})
}

type pwPage struct {
	page           playwright.Page
	elementTimeout time.Duration
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Navigate(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	return err
}

func (p *pwPage) WaitNavigation() error {
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateLoad,
	})
}

func (p *pwPage) Find(selector string) (Element, error) {
	loc := p.page.Locator(selector).First()
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(float64(p.elementTimeout.Milliseconds())),
	}); err != nil {
		return nil, fmt.Errorf("element %q: %w", selector, err)
	}
	return &pwElement{loc: loc}, nil
}

func (p *pwPage) Has(selector string) (bool, error) {
	n, err := p.page.Locator(selector).Count()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *pwPage) PDF(landscape bool) ([]byte, error) {
	return p.page.PDF(playwright.PagePdfOptions{
		Landscape:       playwright.Bool(landscape),
		PrintBackground: playwright.Bool(true),
	})
}

func (p *pwPage) Screenshot() ([]byte, error) {
	return p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
	})
}

type pwElement struct {
	loc playwright.Locator
}

func (e *pwElement) Click() error {
	return e.loc.Click()
}

func (e *pwElement) Type(text string) error {
	return e.loc.Fill(text)
}

func (e *pwElement) Submit() error {
	return e.loc.Press("Enter")
}
