package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/report-generator/pkg/config"
	"github.com/yourusername/report-generator/pkg/model"
)

// candidateBinaries are checked in order when no path is configured
var candidateBinaries = []string{
	"./chrome-linux64/chrome",
	"/usr/bin/google-chrome",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/snap/bin/chromium",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
}

// Flags every launch needs in a server environment unless defaults are disabled
var defaultFlags = []flags.Flag{
	"disable-dev-shm-usage",
	"disable-gpu",
	"no-first-run",
	"no-default-browser-check",
	"disable-breakpad",
}

// launchTemplate is the process-wide part of a browser launch
type launchTemplate struct {
	bin string
}

// ChromiumDriver launches Chrome through the DevTools protocol (rod)
type ChromiumDriver struct {
	cfg            config.Chrome
	elementTimeout time.Duration
	log            logrus.FieldLogger

	template func() (launchTemplate, error)
}

// NewChromiumDriver creates a driver; the browser binary is resolved on first launch
func NewChromiumDriver(cfg config.Chrome, elementTimeout time.Duration, log logrus.FieldLogger) *ChromiumDriver {
	d := &ChromiumDriver{
		cfg:            cfg,
		elementTimeout: elementTimeout,
		log:            log,
	}
	d.template = sync.OnceValues(d.resolveTemplate)
	return d
}

// Name returns the backend name
func (d *ChromiumDriver) Name() string {
	return "chromium"
}

func (d *ChromiumDriver) resolveTemplate() (launchTemplate, error) {
	if d.cfg.Path != "" {
		if _, err := os.Stat(d.cfg.Path); err != nil {
			return launchTemplate{}, fmt.Errorf("configured chrome path: %w", err)
		}
		d.log.Infof("[SESSION] Using configured Chrome binary: %s", d.cfg.Path)
		return launchTemplate{bin: d.cfg.Path}, nil
	}

	if d.cfg.CheckDefaultPath {
		if bin := findChromeBinary(); bin != "" {
			d.log.Infof("[SESSION] Auto-detected Chrome binary at: %s", bin)
			return launchTemplate{bin: bin}, nil
		}
		if bin, ok := launcher.LookPath(); ok {
			d.log.Infof("[SESSION] Found Chrome binary on PATH: %s", bin)
			return launchTemplate{bin: bin}, nil
		}
	}

	d.log.Warnf("[SESSION] No Chrome binary found, downloading into %s", d.cfg.DownloadPath)
	if err := os.MkdirAll(d.cfg.DownloadPath, 0o755); err != nil {
		return launchTemplate{}, fmt.Errorf("failed to create download dir: %w", err)
	}
	b := launcher.NewBrowser()
	b.RootDir = d.cfg.DownloadPath
	bin, err := b.Get()
	if err != nil {
		return launchTemplate{}, fmt.Errorf("failed to download chromium: %w", err)
	}
	return launchTemplate{bin: bin}, nil
}

// findChromeBinary returns the first executable candidate
func findChromeBinary() string {
	for _, path := range candidateBinaries {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Mode()&0o111 != 0 {
			return path
		}
	}
	return ""
}

// Launch starts a browser process and connects to it
func (d *ChromiumDriver) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	tmpl, err := d.template()
	if err != nil {
		return nil, err
	}

	l := d.newLauncher(tmpl, opts)

	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to launch chrome at %q: %w", tmpl.bin, err)
	}

	browserCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	browser := rod.New().ControlURL(controlURL).Context(browserCtx)
	if err := browser.Connect(); err != nil {
		cancel()
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	d.log.Debugf("[SESSION] Chrome launched, control URL: %s", controlURL)
	return &rodBrowser{
		browser:        browser,
		launcher:       l,
		cancel:         cancel,
		dims:           opts.Dimensions,
		elementTimeout: d.elementTimeout,
	}, nil
}

func (d *ChromiumDriver) newLauncher(tmpl launchTemplate, opts LaunchOptions) *launcher.Launcher {
	l := launcher.New().Bin(tmpl.bin)

	if d.cfg.DisableDefaultArgs {
		for name := range l.Flags {
			if !essentialFlag(name) {
				l.Delete(name)
			}
		}
	} else {
		for _, f := range defaultFlags {
			l.Set(f)
		}
	}

	l.Headless(!d.cfg.WithHead)
	if d.cfg.NoSandbox {
		l.NoSandbox(true)
	}
	l.Set("window-size", strconv.Itoa(opts.Dimensions.Width)+","+strconv.Itoa(opts.Dimensions.Height))

	for _, arg := range d.cfg.AdditionalArgs {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if hasValue {
			l.Set(flags.Flag(name), value)
		} else {
			l.Set(flags.Flag(name))
		}
	}
	return l
}

// essentialFlag reports whether rod needs name to drive the browser at all
func essentialFlag(name flags.Flag) bool {
	if strings.HasPrefix(string(name), "rod-") {
		return true
	}
	switch name {
	case flags.UserDataDir, flags.RemoteDebuggingPort, flags.Headless:
		return true
	}
	return false
}

type rodBrowser struct {
	browser        *rod.Browser
	launcher       *launcher.Launcher
	cancel         context.CancelFunc
	dims           model.Dimensions
	elementTimeout time.Duration
}

func (b *rodBrowser) NewPage(url string) (Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, err
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.dims.Width,
		Height:            b.dims.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, err
	}
	return &rodPage{page: page, elementTimeout: b.elementTimeout}, nil
}

func (b *rodBrowser) Drain(ctx context.Context) error {
	events := b.browser.Event()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-events:
			if !ok {
				return nil
			}
		}
	}
}

func (b *rodBrowser) Close() error {
	return b.browser.Close()
}

func (b *rodBrowser) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.launcher.Cleanup()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *rodBrowser) Kill() error {
	b.launcher.Kill()
	b.cancel()
	return nil
}

type rodPage struct {
	page           *rod.Page
	elementTimeout time.Duration
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Navigate(url string) error {
	return p.page.Navigate(url)
}

func (p *rodPage) WaitNavigation() error {
	return p.page.WaitLoad()
}

func (p *rodPage) Find(selector string) (Element, error) {
	el, err := p.page.Timeout(p.elementTimeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element %q: %w", selector, err)
	}
	return &rodElement{el: el.CancelTimeout()}, nil
}

func (p *rodPage) Has(selector string) (bool, error) {
	has, _, err := p.page.Has(selector)
	return has, err
}

func (p *rodPage) PDF(landscape bool) ([]byte, error) {
	r, err := p.page.PDF(&proto.PagePrintToPDF{
		Landscape:       landscape,
		PrintBackground: true,
	})
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func (p *rodPage) Screenshot() ([]byte, error) {
	return p.page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Type(text string) error {
	return e.el.Input(text)
}

func (e *rodElement) Submit() error {
	return e.el.Type(input.Enter)
}
