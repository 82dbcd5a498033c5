package render

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// fakeDriver hands out a single scripted browser
type fakeDriver struct {
	browser   *fakeBrowser
	launchErr error
	launches  atomic.Int32
	lastOpts  LaunchOptions
}

func (d *fakeDriver) Launch(_ context.Context, opts LaunchOptions) (Browser, error) {
	d.launches.Add(1)
	d.lastOpts = opts
	if d.launchErr != nil {
		return nil, d.launchErr
	}
	return d.browser, nil
}

func (d *fakeDriver) Name() string { return "fake" }

type fakeBrowser struct {
	page       *fakePage
	newPageErr error

	closes  atomic.Int32
	waits   atomic.Int32
	kills   atomic.Int32
	drained atomic.Int32
}

func (b *fakeBrowser) NewPage(url string) (Page, error) {
	if b.newPageErr != nil {
		return nil, b.newPageErr
	}
	b.page.visit(url)
	return b.page, nil
}

func (b *fakeBrowser) Drain(ctx context.Context) error {
	<-ctx.Done()
	b.drained.Add(1)
	return nil
}

func (b *fakeBrowser) Close() error {
	b.closes.Add(1)
	return nil
}

func (b *fakeBrowser) Wait(context.Context) error {
	b.waits.Add(1)
	return nil
}

func (b *fakeBrowser) Kill() error {
	b.kills.Add(1)
	return nil
}

// fakePage answers selectors from a fixed set
type fakePage struct {
	mu      sync.Mutex
	url     string
	visited []string
	present map[string]bool
	typed   []string
	submits int

	findErr        map[string]error
	navigateErr    error
	navigateErrAt  map[int]error
	waitErrAt      map[int]error
	navigations    int
	waitCalls      int
	pdfErr         error
	screenshotData []byte
	panicOnPDF     bool
	landscape      bool
	pdfCalls       int
	screenshots    int
}

func newFakePage(present ...string) *fakePage {
	p := &fakePage{
		present:       map[string]bool{},
		findErr:       map[string]error{},
		navigateErrAt: map[int]error{},
		waitErrAt:     map[int]error{},
	}
	for _, sel := range present {
		p.present[sel] = true
	}
	return p
}

// readyPage has every element the navigation sequence looks for
func readyPage() *fakePage {
	return newFakePage(emailInputSelector, passwordInputSelector, dataLoadedSelector, mainSelector, displaySelector)
}

func (p *fakePage) visit(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.visited = append(p.visited, url)
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Navigate fails every call with navigateErr, or only the nth call (1-based)
// listed in navigateErrAt
func (p *fakePage) Navigate(url string) error {
	p.navigations++
	if p.navigateErr != nil {
		return p.navigateErr
	}
	if err := p.navigateErrAt[p.navigations]; err != nil {
		return err
	}
	p.visit(url)
	return nil
}

// WaitNavigation fails the nth call listed in waitErrAt. The first call
// follows the login submit.
func (p *fakePage) WaitNavigation() error {
	p.waitCalls++
	return p.waitErrAt[p.waitCalls]
}

func (p *fakePage) Find(selector string) (Element, error) {
	if err := p.findErr[selector]; err != nil {
		return nil, err
	}
	if !p.present[selector] {
		return nil, errors.New("element not found: " + selector)
	}
	return &fakeElement{page: p}, nil
}

func (p *fakePage) Has(selector string) (bool, error) {
	return p.present[selector], nil
}

func (p *fakePage) PDF(landscape bool) ([]byte, error) {
	if p.panicOnPDF {
		panic("pdf exploded")
	}
	p.pdfCalls++
	p.landscape = landscape
	if p.pdfErr != nil {
		return nil, p.pdfErr
	}
	return []byte("%PDF-1.4 fake"), nil
}

func (p *fakePage) Screenshot() ([]byte, error) {
	p.screenshots++
	if p.screenshotData != nil {
		return p.screenshotData, nil
	}
	return []byte("\x89PNG fake"), nil
}

type fakeElement struct {
	page *fakePage
}

func (e *fakeElement) Click() error { return nil }

func (e *fakeElement) Type(text string) error {
	e.page.typed = append(e.page.typed, text)
	return nil
}

func (e *fakeElement) Submit() error {
	e.page.submits++
	return nil
}
