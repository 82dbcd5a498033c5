package render

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/report-generator/pkg/config"
	"github.com/yourusername/report-generator/pkg/model"
)

// LaunchOptions are the per-request parts of a browser launch
type LaunchOptions struct {
	Dimensions model.Dimensions
}

// Driver launches browser instances
type Driver interface {
	// Launch starts a browser sized to opts.Dimensions
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)

	// Name returns the name of the backend
	Name() string
}

// Browser is one running browser process
type Browser interface {
	// NewPage opens a tab and waits for url to load
	NewPage(url string) (Page, error)

	// Drain consumes the browser event stream until it ends or ctx is done
	Drain(ctx context.Context) error

	// Close asks the browser to exit
	Close() error

	// Wait blocks until the browser process has exited or ctx is done
	Wait(ctx context.Context) error

	// Kill forcefully terminates the browser process
	Kill() error
}

// Page is a browser tab
type Page interface {
	URL() string
	Navigate(url string) error
	WaitNavigation() error

	// Find waits for selector, bounded by the driver's element timeout
	Find(selector string) (Element, error)

	// Has reports whether selector matches right now, without waiting
	Has(selector string) (bool, error)

	PDF(landscape bool) ([]byte, error)
	Screenshot() ([]byte, error)
}

// Element is a DOM element handle
type Element interface {
	Click() error
	Type(text string) error
	// Submit presses Enter on the element
	Submit() error
}

// NewDriver creates the driver selected by cfg.Chrome.Backend
func NewDriver(cfg *config.Config, log logrus.FieldLogger) (Driver, error) {
	elementTimeout := cfg.ElementTimeout()
	if elementTimeout <= 0 {
		elementTimeout = 30 * time.Second
	}

	switch cfg.Chrome.Backend {
	case "", "chromium":
		return NewChromiumDriver(cfg.Chrome, elementTimeout, log), nil
	case "playwright":
		return NewPlaywrightDriver(cfg.Chrome, elementTimeout, log), nil
	default:
		return nil, fmt.Errorf("unknown rendering backend %q", cfg.Chrome.Backend)
	}
}
