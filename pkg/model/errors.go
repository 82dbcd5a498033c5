package model

import (
	"errors"
	"fmt"
)

// Kind classifies a report failure
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindBrowserLaunch
	KindLogin
	KindNavigation
	KindRenderNotReady
	KindCapture
	KindEmailSend
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBrowserLaunch:
		return "browser_launch"
	case KindLogin:
		return "login"
	case KindNavigation:
		return "navigation"
	case KindRenderNotReady:
		return "render_not_ready"
	case KindCapture:
		return "capture"
	case KindEmailSend:
		return "email_send"
	default:
		return "unknown"
	}
}

// Validation failures
var (
	ErrNoDashboards            = errors.New("at least one dashboard is required")
	ErrNoTabs                  = errors.New("at least one tab is required")
	ErrIncompatibleDisposition = errors.New("inline attachments are only supported for png reports")
	ErrDomainNotAllowed        = errors.New("recipient domain is not allowed")
)

// Error is a classified report failure. URL is the last known page location
// when the failure happened inside a browser session.
type Error struct {
	Kind      Kind
	Dashboard string
	URL       string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[REPORT] %s error", e.Kind)
	if e.Dashboard != "" {
		msg += " for dashboard " + e.Dashboard
	}
	if e.URL != "" {
		msg += " at " + e.URL
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind
func NewError(kind Kind, dashboard, url string, err error) *Error {
	return &Error{Kind: kind, Dashboard: dashboard, URL: url, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
