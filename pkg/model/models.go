package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ArtifactFormat is the kind of artifact produced for a dashboard
type ArtifactFormat string

const (
	FormatPDF   ArtifactFormat = "pdf"
	FormatPNG   ArtifactFormat = "png"
	FormatCache ArtifactFormat = "cache" // render only, warms the target app cache
)

// Extension returns the file extension used for attachments of this format
func (f ArtifactFormat) Extension() string {
	switch f {
	case FormatPNG:
		return ".png"
	default:
		return ".pdf"
	}
}

// ContentType returns the MIME type of the artifact bytes
func (f ArtifactFormat) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	default:
		return "application/pdf"
	}
}

// AttachmentDisposition controls how the artifact is presented in the email
type AttachmentDisposition string

const (
	DispositionStandard AttachmentDisposition = "normal"
	DispositionInline   AttachmentDisposition = "inline"
)

// Report is the body of a send request
type Report struct {
	Dashboards   []ReportDashboard `json:"dashboards"`
	EmailDetails EmailDetails      `json:"email_details"`
}

// EmailDetails holds the email part of a report request.
// DashboardURL is the base web URL on input and is replaced by the
// resolved dashboard link before the email is composed.
type EmailDetails struct {
	Recipients   []string `json:"recipients"`
	Title        string   `json:"title"`
	Name         string   `json:"name"`
	Message      string   `json:"message"`
	DashboardURL string   `json:"dashb_url"`
}

// Dimensions is the browser window/viewport size used for the capture
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// OrDefault returns d with zero fields replaced by def
func (d Dimensions) OrDefault(def Dimensions) Dimensions {
	if d.Width <= 0 {
		d.Width = def.Width
	}
	if d.Height <= 0 {
		d.Height = def.Height
	}
	return d
}

// Variable is a single dashboard display variable
type Variable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	ID    string `json:"id,omitempty"`
}

// ReportDashboard identifies the dashboard to render and how to deliver it
type ReportDashboard struct {
	Dashboard   string                `json:"dashboard"`
	Folder      string                `json:"folder"`
	Tabs        []string              `json:"tabs"`
	Variables   []Variable            `json:"variables"`
	TimeRange   TimeRange             `json:"-"`
	Format      ArtifactFormat        `json:"report_type"`
	Disposition AttachmentDisposition `json:"email_attachment_type"`
	Dimensions  Dimensions            `json:"report_attachment_dimensions"`
}

// FirstTab returns the only tab that is rendered
func (d ReportDashboard) FirstTab() string {
	if len(d.Tabs) == 0 {
		return ""
	}
	return d.Tabs[0]
}

type reportDashboardAlias ReportDashboard

type reportDashboardJSON struct {
	reportDashboardAlias
	TimeRange *timeRangeJSON `json:"timerange,omitempty"`
}

// UnmarshalJSON decodes a dashboard, applying the defaults for format,
// disposition and time range
func (d *ReportDashboard) UnmarshalJSON(data []byte) error {
	var raw reportDashboardJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = ReportDashboard(raw.reportDashboardAlias)

	if d.Format == "" {
		d.Format = FormatPDF
	}
	if d.Disposition == "" {
		d.Disposition = DispositionStandard
	}

	switch d.Format {
	case FormatPDF, FormatPNG, FormatCache:
	default:
		return fmt.Errorf("unknown report_type %q", d.Format)
	}
	switch d.Disposition {
	case DispositionStandard, DispositionInline:
	default:
		return fmt.Errorf("unknown email_attachment_type %q", d.Disposition)
	}

	if raw.TimeRange == nil {
		d.TimeRange = DefaultTimeRange()
		return nil
	}
	tr, err := raw.TimeRange.toTimeRange()
	if err != nil {
		return err
	}
	d.TimeRange = tr
	return nil
}

// MarshalJSON encodes the dashboard with its time range in wire form
func (d ReportDashboard) MarshalJSON() ([]byte, error) {
	raw := reportDashboardJSON{reportDashboardAlias: reportDashboardAlias(d)}
	if d.TimeRange != nil {
		tr := fromTimeRange(d.TimeRange)
		raw.TimeRange = &tr
	}
	return json.Marshal(raw)
}

// TimeRange is the dashboard data window. It is either RelativeRange or
// AbsoluteRange; consumers switch on the concrete type.
type TimeRange interface {
	timeRange()
}

// RelativeRange is a period ending now, e.g. "15m" or "4w"
type RelativeRange struct {
	Period string
}

// AbsoluteRange is a fixed window in microsecond epoch timestamps
type AbsoluteRange struct {
	From int64
	To   int64
}

func (RelativeRange) timeRange() {}
func (AbsoluteRange) timeRange() {}

// DefaultTimeRange is used when a dashboard carries no time range
func DefaultTimeRange() TimeRange {
	return RelativeRange{Period: "1w"}
}

type timeRangeJSON struct {
	Type   string `json:"type"`
	Period string `json:"period,omitempty"`
	From   int64  `json:"from,omitempty"`
	To     int64  `json:"to,omitempty"`
}

func (t timeRangeJSON) toTimeRange() (TimeRange, error) {
	switch t.Type {
	case "", "relative":
		if t.Period == "" {
			return DefaultTimeRange(), nil
		}
		return RelativeRange{Period: t.Period}, nil
	case "absolute":
		return AbsoluteRange{From: t.From, To: t.To}, nil
	default:
		return nil, fmt.Errorf("unknown timerange type %q", t.Type)
	}
}

func fromTimeRange(tr TimeRange) timeRangeJSON {
	switch v := tr.(type) {
	case RelativeRange:
		return timeRangeJSON{Type: "relative", Period: v.Period}
	case AbsoluteRange:
		return timeRangeJSON{Type: "absolute", From: v.From, To: v.To}
	default:
		panic(fmt.Sprintf("unhandled time range %T", tr))
	}
}

// Run status values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusCached    = "cached"
	RunStatusFailed    = "failed"
)

// Run records one send request
type Run struct {
	ID          int64          `json:"id"`
	OrgID       string         `json:"org_id"`
	ReportName  string         `json:"report_name"`
	DashboardID string         `json:"dashboard_id"`
	Format      ArtifactFormat `json:"format"`
	Status      string         `json:"status"`
	EmailSent   bool           `json:"email_sent"`
	ErrorText   string         `json:"error_text,omitempty"`
	Bytes       int64          `json:"bytes"`
	Checksum    string         `json:"checksum,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}
