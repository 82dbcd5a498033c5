// Package report runs a send request end to end: validation, time range
// resolution, rendering and delivery.
package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/report-generator/pkg/mail"
	"github.com/yourusername/report-generator/pkg/model"
	"github.com/yourusername/report-generator/pkg/monitoring"
	"github.com/yourusername/report-generator/pkg/render"
	"github.com/yourusername/report-generator/pkg/timerange"
)

// DefaultTimezone is used when a request names none
const DefaultTimezone = "Europe/London"

// Renderer produces an artifact for one dashboard
type Renderer interface {
	Render(ctx context.Context, job render.Job) (render.Artifact, error)
}

// Sender delivers a rendered report by email
type Sender interface {
	Send(details model.EmailDetails, att mail.Attachment) error
}

// RunStore records run history
type RunStore interface {
	CreateRun(ctx context.Context, run *model.Run) error
	UpdateRun(ctx context.Context, run *model.Run) error
}

// Settings are the process-wide inputs of the generator
type Settings struct {
	WebURL         string
	AllowedDomains []string
}

// SendRequest is one report send
type SendRequest struct {
	OrgID      string
	ReportName string
	Timezone   string
	Report     model.Report
}

// Result describes a successful send
type Result struct {
	Outcome   string // monitoring.OutcomeEmailed or monitoring.OutcomeCached
	RunID     int64
	Bytes     int
	EmailURL  string
	DataReady bool
}

// Generator orchestrates report sends
type Generator struct {
	renderer Renderer
	sender   Sender
	runs     RunStore
	settings Settings
	log      logrus.FieldLogger
	metrics  *monitoring.Metrics
	now      func() time.Time
}

// NewGenerator creates a generator. runs may be nil to disable run history.
func NewGenerator(renderer Renderer, sender Sender, runs RunStore, settings Settings, log logrus.FieldLogger, metrics *monitoring.Metrics) *Generator {
	return &Generator{
		renderer: renderer,
		sender:   sender,
		runs:     runs,
		settings: settings,
		log:      log,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Send validates req, renders its first dashboard and emails it. A report
// without recipients is only rendered, to warm the target app's cache.
// Cancellation of ctx does not abort a send that has started.
func (g *Generator) Send(ctx context.Context, req SendRequest) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	log := g.log.WithFields(logrus.Fields{
		"org_id": req.OrgID,
		"report": req.ReportName,
	})

	if err := req.Report.Validate(g.settings.AllowedDomains); err != nil {
		g.metrics.ReportFailure(model.KindOf(err).String())
		log.WithError(err).Warn("[REPORT] Rejected invalid report")
		return Result{}, err
	}

	dashboard := req.Report.Dashboards[0]
	format := req.Report.EffectiveFormat()
	log = log.WithFields(logrus.Fields{"dashboard": dashboard.Dashboard, "format": format})

	tr := dashboard.TimeRange
	if tr == nil {
		tr = model.DefaultTimeRange()
	}
	window, err := timerange.Resolve(tr, g.now())
	if err != nil {
		err = model.NewError(model.KindValidation, dashboard.Dashboard, "", err)
		g.metrics.ReportFailure(model.KindValidation.String())
		return Result{}, err
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = DefaultTimezone
	}
	webURL := req.Report.EmailDetails.DashboardURL
	if webURL == "" {
		webURL = g.settings.WebURL
	}

	run := g.startRun(ctx, log, req, dashboard.Dashboard, format)

	artifact, err := g.renderer.Render(ctx, render.Job{
		OrgID:     req.OrgID,
		WebURL:    webURL,
		Dashboard: dashboard,
		Format:    format,
		Timezone:  timezone,
		Window:    window,
	})
	if err != nil {
		g.fail(ctx, log, run, err)
		return Result{}, err
	}

	result := Result{
		RunID:     run.ID,
		Bytes:     len(artifact.Data),
		EmailURL:  artifact.EmailURL,
		DataReady: artifact.DataReady,
	}

	if format == model.FormatCache {
		result.Outcome = monitoring.OutcomeCached
		g.finishRun(ctx, log, run, model.RunStatusCached, artifact.Data, false)
		g.metrics.ReportOutcome(monitoring.OutcomeCached)
		log.Info("[REPORT] Dashboard cached")
		return result, nil
	}

	details := req.Report.EmailDetails
	details.DashboardURL = artifact.EmailURL
	if err := g.sender.Send(details, mail.Attachment{
		Data:        artifact.Data,
		Format:      format,
		Disposition: dashboard.Disposition,
	}); err != nil {
		err = model.NewError(model.KindEmailSend, dashboard.Dashboard, "", err)
		g.fail(ctx, log, run, err)
		return Result{}, err
	}

	result.Outcome = monitoring.OutcomeEmailed
	g.finishRun(ctx, log, run, model.RunStatusCompleted, artifact.Data, true)
	g.metrics.ReportOutcome(monitoring.OutcomeEmailed)
	log.WithField("bytes", len(artifact.Data)).Info("[REPORT] Report emailed")
	return result, nil
}

func (g *Generator) startRun(ctx context.Context, log logrus.FieldLogger, req SendRequest, dashboard string, format model.ArtifactFormat) *model.Run {
	run := &model.Run{
		OrgID:       req.OrgID,
		ReportName:  req.ReportName,
		DashboardID: dashboard,
		Format:      format,
		Status:      model.RunStatusRunning,
		StartedAt:   g.now(),
	}
	if g.runs == nil {
		return run
	}
	if err := g.runs.CreateRun(ctx, run); err != nil {
		log.WithError(err).Warn("[STORE] Failed to record run")
	}
	return run
}

func (g *Generator) finishRun(ctx context.Context, log logrus.FieldLogger, run *model.Run, status string, data []byte, emailed bool) {
	finished := g.now()
	run.FinishedAt = &finished
	run.Status = status
	run.EmailSent = emailed
	run.Bytes = int64(len(data))
	if len(data) > 0 {
		sum := sha256.Sum256(data)
		run.Checksum = hex.EncodeToString(sum[:])
	}
	g.updateRun(ctx, log, run)
}

func (g *Generator) fail(ctx context.Context, log logrus.FieldLogger, run *model.Run, err error) {
	kind := model.KindOf(err)
	g.metrics.ReportFailure(kind.String())
	log.WithError(err).WithField("kind", kind.String()).Error("[REPORT] Report failed")

	finished := g.now()
	run.FinishedAt = &finished
	run.Status = model.RunStatusFailed
	run.ErrorText = err.Error()
	g.updateRun(ctx, log, run)
}

func (g *Generator) updateRun(ctx context.Context, log logrus.FieldLogger, run *model.Run) {
	if g.runs == nil || run.ID == 0 {
		return
	}
	if err := g.runs.UpdateRun(ctx, run); err != nil {
		log.WithError(fmt.Errorf("run %d: %w", run.ID, err)).Warn("[STORE] Failed to update run")
	}
}
