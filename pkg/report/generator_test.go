package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/report-generator/pkg/mail"
	"github.com/yourusername/report-generator/pkg/model"
	"github.com/yourusername/report-generator/pkg/monitoring"
	"github.com/yourusername/report-generator/pkg/render"
	"github.com/yourusername/report-generator/pkg/timerange"
)

type fakeRenderer struct {
	jobs []render.Job
	err  error
}

func (f *fakeRenderer) Render(_ context.Context, job render.Job) (render.Artifact, error) {
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return render.Artifact{}, f.err
	}
	var data []byte
	if job.Format != model.FormatCache {
		data = []byte("artifact")
	}
	return render.Artifact{Data: data, Format: job.Format, EmailURL: "http://web/dashboards/view?from=1&to=2", DataReady: true}, nil
}

type fakeSender struct {
	details     []model.EmailDetails
	attachments []mail.Attachment
	err         error
}

func (f *fakeSender) Send(details model.EmailDetails, att mail.Attachment) error {
	f.details = append(f.details, details)
	f.attachments = append(f.attachments, att)
	return f.err
}

type fakeRuns struct {
	created []*model.Run
	updated []model.Run
}

func (f *fakeRuns) CreateRun(_ context.Context, run *model.Run) error {
	run.ID = int64(len(f.created) + 1)
	f.created = append(f.created, run)
	return nil
}

func (f *fakeRuns) UpdateRun(_ context.Context, run *model.Run) error {
	f.updated = append(f.updated, *run)
	return nil
}

type fixture struct {
	gen      *Generator
	renderer *fakeRenderer
	sender   *fakeSender
	runs     *fakeRuns
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	f := &fixture{renderer: &fakeRenderer{}, sender: &fakeSender{}, runs: &fakeRuns{}}
	f.gen = NewGenerator(f.renderer, f.sender, f.runs, Settings{
		WebURL:         "http://localhost:5080/web",
		AllowedDomains: []string{"example.com"},
	}, logger, monitoring.NewMetrics("report-generator", prometheus.NewRegistry()))
	f.gen.now = func() time.Time { return time.UnixMicro(1_000_000_000) }
	return f
}

func pdfReport(recipients ...string) model.Report {
	return model.Report{
		Dashboards: []model.ReportDashboard{{
			Dashboard:   "dash1",
			Folder:      "default",
			Tabs:        []string{"tab1"},
			TimeRange:   model.RelativeRange{Period: "1h"},
			Format:      model.FormatPDF,
			Disposition: model.DispositionStandard,
		}},
		EmailDetails: model.EmailDetails{
			Recipients: recipients,
			Title:      "Weekly",
			Message:    "hello",
		},
	}
}

func TestSendEmailsReport(t *testing.T) {
	f := newFixture(t)

	res, err := f.gen.Send(context.Background(), SendRequest{OrgID: "default", ReportName: "weekly", Report: pdfReport("a@example.com")})
	require.NoError(t, err)

	assert.Equal(t, monitoring.OutcomeEmailed, res.Outcome)
	assert.Equal(t, int64(1), res.RunID)

	require.Len(t, f.renderer.jobs, 1)
	job := f.renderer.jobs[0]
	assert.Equal(t, "http://localhost:5080/web", job.WebURL)
	assert.Equal(t, DefaultTimezone, job.Timezone)
	assert.Equal(t, model.FormatPDF, job.Format)
	assert.Equal(t, "period=1h", job.Window.SessionQuery)

	require.Len(t, f.sender.details, 1)
	assert.Equal(t, "http://web/dashboards/view?from=1&to=2", f.sender.details[0].DashboardURL)
	assert.Equal(t, []byte("artifact"), f.sender.attachments[0].Data)

	require.Len(t, f.runs.updated, 1)
	run := f.runs.updated[0]
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.True(t, run.EmailSent)
	assert.Equal(t, int64(8), run.Bytes)
	assert.Len(t, run.Checksum, 64)
}

func TestSendWithoutRecipientsWarmsCache(t *testing.T) {
	f := newFixture(t)
	report := pdfReport()
	report.EmailDetails.DashboardURL = "https://o2.example/web"
	report.Dashboards[0].Disposition = model.DispositionInline

	res, err := f.gen.Send(context.Background(), SendRequest{OrgID: "default", ReportName: "weekly", Timezone: "UTC", Report: report})
	require.NoError(t, err)

	assert.Equal(t, monitoring.OutcomeCached, res.Outcome)
	assert.Empty(t, f.sender.details)
	require.Len(t, f.renderer.jobs, 1)
	assert.Equal(t, model.FormatCache, f.renderer.jobs[0].Format)
	assert.Equal(t, "https://o2.example/web", f.renderer.jobs[0].WebURL)
	assert.Equal(t, "UTC", f.renderer.jobs[0].Timezone)
	assert.Equal(t, model.RunStatusCached, f.runs.updated[0].Status)
}

func TestSendValidationNeverRenders(t *testing.T) {
	tests := []struct {
		name   string
		report func() model.Report
		target error
	}{
		{"no dashboards", func() model.Report { return model.Report{} }, model.ErrNoDashboards},
		{"no tabs", func() model.Report {
			r := pdfReport("a@example.com")
			r.Dashboards[0].Tabs = nil
			return r
		}, model.ErrNoTabs},
		{"pdf inline", func() model.Report {
			r := pdfReport("a@example.com")
			r.Dashboards[0].Disposition = model.DispositionInline
			return r
		}, model.ErrIncompatibleDisposition},
		{"pdf inline without recipients", func() model.Report {
			r := pdfReport()
			r.Dashboards[0].Disposition = model.DispositionInline
			return r
		}, model.ErrIncompatibleDisposition},
		{"domain", func() model.Report { return pdfReport("a@evil.test") }, model.ErrDomainNotAllowed},
		{"bad period", func() model.Report {
			r := pdfReport("a@example.com")
			r.Dashboards[0].TimeRange = model.RelativeRange{Period: "xh"}
			return r
		}, timerange.ErrInvalidPeriod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.gen.Send(context.Background(), SendRequest{OrgID: "default", Report: tt.report()})
			require.Error(t, err)

			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, model.KindValidation, model.KindOf(err))
			assert.Empty(t, f.renderer.jobs)
			assert.Empty(t, f.runs.created)
		})
	}
}

func TestSendRenderFailure(t *testing.T) {
	f := newFixture(t)
	f.renderer.err = model.NewError(model.KindLogin, "dash1", "http://web/login", errors.New("element not found"))

	_, err := f.gen.Send(context.Background(), SendRequest{OrgID: "default", Report: pdfReport("a@example.com")})
	require.Error(t, err)

	assert.Equal(t, model.KindLogin, model.KindOf(err))
	assert.Empty(t, f.sender.details)
	require.Len(t, f.runs.updated, 1)
	assert.Equal(t, model.RunStatusFailed, f.runs.updated[0].Status)
	assert.Contains(t, f.runs.updated[0].ErrorText, "http://web/login")
}

func TestSendEmailFailure(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("dial tcp: connection refused")

	_, err := f.gen.Send(context.Background(), SendRequest{OrgID: "default", Report: pdfReport("a@example.com")})
	require.Error(t, err)

	assert.Equal(t, model.KindEmailSend, model.KindOf(err))
	assert.Len(t, f.renderer.jobs, 1, "artifact is not regenerated")
	assert.Equal(t, model.RunStatusFailed, f.runs.updated[0].Status)
}

func TestSendSurvivesCanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.gen.Send(ctx, SendRequest{OrgID: "default", Report: pdfReport("a@example.com")})
	require.NoError(t, err)
	assert.Equal(t, monitoring.OutcomeEmailed, res.Outcome)
}

func TestSendWithoutRunStore(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	gen := NewGenerator(&fakeRenderer{}, &fakeSender{}, nil, Settings{WebURL: "http://web"}, logger, nil)

	res, err := gen.Send(context.Background(), SendRequest{OrgID: "default", Report: pdfReport("a@example.com")})
	require.NoError(t, err)
	assert.Zero(t, res.RunID)
}
