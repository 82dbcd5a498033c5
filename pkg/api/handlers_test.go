package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/report-generator/pkg/model"
	"github.com/yourusername/report-generator/pkg/monitoring"
	"github.com/yourusername/report-generator/pkg/report"
)

type fakeSender struct {
	requests []report.SendRequest
	result   report.Result
	err      error
	panics   bool
}

func (f *fakeSender) Send(_ context.Context, req report.SendRequest) (report.Result, error) {
	if f.panics {
		panic("boom")
	}
	f.requests = append(f.requests, req)
	return f.result, f.err
}

type fakeRuns struct {
	runs  []*model.Run
	limit int
}

func (f *fakeRuns) ListRuns(_ context.Context, _, _ string, limit int) ([]*model.Run, error) {
	f.limit = limit
	return f.runs, nil
}

const sendBody = `{
	"dashboards": [{
		"dashboard": "dash1",
		"folder": "default",
		"tabs": ["tab1"],
		"variables": [{"key": "region", "value": "eu"}],
		"timerange": {"type": "relative", "period": "30m"},
		"report_type": "png",
		"email_attachment_type": "inline"
	}],
	"email_details": {
		"recipients": ["a@example.com"],
		"title": "Weekly",
		"name": "weekly",
		"message": "hi",
		"dashb_url": "https://o2.example/web"
	}
}`

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(sender Sender, runs RunLister) *gin.Engine {
	logger, _ := logtest.NewNullLogger()
	metrics := monitoring.NewMetrics("report-generator", prometheus.NewRegistry())
	h := NewHandler(sender, runs, metrics, logger)
	return SetupRouter(h, metrics, logger)
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthz(t *testing.T) {
	w := do(newTestRouter(&fakeSender{}, nil), http.MethodGet, "/api/healthz", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Server up and running", w.Body.String())
	_, err := uuid.Parse(w.Header().Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestSendEmailed(t *testing.T) {
	sender := &fakeSender{result: report.Result{Outcome: monitoring.OutcomeEmailed}}
	w := do(newTestRouter(sender, nil), http.MethodPut, "/api/default/reports/weekly/send?timezone=UTC", sendBody)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, Response{Code: 200, Message: "report sent to emails successfully"}, decode(t, w))

	require.Len(t, sender.requests, 1)
	req := sender.requests[0]
	assert.Equal(t, "default", req.OrgID)
	assert.Equal(t, "weekly", req.ReportName)
	assert.Equal(t, "UTC", req.Timezone)
	d := req.Report.Dashboards[0]
	assert.Equal(t, model.FormatPNG, d.Format)
	assert.Equal(t, model.DispositionInline, d.Disposition)
	assert.Equal(t, model.RelativeRange{Period: "30m"}, d.TimeRange)
	assert.Equal(t, "https://o2.example/web", req.Report.EmailDetails.DashboardURL)
}

func TestSendCachedDefaultsTimezone(t *testing.T) {
	sender := &fakeSender{result: report.Result{Outcome: monitoring.OutcomeCached}}
	w := do(newTestRouter(sender, nil), http.MethodPut, "/api/default/reports/weekly/send", sendBody)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dashboard data cached by report weekly", decode(t, w).Message)
	assert.Equal(t, report.DefaultTimezone, sender.requests[0].Timezone)
}

func TestSendErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no dashboards", model.NewError(model.KindValidation, "", "", model.ErrNoDashboards), http.StatusBadRequest},
		{"domain", model.NewError(model.KindValidation, "d", "", model.ErrDomainNotAllowed), http.StatusBadRequest},
		{"pdf inline", model.NewError(model.KindValidation, "d", "", model.ErrIncompatibleDisposition), http.StatusConflict},
		{"login", model.NewError(model.KindLogin, "d", "http://web/login", errors.New("timeout")), http.StatusInternalServerError},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(newTestRouter(&fakeSender{err: tt.err}, nil), http.MethodPut, "/api/default/reports/weekly/send", sendBody)

			assert.Equal(t, tt.want, w.Code)
			resp := decode(t, w)
			assert.Equal(t, tt.want, resp.Code)
			assert.Equal(t, tt.err.Error(), resp.Message)
		})
	}
}

func TestSendRejectsMalformedBody(t *testing.T) {
	sender := &fakeSender{}
	body := strings.Replace(sendBody, `"report_type": "png"`, `"report_type": "docx"`, 1)
	w := do(newTestRouter(sender, nil), http.MethodPut, "/api/default/reports/weekly/send", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, sender.requests)
}

func TestPanicIsRecovered(t *testing.T) {
	w := do(newTestRouter(&fakeSender{panics: true}, nil), http.MethodPut, "/api/default/reports/weekly/send", sendBody)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, http.StatusInternalServerError, decode(t, w).Code)
}

func TestListRuns(t *testing.T) {
	runs := &fakeRuns{runs: []*model.Run{{ID: 7, OrgID: "default", ReportName: "weekly", Status: model.RunStatusCompleted, StartedAt: time.Unix(0, 0).UTC()}}}
	r := newTestRouter(&fakeSender{}, runs)

	w := do(r, http.MethodGet, "/api/default/reports/weekly/runs?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, runs.limit)

	var got []model.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)

	w = do(r, http.MethodGet, "/api/default/reports/weekly/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRunsDisabled(t *testing.T) {
	w := do(newTestRouter(&fakeSender{}, nil), http.MethodGet, "/api/default/reports/weekly/runs", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(&fakeSender{}, nil)
	do(r, http.MethodGet, "/api/healthz", "")

	w := do(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "report_generator_http_requests_total")
}
