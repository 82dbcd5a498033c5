package monitoring

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Report outcomes
const (
	OutcomeEmailed = "emailed"
	OutcomeCached  = "cached"
	OutcomeFailed  = "failed"
)

// Metrics holds the Prometheus collectors of the service.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	reportsTotal     *prometheus.CounterVec
	failuresTotal    *prometheus.CounterVec
	renderDuration   *prometheus.HistogramVec
	dataLoadTimeouts prometheus.Counter
	activeSessions   prometheus.Gauge
}

// NewMetrics creates and registers the collectors on reg
func NewMetrics(serviceName string, reg *prometheus.Registry) *Metrics {
	ns := strings.ReplaceAll(serviceName, "-", "_")

	m := &Metrics{
		gatherer: reg,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: ns + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    ns + "_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		reportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: ns + "_reports_total",
				Help: "Report requests by outcome",
			},
			[]string{"outcome"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: ns + "_report_failures_total",
				Help: "Failed report requests by failure kind",
			},
			[]string{"kind"},
		),
		renderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    ns + "_render_duration_seconds",
				Help:    "Time spent in a browser session, launch to teardown",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90, 120},
			},
			[]string{"format"},
		),
		dataLoadTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: ns + "_data_load_timeouts_total",
				Help: "Dashboards captured before the data-ready marker appeared",
			},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: ns + "_browser_sessions_active",
				Help: "Browser sessions currently alive",
			},
		),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.reportsTotal,
		m.failuresTotal,
		m.renderDuration,
		m.dataLoadTimeouts,
		m.activeSessions,
	)
	return m
}

// ReportOutcome counts a finished report request
func (m *Metrics) ReportOutcome(outcome string) {
	if m == nil {
		return
	}
	m.reportsTotal.WithLabelValues(outcome).Inc()
}

// ReportFailure counts a failed report by kind
func (m *Metrics) ReportFailure(kind string) {
	if m == nil {
		return
	}
	m.reportsTotal.WithLabelValues(OutcomeFailed).Inc()
	m.failuresTotal.WithLabelValues(kind).Inc()
}

// ObserveRender records the duration of a browser session
func (m *Metrics) ObserveRender(format string, d time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.WithLabelValues(format).Observe(d.Seconds())
}

// DataLoadTimeout counts a soft data-ready timeout
func (m *Metrics) DataLoadTimeout() {
	if m == nil {
		return
	}
	m.dataLoadTimeouts.Inc()
}

// SessionStarted increments the live session gauge
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionEnded decrements the live session gauge
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// MetricsMiddleware records request count and latency per route
func (m *Metrics) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
