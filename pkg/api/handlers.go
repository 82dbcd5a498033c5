// Package api is the HTTP front door of the report generator.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/report-generator/pkg/model"
	"github.com/yourusername/report-generator/pkg/monitoring"
	"github.com/yourusername/report-generator/pkg/report"
)

// Sender runs a report send
type Sender interface {
	Send(ctx context.Context, req report.SendRequest) (report.Result, error)
}

// RunLister reads run history
type RunLister interface {
	ListRuns(ctx context.Context, orgID, reportName string, limit int) ([]*model.Run, error)
}

// Response is the body of every JSON reply
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler serves the report API
type Handler struct {
	sender  Sender
	runs    RunLister
	metrics *monitoring.Metrics
	log     logrus.FieldLogger
}

// NewHandler creates a handler. runs may be nil when run history is disabled.
func NewHandler(sender Sender, runs RunLister, metrics *monitoring.Metrics, log logrus.FieldLogger) *Handler {
	return &Handler{sender: sender, runs: runs, metrics: metrics, log: log}
}

// RegisterRoutes mounts the API on r
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")
	api.GET("/healthz", h.handleHealthz)
	api.PUT("/:org_id/reports/:name/send", h.handleSend)
	api.GET("/:org_id/reports/:name/runs", h.handleListRuns)

	r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
}

// handleHealthz handles GET /api/healthz
func (h *Handler) handleHealthz(c *gin.Context) {
	c.String(http.StatusOK, "Server up and running")
}

// handleSend handles PUT /api/:org_id/reports/:name/send
func (h *Handler) handleSend(c *gin.Context) {
	var rep model.Report
	if err := c.ShouldBindJSON(&rep); err != nil {
		respondJSON(c, http.StatusBadRequest, fmt.Sprintf("invalid report body: %v", err))
		return
	}

	orgID := c.Param("org_id")
	name := c.Param("name")

	result, err := h.sender.Send(c.Request.Context(), report.SendRequest{
		OrgID:      orgID,
		ReportName: name,
		Timezone:   c.DefaultQuery("timezone", report.DefaultTimezone),
		Report:     rep,
	})
	if err != nil {
		respondJSON(c, statusFor(err), err.Error())
		return
	}

	if result.Outcome == monitoring.OutcomeCached {
		respondJSON(c, http.StatusOK, fmt.Sprintf("dashboard data cached by report %s", name))
		return
	}
	respondJSON(c, http.StatusOK, "report sent to emails successfully")
}

// handleListRuns handles GET /api/:org_id/reports/:name/runs
func (h *Handler) handleListRuns(c *gin.Context) {
	if h.runs == nil {
		respondJSON(c, http.StatusNotFound, "run history is disabled")
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondJSON(c, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), c.Param("org_id"), c.Param("name"), limit)
	if err != nil {
		h.log.WithError(err).Error("[STORE] Failed to list runs")
		respondJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, runs)
}

// statusFor maps a send failure to an HTTP status
func statusFor(err error) int {
	if model.KindOf(err) != model.KindValidation {
		return http.StatusInternalServerError
	}
	if errors.Is(err, model.ErrIncompatibleDisposition) {
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func respondJSON(c *gin.Context, status int, message string) {
	c.JSON(status, Response{Code: status, Message: message})
}
