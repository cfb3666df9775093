package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yukikurage/project-hub-api/internal/dto"
	"github.com/yukikurage/project-hub-api/internal/services"
)

// ReportHandler serves dashboards and reports.
type ReportHandler struct {
	reportService *services.ReportService
	logger        *zap.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reportService *services.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reportService: reportService, logger: logger}
}

// Dashboard handles GET /api/reports/dashboard
func (h *ReportHandler) Dashboard(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	metrics, err := h.reportService.Dashboard(actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scope":               metrics.Scope,
		"active_projects":     metrics.ActiveProjects,
		"completed_tasks":     metrics.CompletedTasks,
		"in_progress_tasks":   metrics.InProgressTasks,
		"high_priority_tasks": metrics.HighPriorityTasks,
		"upcoming":            dto.ToTaskDTOs(metrics.Upcoming),
	})
}

// Tracker handles GET /api/reports/tracker
func (h *ReportHandler) Tracker(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	report, err := h.reportService.Tracker(c.Request.Context(), actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Workload handles GET /api/reports/workload
func (h *ReportHandler) Workload(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	workload, err := h.reportService.Workload(actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": workload})
}
