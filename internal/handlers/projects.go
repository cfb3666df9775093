package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yukikurage/project-hub-api/internal/dto"
	apierrors "github.com/yukikurage/project-hub-api/internal/errors"
	"github.com/yukikurage/project-hub-api/internal/middleware"
	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/services"
)

// ProjectHandler serves projects and their membership.
type ProjectHandler struct {
	projectService *services.ProjectService
	logger         *zap.Logger
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(projectService *services.ProjectService, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projectService: projectService, logger: logger}
}

// ListProjects handles GET /api/projects
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	projects, err := h.projectService.ListProjects(actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": dto.ToProjectDTOs(projects)})
}

// CreateProject handles POST /api/projects
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req struct {
		Name        string          `json:"name" binding:"required,max=255"`
		Description string          `json:"description"`
		Priority    models.Priority `json:"priority"`
		Deadline    *flexTime       `json:"deadline"`
		MemberIDs   []uint64        `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	project, err := h.projectService.CreateProject(actor, services.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
		Deadline:    req.Deadline.Time(),
		MemberIDs:   req.MemberIDs,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, dto.ToProjectDTO(*project))
}

// GetProject handles GET /api/projects/:id. The project is loaded by RequireProjectAccess.
func (h *ProjectHandler) GetProject(c *gin.Context) {
	project, ok := middleware.GetProject(c)
	if !ok {
		apierrors.InternalError(c, "Project not found in context")
		return
	}
	c.JSON(http.StatusOK, dto.ToProjectDTO(*project))
}

// UpdateProject handles PATCH /api/projects/:id
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	projectID, ok := parseIDParam(c, "id", "Invalid project ID")
	if !ok {
		return
	}

	var req struct {
		Name        *string            `json:"name" binding:"omitempty,max=255"`
		Description *string            `json:"description"`
		Priority    *models.Priority   `json:"priority"`
		Deadline    optional[flexTime] `json:"deadline"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	project, err := h.projectService.UpdateProject(actor, projectID, services.UpdateProjectInput{
		Name:          req.Name,
		Description:   req.Description,
		Priority:      req.Priority,
		Deadline:      req.Deadline.Value.Time(),
		ClearDeadline: req.Deadline.Set && req.Deadline.Value == nil,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToProjectDTO(*project))
}

// ChangeStatus handles PUT /api/projects/:id/status
func (h *ProjectHandler) ChangeStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	projectID, ok := parseIDParam(c, "id", "Invalid project ID")
	if !ok {
		return
	}

	var req struct {
		Status models.ProjectStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	project, err := h.projectService.ChangeStatus(actor, projectID, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToProjectDTO(*project))
}

// SetMembers handles PUT /api/projects/:id/members
func (h *ProjectHandler) SetMembers(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	projectID, ok := parseIDParam(c, "id", "Invalid project ID")
	if !ok {
		return
	}

	var req struct {
		MemberIDs []uint64 `json:"member_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	project, err := h.projectService.SetMembers(actor, projectID, req.MemberIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToProjectDTO(*project))
}

// DeleteProject handles DELETE /api/projects/:id
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	projectID, ok := parseIDParam(c, "id", "Invalid project ID")
	if !ok {
		return
	}

	if err := h.projectService.DeleteProject(actor, projectID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
