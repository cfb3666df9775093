package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apierrors "github.com/yukikurage/project-hub-api/internal/errors"
	"github.com/yukikurage/project-hub-api/internal/permissions"
)

// PermissionHandler serves the role→capability settings.
type PermissionHandler struct {
	engine *permissions.Engine
	logger *zap.Logger
}

// NewPermissionHandler creates a new PermissionHandler.
func NewPermissionHandler(engine *permissions.Engine, logger *zap.Logger) *PermissionHandler {
	return &PermissionHandler{engine: engine, logger: logger}
}

// GetConfig handles GET /api/permissions
func (h *PermissionHandler) GetConfig(c *gin.Context) {
	cfg, err := h.engine.Snapshot()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// UpdateConfig handles PUT /api/permissions. The engine rejects non-admins.
func (h *PermissionHandler) UpdateConfig(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req struct {
		Roles permissions.RoleCapabilityMap `json:"roles" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	cfg, err := h.engine.Update(c.Request.Context(), actor, req.Roles)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Stream handles GET /api/permissions/stream, pushing every new revision
func (h *PermissionHandler) Stream(c *gin.Context) {
	updates, cancel := h.engine.Watch()
	defer cancel()

	streamEvents(c, h.logger, "permissions", nil, updates, func(cfg permissions.Config) (any, error) {
		return cfg, nil
	})
}

// MyCapabilities handles GET /api/me/permissions
func (h *PermissionHandler) MyCapabilities(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	caps, err := h.engine.Capabilities(actor.Role)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"role":         actor.Role,
		"capabilities": caps,
	})
}
