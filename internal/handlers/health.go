package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yukikurage/project-hub-api/internal/permissions"
)

// HealthHandler reports liveness and dependency state.
type HealthHandler struct {
	db     *gorm.DB
	engine *permissions.Engine
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db *gorm.DB, engine *permissions.Engine) *HealthHandler {
	return &HealthHandler{db: db, engine: engine}
}

// Health handles GET /health. It answers 503 until the database is reachable
// and the permission map is loaded.
func (h *HealthHandler) Health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":      "ok",
		"message":     "Project Hub API is running",
		"permissions": h.engine.State().String(),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = "unreachable"
	}
	if h.engine.State() != permissions.StateReady {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}

	c.JSON(status, body)
}
