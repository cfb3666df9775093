package middleware

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yukikurage/project-hub-api/internal/constants"
	apierrors "github.com/yukikurage/project-hub-api/internal/errors"
	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/services"
)

// ProjectGetter loads a project the actor may see. *services.ProjectService implements it.
type ProjectGetter interface {
	GetProject(actor permissions.Actor, projectID uint64) (*models.Project, error)
}

// RequireProjectAccess checks that the caller may see the project named by
// the :id parameter and stores it in context.
func RequireProjectAccess(projects ProjectGetter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			apierrors.BadRequest(c, "Invalid project ID")
			return
		}

		actor, ok := GetActor(c)
		if !ok {
			apierrors.Unauthorized(c, "")
			return
		}

		project, err := projects.GetProject(actor, projectID)
		if err != nil {
			// Hidden projects are reported as missing to avoid leaking their existence
			if errors.Is(err, services.ErrProjectNotFound) {
				apierrors.NotFound(c, "Project not found")
				return
			}
			logger.Error("Failed to load project", zap.Uint64("project_id", projectID), zap.Error(err))
			apierrors.InternalError(c, "")
			return
		}

		c.Set(constants.ContextKeyProject, project)
		c.Next()
	}
}

// GetProject retrieves the project stored by RequireProjectAccess
func GetProject(c *gin.Context) (*models.Project, bool) {
	v, exists := c.Get(constants.ContextKeyProject)
	if !exists {
		return nil, false
	}
	project, ok := v.(*models.Project)
	return project, ok
}
