package handlers

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yukikurage/project-hub-api/internal/constants"
	apierrors "github.com/yukikurage/project-hub-api/internal/errors"
	"github.com/yukikurage/project-hub-api/internal/middleware"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/sequence"
	"github.com/yukikurage/project-hub-api/internal/services"
)

// respondError maps domain errors to API errors. Unknown errors are logged and reported as 500.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var invalidMap *permissions.InvalidMapError
	switch {
	// Authorization
	case errors.Is(err, permissions.ErrUnauthorized):
		apierrors.InsufficientPermissions(c, "Only admins can perform this action")
	case errors.Is(err, permissions.ErrForbidden):
		apierrors.InsufficientPermissions(c, "")
	case errors.Is(err, services.ErrNotProjectMember):
		apierrors.Forbidden(c, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		apierrors.InvalidCredentials(c, err.Error())

	// Not found
	case errors.Is(err, services.ErrProjectNotFound),
		errors.Is(err, services.ErrTaskNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrNoteNotFound):
		apierrors.NotFound(c, err.Error())

	// Conflicts
	case errors.Is(err, services.ErrEmailTaken):
		apierrors.AlreadyExists(c, err.Error())
	case errors.Is(err, sequence.ErrConflict):
		apierrors.Conflict(c, "Task numbering is busy, please retry")

	// Validation
	case errors.Is(err, services.ErrPasswordTooShort):
		apierrors.BadRequest(c, fmt.Sprintf("Password must be at least %d characters", constants.MinPasswordLength))
	case errors.As(err, &invalidMap):
		apierrors.BadRequestWithDetails(c, permissions.ErrInvalidMap.Error(), invalidMap.Problems)
	case errors.Is(err, permissions.ErrInvalidMap),
		errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrNameRequired),
		errors.Is(err, services.ErrInvalidProjectName),
		errors.Is(err, services.ErrInvalidProjectStatus),
		errors.Is(err, services.ErrInvalidPriority),
		errors.Is(err, services.ErrInvalidMembers),
		errors.Is(err, services.ErrInvalidRole),
		errors.Is(err, services.ErrCannotDeleteYourself),
		errors.Is(err, services.ErrTitleRequired),
		errors.Is(err, services.ErrTitleEmpty),
		errors.Is(err, services.ErrInvalidTaskStatus),
		errors.Is(err, services.ErrInvalidTaskAssignee),
		errors.Is(err, services.ErrTextRequired),
		errors.Is(err, services.ErrMessageEmpty),
		errors.Is(err, services.ErrMessageTooLong):
		apierrors.BadRequest(c, err.Error())

	// Unavailable dependencies
	case errors.Is(err, permissions.ErrUnavailable):
		apierrors.ServiceUnavailable(c, "Permissions are not loaded yet")
	case errors.Is(err, permissions.ErrStoreUnavailable),
		errors.Is(err, sequence.ErrStoreUnavailable):
		logger.Error("Store unavailable", zap.String("request_id", middleware.GetRequestID(c)), zap.Error(err))
		apierrors.ServiceUnavailable(c, "")
	case errors.Is(err, services.ErrAIServiceNotConfigured):
		apierrors.ServiceUnavailable(c, err.Error())
	case errors.Is(err, services.ErrAINoTasksGenerated),
		errors.Is(err, services.ErrAINoValidTasks):
		apierrors.InternalError(c, err.Error())

	default:
		logger.Error("Unhandled error",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		apierrors.InternalError(c, "")
	}
}

// currentActor returns the authenticated caller or responds 401
func currentActor(c *gin.Context) (permissions.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		apierrors.Unauthorized(c, "Not authenticated")
	}
	return actor, ok
}
