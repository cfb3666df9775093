package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	apierrors "github.com/yukikurage/project-hub-api/internal/errors"
	"github.com/yukikurage/project-hub-api/internal/permissions"
)

// Authorizer answers capability checks. *permissions.Engine implements it.
type Authorizer interface {
	Authorize(role permissions.Role, capability permissions.Capability) error
}

// RequireCapability aborts unless the caller's role holds capability.
// Must run after RequireAuth.
func RequireCapability(checker Authorizer, capability permissions.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			apierrors.Unauthorized(c, "")
			return
		}

		err := checker.Authorize(actor.Role, capability)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, permissions.ErrUnavailable):
			apierrors.ServiceUnavailable(c, "Permissions are not loaded yet")
		default:
			apierrors.InsufficientPermissions(c, "")
		}
	}
}
