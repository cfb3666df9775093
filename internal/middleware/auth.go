package middleware

import (
	"errors"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yukikurage/project-hub-api/internal/constants"
	apierrors "github.com/yukikurage/project-hub-api/internal/errors"
	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/services"
)

// UserLoader resolves the session's user. *services.AuthService implements it.
type UserLoader interface {
	GetUser(id uint64) (*models.User, error)
}

// RequireAuth checks the session and loads the user on every request, so
// role changes and deletions take effect without a new login.
func RequireAuth(users UserLoader, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, ok := toUint64(session.Get(constants.ContextKeyUserID))
		if !ok {
			apierrors.Unauthorized(c, "")
			return
		}

		user, err := users.GetUser(userID)
		if err != nil {
			if errors.Is(err, services.ErrUserNotFound) {
				session.Clear()
				if err := session.Save(); err != nil {
					logger.Warn("Failed to clear stale session", zap.Error(err))
				}
				apierrors.Unauthorized(c, "")
				return
			}
			logger.Error("Failed to load session user", zap.Uint64("user_id", userID), zap.Error(err))
			apierrors.InternalError(c, "")
			return
		}

		// Store user ID and role in context for easy access in handlers
		c.Set(constants.ContextKeyUserID, user.ID)
		c.Set(constants.ContextKeyRole, user.Role)
		c.Next()
	}
}

// GetUserID retrieves the current user ID from context
func GetUserID(c *gin.Context) (uint64, bool) {
	userID, exists := c.Get(constants.ContextKeyUserID)
	if !exists {
		return 0, false
	}
	return toUint64(userID)
}

// GetActor retrieves the current user ID and role from context
func GetActor(c *gin.Context) (permissions.Actor, bool) {
	userID, ok := GetUserID(c)
	if !ok {
		return permissions.Actor{}, false
	}
	role, ok := c.Get(constants.ContextKeyRole)
	if !ok {
		return permissions.Actor{}, false
	}
	r, ok := role.(permissions.Role)
	if !ok {
		return permissions.Actor{}, false
	}
	return permissions.Actor{UserID: userID, Role: r}, true
}

func toUint64(v any) (uint64, bool) {
	switch v := v.(type) {
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}
