package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/repository"
)

// PermissionChecker answers capability checks. *permissions.Engine implements it.
type PermissionChecker interface {
	Authorize(role permissions.Role, capability permissions.Capability) error
	HasPermission(role permissions.Role, capability permissions.Capability) bool
}

// seesAllProjects reports whether the actor may open projects they are not a member of.
func seesAllProjects(checker PermissionChecker, actor permissions.Actor) bool {
	return actor.Role == permissions.RoleAdmin || checker.HasPermission(actor.Role, permissions.ViewAllProjects)
}

// visibleProject loads a project the actor may see. Projects the actor may
// not see are reported as missing rather than forbidden.
func visibleProject(projects repository.ProjectRepository, checker PermissionChecker, actor permissions.Actor, projectID uint64) (*models.Project, error) {
	project, err := projects.FindByID(projectID, "Members", "Members.User", "Manager")
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to find project: %w", err)
	}

	if !seesAllProjects(checker, actor) && !project.HasMember(actor.UserID) {
		return nil, ErrProjectNotFound
	}
	return project, nil
}

// uniqueUint64 removes duplicate values from a slice of uint64
func uniqueUint64(values []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(values))
	result := make([]uint64, 0, len(values))

	for _, v := range values {
		if _, exists := seen[v]; exists {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}

	return result
}
