package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/repository"
)

var (
	ErrProjectNotFound      = errors.New("project not found")
	ErrInvalidProjectName   = errors.New("project name cannot be empty")
	ErrInvalidProjectStatus = errors.New("invalid project status")
	ErrInvalidPriority      = errors.New("invalid priority")
	ErrInvalidMembers       = errors.New("one or more users do not exist")
)

// ProjectService provides business logic for project operations.
type ProjectService struct {
	projectRepo repository.ProjectRepository
	userRepo    repository.UserRepository
	checker     PermissionChecker
	logger      *zap.Logger
}

// NewProjectService creates a new ProjectService.
func NewProjectService(projectRepo repository.ProjectRepository, userRepo repository.UserRepository, checker PermissionChecker, logger *zap.Logger) *ProjectService {
	return &ProjectService{
		projectRepo: projectRepo,
		userRepo:    userRepo,
		checker:     checker,
		logger:      logger,
	}
}

// CreateProjectInput represents parameters to create a new project.
type CreateProjectInput struct {
	Name        string
	Description string
	Priority    models.Priority
	Deadline    *time.Time
	MemberIDs   []uint64
}

// CreateProject creates a project managed by the actor, who also becomes its first member.
func (s *ProjectService) CreateProject(actor permissions.Actor, input CreateProjectInput) (*models.Project, error) {
	if err := s.checker.Authorize(actor.Role, permissions.CreateProject); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrInvalidProjectName
	}
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}
	if !input.Priority.Valid() {
		return nil, ErrInvalidPriority
	}

	memberIDs := uniqueUint64(append([]uint64{actor.UserID}, input.MemberIDs...))
	if err := s.ensureUsersExist(memberIDs); err != nil {
		return nil, err
	}

	project := &models.Project{
		Name:        name,
		Description: input.Description,
		Status:      models.ProjectStatusPlanning,
		Priority:    input.Priority,
		Deadline:    input.Deadline,
		ManagerID:   actor.UserID,
	}

	if err := s.projectRepo.Create(project, memberIDs); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.logger.Info("Project created",
		zap.Uint64("project_id", project.ID),
		zap.Uint64("user_id", actor.UserID))

	return s.projectRepo.FindByID(project.ID, "Members", "Members.User", "Manager")
}

// ListProjects returns every project for admins and view_all_projects
// holders, and the actor's own projects for everyone else.
func (s *ProjectService) ListProjects(actor permissions.Actor) ([]models.Project, error) {
	filter := repository.ProjectFilter{}
	if !seesAllProjects(s.checker, actor) {
		filter.MemberID = &actor.UserID
	}

	projects, err := s.projectRepo.List(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// GetProject returns a project with its members.
func (s *ProjectService) GetProject(actor permissions.Actor, projectID uint64) (*models.Project, error) {
	return visibleProject(s.projectRepo, s.checker, actor, projectID)
}

// UpdateProjectInput represents the editable project fields. Nil leaves a field unchanged.
type UpdateProjectInput struct {
	Name          *string
	Description   *string
	Priority      *models.Priority
	Deadline      *time.Time
	ClearDeadline bool
}

// UpdateProject edits the name, description, priority or deadline.
func (s *ProjectService) UpdateProject(actor permissions.Actor, projectID uint64, input UpdateProjectInput) (*models.Project, error) {
	project, err := visibleProject(s.projectRepo, s.checker, actor, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Authorize(actor.Role, permissions.UpdateProject); err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrInvalidProjectName
		}
		project.Name = name
	}
	if input.Description != nil {
		project.Description = *input.Description
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			return nil, ErrInvalidPriority
		}
		project.Priority = *input.Priority
	}
	if input.ClearDeadline {
		project.Deadline = nil
	} else if input.Deadline != nil {
		project.Deadline = input.Deadline
	}

	if err := s.projectRepo.Update(project); err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	return project, nil
}

// ChangeStatus moves a project between Planning, Active, On Hold and Completed.
func (s *ProjectService) ChangeStatus(actor permissions.Actor, projectID uint64, status models.ProjectStatus) (*models.Project, error) {
	project, err := visibleProject(s.projectRepo, s.checker, actor, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Authorize(actor.Role, permissions.ChangeProjectStatus); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, ErrInvalidProjectStatus
	}

	if err := s.projectRepo.UpdateStatus(project.ID, status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to update project status: %w", err)
	}

	project.Status = status
	return project, nil
}

// SetMembers replaces the member list. The manager always stays a member.
func (s *ProjectService) SetMembers(actor permissions.Actor, projectID uint64, userIDs []uint64) (*models.Project, error) {
	project, err := visibleProject(s.projectRepo, s.checker, actor, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Authorize(actor.Role, permissions.AssignProject); err != nil {
		return nil, err
	}

	memberIDs := uniqueUint64(append([]uint64{project.ManagerID}, userIDs...))
	if err := s.ensureUsersExist(memberIDs); err != nil {
		return nil, err
	}

	if err := s.projectRepo.SetMembers(project.ID, memberIDs); err != nil {
		return nil, fmt.Errorf("failed to update project members: %w", err)
	}

	return s.projectRepo.FindByID(project.ID, "Members", "Members.User", "Manager")
}

// DeleteProject deletes a project with its tasks and chat.
func (s *ProjectService) DeleteProject(actor permissions.Actor, projectID uint64) error {
	project, err := visibleProject(s.projectRepo, s.checker, actor, projectID)
	if err != nil {
		return err
	}
	if err := s.checker.Authorize(actor.Role, permissions.DeleteProject); err != nil {
		return err
	}

	if err := s.projectRepo.Delete(project.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("failed to delete project: %w", err)
	}

	s.logger.Info("Project deleted",
		zap.Uint64("project_id", project.ID),
		zap.Uint64("user_id", actor.UserID))
	return nil
}

func (s *ProjectService) ensureUsersExist(userIDs []uint64) error {
	count, err := s.userRepo.CountByIDs(userIDs)
	if err != nil {
		return fmt.Errorf("failed to verify users: %w", err)
	}
	if int(count) != len(userIDs) {
		return ErrInvalidMembers
	}
	return nil
}
