package repository

import (
	"time"

	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/utils"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// CreateWithBootstrapRole creates a user, making the very first account an
	// admin and every later one a member, within a single transaction.
	CreateWithBootstrapRole(user *models.User) error

	// FindByID finds a user by ID
	FindByID(id uint64) (*models.User, error)

	// FindByEmail finds a user by email
	FindByEmail(email string) (*models.User, error)

	// List lists every user ordered by name
	List() ([]models.User, error)

	// UpdateProfile saves the user's name and phone
	UpdateProfile(user *models.User) error

	// UpdateRole changes the role of a user
	UpdateRole(id uint64, role permissions.Role) error

	// Delete removes a user, their project memberships and task assignments
	Delete(id uint64) error

	// CountByIDs counts how many of the given user IDs exist
	CountByIDs(ids []uint64) (int64, error)
}

// ProjectFilter holds filtering options for listing projects
type ProjectFilter struct {
	// MemberID restricts the listing to projects the user belongs to
	MemberID *uint64
	Status   *models.ProjectStatus
}

// ProjectRepository defines the interface for project data access
type ProjectRepository interface {
	// Create creates a project and its initial memberships
	Create(project *models.Project, memberIDs []uint64) error

	// FindByID finds a project by ID with optional preloading
	FindByID(id uint64, preload ...string) (*models.Project, error)

	// List retrieves projects matching the filter, newest first
	List(filter ProjectFilter) ([]models.Project, error)

	// Update saves the editable fields of a project. The task counter is never written.
	Update(project *models.Project) error

	// UpdateStatus changes the status of a project
	UpdateStatus(id uint64, status models.ProjectStatus) error

	// SetMembers replaces the member list of a project
	SetMembers(projectID uint64, userIDs []uint64) error

	// Delete deletes a project with its tasks, messages and memberships
	Delete(id uint64) error

	// IsMember reports whether the user belongs to the project
	IsMember(projectID, userID uint64) (bool, error)
}

// TaskFilter holds filtering options for listing tasks
type TaskFilter struct {
	ProjectIDs     []uint64
	AssigneeID     *uint64
	Status         *models.TaskStatus
	ExcludeStatus  *models.TaskStatus
	DeadlineAfter  *time.Time
	HasDeadline    bool
	SortByDeadline bool
	Pagination     utils.PaginationParams
}

// AssigneeStatusCount is one row of the per-user workload aggregate
type AssigneeStatusCount struct {
	AssigneeID uint64
	Status     models.TaskStatus
	Count      int64
}

// TaskRepository defines the interface for task data access.
// Tasks are created through the sequence allocator only.
type TaskRepository interface {
	// FindByID finds a task of a project
	FindByID(projectID, taskID uint64) (*models.Task, error)

	// ListByProject lists the tasks of a project ordered by task number
	ListByProject(projectID uint64) ([]models.Task, error)

	// List retrieves tasks with filtering and pagination
	List(filter TaskFilter) ([]models.Task, int64, error)

	// Update saves the editable fields of a task
	Update(task *models.Task) error

	// UpdateStatus changes the status of a task
	UpdateStatus(projectID, taskID uint64, status models.TaskStatus) error

	// Delete soft deletes a task
	Delete(projectID, taskID uint64) error

	// CountByAssigneeAndStatus aggregates assigned tasks per user and status
	CountByAssigneeAndStatus() ([]AssigneeStatusCount, error)
}

// MessageRepository defines the interface for project chat data access
type MessageRepository interface {
	// Create stores a message
	Create(message *models.Message) error

	// ListByProject returns the latest limit messages, oldest first
	ListByProject(projectID uint64, limit int) ([]models.Message, error)
}

// NoteRepository defines the interface for personal note data access
type NoteRepository interface {
	Create(note *models.Note) error

	// FindByID finds a note owned by userID
	FindByID(userID, id uint64) (*models.Note, error)

	// List lists the user's notes, most recently updated first, optionally
	// filtered by a case-insensitive search on title and content
	List(userID uint64, search string) ([]models.Note, error)

	Update(note *models.Note) error

	Delete(userID, id uint64) error
}
