package dto

import (
	"time"

	"github.com/yukikurage/project-hub-api/internal/models"
)

// ProjectMemberDTO represents a member of a project
type ProjectMemberDTO struct {
	User     UserSummaryDTO `json:"user"`
	JoinedAt time.Time      `json:"joined_at"`
}

// ProjectDTO represents a project in API responses
type ProjectDTO struct {
	ID          uint64               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Status      models.ProjectStatus `json:"status"`
	Priority    models.Priority      `json:"priority"`
	Deadline    *time.Time           `json:"deadline"`
	ManagerID   uint64               `json:"manager_id"`
	MemberIDs   []uint64             `json:"member_ids"`
	TaskCounter uint64               `json:"task_counter"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	Manager     *UserSummaryDTO      `json:"manager,omitempty"`
	Members     []ProjectMemberDTO   `json:"members,omitempty"`
}

// ToProjectDTO converts a Project model to ProjectDTO
func ToProjectDTO(project models.Project) ProjectDTO {
	dto := ProjectDTO{
		ID:          project.ID,
		Name:        project.Name,
		Description: project.Description,
		Status:      project.Status,
		Priority:    project.Priority,
		Deadline:    project.Deadline,
		ManagerID:   project.ManagerID,
		MemberIDs:   project.MemberIDs(),
		TaskCounter: project.TaskCounter,
		CreatedAt:   project.CreatedAt,
		UpdatedAt:   project.UpdatedAt,
		Manager:     toUserSummary(project.Manager),
	}

	// Include member details if preloaded
	for _, m := range project.Members {
		if user := toUserSummary(m.User); user != nil {
			dto.Members = append(dto.Members, ProjectMemberDTO{User: *user, JoinedAt: m.JoinedAt})
		}
	}

	return dto
}

// ToProjectDTOs converts a slice of projects
func ToProjectDTOs(projects []models.Project) []ProjectDTO {
	out := make([]ProjectDTO, len(projects))
	for i, p := range projects {
		out[i] = ToProjectDTO(p)
	}
	return out
}
