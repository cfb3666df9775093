package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yukikurage/project-hub-api/internal/models"
)

// GormProjectRepository is a GORM implementation of ProjectRepository
type GormProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &GormProjectRepository{db: db}
}

// Create creates a project and its memberships in a transaction
func (r *GormProjectRepository) Create(project *models.Project, memberIDs []uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		project.TaskCounter = 0
		if err := tx.Omit(clause.Associations).Create(project).Error; err != nil {
			return err
		}
		return insertMembers(tx, project.ID, memberIDs)
	})
}

// FindByID finds a project by ID with optional preloading
func (r *GormProjectRepository) FindByID(id uint64, preload ...string) (*models.Project, error) {
	var project models.Project
	query := r.db

	// Apply preloading if specified
	for _, p := range preload {
		query = query.Preload(p)
	}

	if err := query.First(&project, id).Error; err != nil {
		return nil, err
	}

	return &project, nil
}

// List retrieves projects matching the filter, newest first
func (r *GormProjectRepository) List(filter ProjectFilter) ([]models.Project, error) {
	var projects []models.Project

	query := r.db.Model(&models.Project{})
	if filter.MemberID != nil {
		memberSubQuery := r.db.Model(&models.ProjectMember{}).
			Select("1").
			Where("project_members.project_id = projects.id").
			Where("project_members.user_id = ?", *filter.MemberID)
		query = query.Where("EXISTS (?)", memberSubQuery)
	}
	if filter.Status != nil {
		query = query.Where("projects.status = ?", *filter.Status)
	}

	if err := query.Preload("Members").
		Order("projects.created_at DESC").
		Order("projects.id DESC").
		Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// Update saves the editable fields of a project
func (r *GormProjectRepository) Update(project *models.Project) error {
	return r.db.Model(project).
		Select("name", "description", "priority", "deadline", "updated_at").
		Omit(clause.Associations).
		Updates(project).Error
}

// UpdateStatus changes the status of a project
func (r *GormProjectRepository) UpdateStatus(id uint64, status models.ProjectStatus) error {
	result := r.db.Model(&models.Project{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetMembers replaces the member list in a transaction
func (r *GormProjectRepository) SetMembers(projectID uint64, userIDs []uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		// 0 keeps the NOT IN list non-empty when every member is removed
		keep := append([]uint64{0}, userIDs...)
		if err := tx.Where("project_id = ? AND user_id NOT IN ?", projectID, keep).
			Delete(&models.ProjectMember{}).Error; err != nil {
			return err
		}
		return insertMembers(tx, projectID, userIDs)
	})
}

// Delete deletes a project and all related data in a transaction
func (r *GormProjectRepository) Delete(id uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		// Delete all tasks in the project
		if err := tx.Where("project_id = ?", id).Delete(&models.Task{}).Error; err != nil {
			return err
		}

		// Delete the chat
		if err := tx.Where("project_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}

		// Delete all members
		if err := tx.Where("project_id = ?", id).Delete(&models.ProjectMember{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Project{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// IsMember reports whether the user belongs to the project
func (r *GormProjectRepository) IsMember(projectID, userID uint64) (bool, error) {
	var count int64
	err := r.db.Model(&models.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	return count > 0, err
}

// insertMembers adds memberships, keeping existing ones and their join date
func insertMembers(tx *gorm.DB, projectID uint64, userIDs []uint64) error {
	if len(userIDs) == 0 {
		return nil
	}

	now := time.Now()
	members := make([]models.ProjectMember, len(userIDs))
	for i, userID := range userIDs {
		members[i] = models.ProjectMember{
			ProjectID: projectID,
			UserID:    userID,
			JoinedAt:  now,
		}
	}

	return tx.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&members).Error
}
