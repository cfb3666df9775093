package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yukikurage/project-hub-api/internal/database"
	"github.com/yukikurage/project-hub-api/internal/models"
)

// GormTaskRepository is a GORM implementation of TaskRepository
type GormTaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &GormTaskRepository{db: db}
}

// FindByID finds a task of a project
func (r *GormTaskRepository) FindByID(projectID, taskID uint64) (*models.Task, error) {
	var task models.Task
	if err := r.db.Preload("Assignee").
		Where("project_id = ?", projectID).
		First(&task, taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// ListByProject lists the tasks of a project ordered by task number
func (r *GormTaskRepository) ListByProject(projectID uint64) ([]models.Task, error) {
	var tasks []models.Task
	if err := r.db.Preload("Assignee").
		Where("project_id = ?", projectID).
		Order("task_no ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// List retrieves tasks with filtering and pagination
func (r *GormTaskRepository) List(filter TaskFilter) ([]models.Task, int64, error) {
	var tasks []models.Task

	query := r.db.Model(&models.Task{})

	// Apply filters
	if filter.ProjectIDs != nil {
		if len(filter.ProjectIDs) == 0 {
			return []models.Task{}, 0, nil
		}
		query = query.Where("tasks.project_id IN ?", filter.ProjectIDs)
	}
	if filter.AssigneeID != nil {
		query = query.Where("tasks.assignee_id = ?", *filter.AssigneeID)
	}
	if filter.Status != nil {
		query = query.Where("tasks.status = ?", *filter.Status)
	}
	if filter.ExcludeStatus != nil {
		query = query.Where("tasks.status <> ?", *filter.ExcludeStatus)
	}
	if filter.DeadlineAfter != nil {
		query = query.Where("tasks.deadline >= ?", *filter.DeadlineAfter)
	}
	if filter.HasDeadline {
		query = query.Where("tasks.deadline IS NOT NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	listQuery := query
	if filter.SortByDeadline {
		listQuery = listQuery.Order("CASE WHEN tasks.deadline IS NULL THEN 1 ELSE 0 END, tasks.deadline ASC")
	} else {
		listQuery = listQuery.Order("tasks.project_id ASC, tasks.task_no ASC")
	}

	if err := listQuery.Scopes(database.Paginate(filter.Pagination)).
		Preload("Assignee").
		Find(&tasks).Error; err != nil {
		return nil, 0, err
	}

	return tasks, total, nil
}

// Update saves the editable fields of a task
func (r *GormTaskRepository) Update(task *models.Task) error {
	return r.db.Model(task).
		Select("title", "description", "priority", "deadline", "assignee_id", "attributes", "updated_at").
		Omit(clause.Associations).
		Updates(task).Error
}

// UpdateStatus changes the status of a task
func (r *GormTaskRepository) UpdateStatus(projectID, taskID uint64, status models.TaskStatus) error {
	result := r.db.Model(&models.Task{}).
		Where("id = ? AND project_id = ?", taskID, projectID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete soft deletes a task. The project's counter is left alone.
func (r *GormTaskRepository) Delete(projectID, taskID uint64) error {
	result := r.db.Where("project_id = ?", projectID).Delete(&models.Task{}, taskID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountByAssigneeAndStatus aggregates assigned tasks per user and status
func (r *GormTaskRepository) CountByAssigneeAndStatus() ([]AssigneeStatusCount, error) {
	var rows []AssigneeStatusCount
	err := r.db.Model(&models.Task{}).
		Select("assignee_id, status, COUNT(*) AS count").
		Where("assignee_id IS NOT NULL").
		Group("assignee_id, status").
		Scan(&rows).Error
	return rows, err
}
