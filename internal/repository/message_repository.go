package repository

import (
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yukikurage/project-hub-api/internal/models"
)

// GormMessageRepository is a GORM implementation of MessageRepository
type GormMessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &GormMessageRepository{db: db}
}

// Create stores a message
func (r *GormMessageRepository) Create(message *models.Message) error {
	return r.db.Omit(clause.Associations).Create(message).Error
}

// ListByProject returns the latest limit messages, oldest first
func (r *GormMessageRepository) ListByProject(projectID uint64, limit int) ([]models.Message, error) {
	var messages []models.Message
	query := r.db.Preload("Sender").
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}
