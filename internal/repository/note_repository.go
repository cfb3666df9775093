package repository

import (
	"strings"

	"gorm.io/gorm"

	"github.com/yukikurage/project-hub-api/internal/models"
)

// GormNoteRepository is a GORM implementation of NoteRepository
type GormNoteRepository struct {
	db *gorm.DB
}

// NewNoteRepository creates a new NoteRepository
func NewNoteRepository(db *gorm.DB) NoteRepository {
	return &GormNoteRepository{db: db}
}

func (r *GormNoteRepository) Create(note *models.Note) error {
	return r.db.Create(note).Error
}

// FindByID finds a note owned by userID
func (r *GormNoteRepository) FindByID(userID, id uint64) (*models.Note, error) {
	var note models.Note
	if err := r.db.Where("user_id = ?", userID).First(&note, id).Error; err != nil {
		return nil, err
	}
	return &note, nil
}

// List lists the user's notes, most recently updated first
func (r *GormNoteRepository) List(userID uint64, search string) ([]models.Note, error) {
	var notes []models.Note
	query := r.db.Where("user_id = ?", userID)

	if term := strings.TrimSpace(search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(content) LIKE ?", like, like)
	}

	if err := query.Order("updated_at DESC").Order("id DESC").Find(&notes).Error; err != nil {
		return nil, err
	}
	return notes, nil
}

func (r *GormNoteRepository) Update(note *models.Note) error {
	return r.db.Model(note).Select("title", "content", "color", "updated_at").Updates(note).Error
}

func (r *GormNoteRepository) Delete(userID, id uint64) error {
	result := r.db.Where("user_id = ?", userID).Delete(&models.Note{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
