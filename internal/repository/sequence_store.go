package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/sequence"
)

// GormSequenceStore is the GORM implementation of sequence.Store
type GormSequenceStore struct {
	db *gorm.DB
}

// NewSequenceStore creates a sequence.Store on db
func NewSequenceStore(db *gorm.DB) sequence.Store {
	return &GormSequenceStore{db: db}
}

// WithinTx runs fn in a database transaction
func (s *GormSequenceStore) WithinTx(ctx context.Context, fn func(tx sequence.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormSequenceTx{tx: tx})
	})
}

type gormSequenceTx struct {
	tx *gorm.DB
}

func (t *gormSequenceTx) TaskCounter(projectID uint64) (uint64, error) {
	var project models.Project
	err := t.tx.Model(&models.Project{}).
		Select("id", "task_counter").
		Where("id = ?", projectID).
		Take(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, sequence.ErrProjectNotFound
	}
	if err != nil {
		return 0, err
	}
	return project.TaskCounter, nil
}

// AdvanceTaskCounter is the compare-and-swap: it only matches the row while
// the counter still holds the value read earlier in this transaction.
func (t *gormSequenceTx) AdvanceTaskCounter(projectID, current, next uint64) error {
	result := t.tx.Model(&models.Project{}).
		Where("id = ? AND task_counter = ?", projectID, current).
		UpdateColumn("task_counter", next)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return sequence.ErrCounterMoved
	}
	return nil
}

func (t *gormSequenceTx) InsertTask(task *models.Task) error {
	return t.tx.Omit(clause.Associations).Create(task).Error
}
