package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yukikurage/project-hub-api/internal/models"
)

// requiredIndexes are created by AutoMigrate from struct tags; EnsureIndexes
// recreates any that a hand-edited schema lost.
var requiredIndexes = []struct {
	model any
	name  string
}{
	// Task numbers are unique per project
	{&models.Task{}, models.TaskNumberIndex},
	{&models.Task{}, "idx_tasks_assignee_id"},
	{&models.ProjectMember{}, "idx_project_members_user_id"},
	{&models.Message{}, "idx_messages_project_id"},
	{&models.Note{}, "idx_notes_user_id"},
}

// EnsureIndexes adds missing indexes through the dialect-neutral migrator
func EnsureIndexes(db *gorm.DB, log *zap.Logger) error {
	migrator := db.Migrator()
	for _, idx := range requiredIndexes {
		if migrator.HasIndex(idx.model, idx.name) {
			log.Debug("Index already exists, skipping", zap.String("index", idx.name))
			continue
		}

		if err := migrator.CreateIndex(idx.model, idx.name); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
		log.Info("Created index", zap.String("index", idx.name))
	}
	return nil
}
