// Package testhelpers opens migrated in-memory databases and seeds fixtures for tests.
package testhelpers

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yukikurage/project-hub-api/internal/database"
	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
)

// OpenSQLite returns a migrated in-memory database closed when the test ends.
func OpenSQLite(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	require.NoError(t, database.Migrate(db, zap.NewNop()))
	return db
}

// CreateUser inserts a user with the given role.
func CreateUser(t *testing.T, db *gorm.DB, email string, role permissions.Role) *models.User {
	t.Helper()
	user := &models.User{
		Email:        email,
		Name:         email,
		PasswordHash: "hashedpassword",
		Role:         role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateProject inserts a project managed by managerID with the given members.
func CreateProject(t *testing.T, db *gorm.DB, name string, managerID uint64, memberIDs ...uint64) *models.Project {
	t.Helper()
	project := &models.Project{
		Name:      name,
		Status:    models.ProjectStatusActive,
		Priority:  models.PriorityMedium,
		ManagerID: managerID,
	}
	require.NoError(t, db.Omit("Members", "Manager").Create(project).Error)
	for _, id := range append([]uint64{managerID}, memberIDs...) {
		require.NoError(t, db.Create(&models.ProjectMember{ProjectID: project.ID, UserID: id}).Error)
	}
	return project
}
