package repository_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/repository"
	"github.com/yukikurage/project-hub-api/internal/testhelpers"
)

func TestProjectRepository_CreateAndMembers(t *testing.T) {
	db := testhelpers.OpenSQLite(t)
	repo := repository.NewProjectRepository(db)
	manager := testhelpers.CreateUser(t, db, "manager@example.com", permissions.RoleManager)
	member := testhelpers.CreateUser(t, db, "member@example.com", permissions.RoleMember)

	project := &models.Project{Name: "Launch", Status: models.ProjectStatusPlanning, Priority: models.PriorityHigh, ManagerID: manager.ID}
	require.NoError(t, repo.Create(project, []uint64{manager.ID, member.ID}))

	loaded, err := repo.FindByID(project.ID, "Members", "Members.User", "Manager")
	require.NoError(t, err)
	assert.Len(t, loaded.Members, 2)
	require.NotNil(t, loaded.Manager)
	assert.Equal(t, manager.ID, loaded.Manager.ID)

	ok, err := repo.IsMember(project.ID, member.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.SetMembers(project.ID, []uint64{manager.ID}))
	ok, err = repo.IsMember(project.ID, member.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	mine, err := repo.List(repository.ProjectFilter{MemberID: &member.ID})
	require.NoError(t, err)
	assert.Empty(t, mine)

	// The counter column is never written by Update
	require.NoError(t, db.Model(&models.Project{}).Where("id = ?", project.ID).UpdateColumn("task_counter", 9).Error)
	loaded.Name = "Relaunch"
	loaded.TaskCounter = 0
	require.NoError(t, repo.Update(loaded))
	reloaded, err := repo.FindByID(project.ID)
	require.NoError(t, err)
	assert.Equal(t, "Relaunch", reloaded.Name)
	assert.Equal(t, uint64(9), reloaded.TaskCounter)
}

func TestProjectRepository_DeleteCascades(t *testing.T) {
	db := testhelpers.OpenSQLite(t)
	repo := repository.NewProjectRepository(db)
	manager := testhelpers.CreateUser(t, db, "manager@example.com", permissions.RoleManager)
	project := testhelpers.CreateProject(t, db, "Doomed", manager.ID)

	require.NoError(t, db.Create(&models.Task{ProjectID: project.ID, TaskNo: 1, CustomID: "TK-001", Title: "t", CreatorID: manager.ID}).Error)
	require.NoError(t, db.Create(&models.Message{ProjectID: project.ID, SenderID: manager.ID, Text: "bye"}).Error)

	require.NoError(t, repo.Delete(project.ID))

	_, err := repo.FindByID(project.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var tasks, messages, members int64
	require.NoError(t, db.Model(&models.Task{}).Where("project_id = ?", project.ID).Count(&tasks).Error)
	require.NoError(t, db.Model(&models.Message{}).Where("project_id = ?", project.ID).Count(&messages).Error)
	require.NoError(t, db.Model(&models.ProjectMember{}).Where("project_id = ?", project.ID).Count(&members).Error)
	assert.Zero(t, tasks)
	assert.Zero(t, messages)
	assert.Zero(t, members)

	assert.ErrorIs(t, repo.Delete(project.ID), gorm.ErrRecordNotFound)
}
