package repository_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/repository"
	"github.com/yukikurage/project-hub-api/internal/sequence"
	"github.com/yukikurage/project-hub-api/internal/testhelpers"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return db, mock
}

func counterRows(counter uint64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "task_counter"}).AddRow(7, counter)
}

func TestSequenceStore_CounterMovedRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	store := repository.NewSequenceStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `projects`").WillReturnRows(counterRows(4))
	mock.ExpectExec("UPDATE `projects` SET `task_counter`").
		WithArgs(uint64(5), uint64(7), uint64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx sequence.Tx) error {
		current, err := tx.TaskCounter(7)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), current)
		return tx.AdvanceTaskCounter(7, current, current+1)
	})
	assert.ErrorIs(t, err, sequence.ErrCounterMoved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSequenceStore_MissingProject(t *testing.T) {
	db, mock := newMockDB(t)
	store := repository.NewSequenceStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `projects`").WillReturnRows(sqlmock.NewRows([]string{"id", "task_counter"}))
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx sequence.Tx) error {
		_, err := tx.TaskCounter(7)
		return err
	})
	assert.ErrorIs(t, err, sequence.ErrProjectNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocator_RetriesAfterLostRace(t *testing.T) {
	db, mock := newMockDB(t)
	allocator := sequence.NewAllocator(repository.NewSequenceStore(db), 2, zap.NewNop())

	// First attempt loses the compare-and-swap
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `projects`").WillReturnRows(counterRows(0))
	mock.ExpectExec("UPDATE `projects` SET `task_counter`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	// Second attempt sees the winner's counter and commits
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `projects`").WillReturnRows(counterRows(1))
	mock.ExpectExec("UPDATE `projects` SET `task_counter`").
		WithArgs(uint64(2), uint64(7), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `tasks`").WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectCommit()

	task, err := allocator.Allocate(context.Background(), 7, models.Task{Title: "Second", CreatorID: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), task.ID)
	assert.Equal(t, uint64(2), task.TaskNo)
	assert.Equal(t, "TK-002", task.CustomID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocator_ConcurrentAllocationsOnSQLite(t *testing.T) {
	db := testhelpers.OpenSQLite(t)
	manager := testhelpers.CreateUser(t, db, "manager@example.com", permissions.RoleManager)
	project := testhelpers.CreateProject(t, db, "Busy", manager.ID)
	allocator := sequence.NewAllocator(repository.NewSequenceStore(db), sequence.DefaultMaxRetries, zap.NewNop())

	const n = 20
	numbers := make([]uint64, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			task, err := allocator.Allocate(context.Background(), project.ID, models.Task{
				Title:     "parallel",
				CreatorID: manager.ID,
				Status:    models.TaskStatusTodo,
				Priority:  models.PriorityMedium,
			})
			if err != nil {
				return err
			}
			numbers[i] = task.TaskNo
			return nil
		})
	}
	require.NoError(t, g.Wait())

	want := make([]uint64, n)
	for i := range want {
		want[i] = uint64(i + 1)
	}
	assert.ElementsMatch(t, want, numbers)

	var reloaded models.Project
	require.NoError(t, db.First(&reloaded, project.ID).Error)
	assert.Equal(t, uint64(n), reloaded.TaskCounter)
}
