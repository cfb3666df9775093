package services

import (
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yukikurage/project-hub-api/internal/events"
	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/repository"
	"github.com/yukikurage/project-hub-api/internal/sequence"
	"github.com/yukikurage/project-hub-api/internal/testhelpers"
)

// fixture is a migrated database with a live engine, three users of each
// role and one project managed by the manager with the member on board.
type fixture struct {
	db     *gorm.DB
	engine *permissions.Engine
	feed   *events.MemoryBroker

	admin, manager, member, outsider permissions.Actor
	project                         *models.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testhelpers.OpenSQLite(t)
	engine, feed := testhelpers.StartEngine(t, db)

	f := &fixture{db: db, engine: engine, feed: feed}
	f.admin = actorOf(testhelpers.CreateUser(t, db, "admin@example.com", permissions.RoleAdmin))
	f.manager = actorOf(testhelpers.CreateUser(t, db, "manager@example.com", permissions.RoleManager))
	f.member = actorOf(testhelpers.CreateUser(t, db, "member@example.com", permissions.RoleMember))
	f.outsider = actorOf(testhelpers.CreateUser(t, db, "outsider@example.com", permissions.RoleMember))
	f.project = testhelpers.CreateProject(t, db, "Website", f.manager.UserID, f.member.UserID)
	return f
}

func actorOf(u *models.User) permissions.Actor {
	return permissions.Actor{UserID: u.ID, Role: u.Role}
}

func (f *fixture) taskService(drafter TaskDrafter) *TaskService {
	allocator := sequence.NewAllocator(repository.NewSequenceStore(f.db), sequence.DefaultMaxRetries, zap.NewNop())
	return NewTaskService(
		repository.NewTaskRepository(f.db),
		repository.NewProjectRepository(f.db),
		allocator,
		f.feed,
		f.engine,
		drafter,
		zap.NewNop(),
	)
}

func (f *fixture) chatService() *ChatService {
	return NewChatService(
		repository.NewMessageRepository(f.db),
		repository.NewProjectRepository(f.db),
		f.feed,
		f.engine,
		zap.NewNop(),
	)
}

func (f *fixture) reportService() *ReportService {
	return NewReportService(
		repository.NewProjectRepository(f.db),
		repository.NewTaskRepository(f.db),
		repository.NewUserRepository(f.db),
		f.engine,
		zap.NewNop(),
	)
}
