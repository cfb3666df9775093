package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yukikurage/project-hub-api/internal/constants"
	"github.com/yukikurage/project-hub-api/internal/events"
	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/repository"
	"github.com/yukikurage/project-hub-api/internal/sequence"
	"github.com/yukikurage/project-hub-api/internal/services"
	"github.com/yukikurage/project-hub-api/internal/testhelpers"
)

// testEnv holds a migrated database, a ready permission engine and the services built on them.
type testEnv struct {
	db     *gorm.DB
	engine *permissions.Engine
	feed   *events.MemoryBroker

	authService    *services.AuthService
	projectService *services.ProjectService
	taskService    *services.TaskService
}

func setupTestEnv(t *testing.T, drafter services.TaskDrafter) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testhelpers.OpenSQLite(t)
	engine, feed := testhelpers.StartEngine(t, db)

	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	allocator := sequence.NewAllocator(repository.NewSequenceStore(db), sequence.DefaultMaxRetries, zap.NewNop())

	return testEnv{
		db:             db,
		engine:         engine,
		feed:           feed,
		authService:    services.NewAuthService(userRepo, zap.NewNop()),
		projectService: services.NewProjectService(projectRepo, userRepo, engine, zap.NewNop()),
		taskService: services.NewTaskService(
			repository.NewTaskRepository(db), projectRepo, allocator, feed, engine, drafter, zap.NewNop()),
	}
}

// createAuthContext builds a request context as RequireAuth would leave it
func createAuthContext(method, url string, body any, user *models.User) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != nil {
		raw, _ := json.Marshal(body)
		req = httptest.NewRequest(method, url, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, url, nil)
	}

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	if user != nil {
		c.Set(constants.ContextKeyUserID, user.ID)
		c.Set(constants.ContextKeyRole, user.Role)
	}
	return c, w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
