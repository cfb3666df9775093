package testhelpers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yukikurage/project-hub-api/internal/events"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/repository"
)

// StartEngine runs a permission engine over db's stored map (seeding the
// default one) on a private in-memory feed, stopped when the test ends.
func StartEngine(t *testing.T, db *gorm.DB) (*permissions.Engine, *events.MemoryBroker) {
	t.Helper()

	feed := events.NewMemoryBroker()
	engine := permissions.NewEngine(repository.NewPermissionStore(db), feed, zap.NewNop())
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() {
		engine.Stop()
		_ = feed.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, engine.WaitReady(ctx))
	return engine, feed
}
