package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yukikurage/project-hub-api/internal/config"
	"github.com/yukikurage/project-hub-api/internal/database"
	"github.com/yukikurage/project-hub-api/internal/events"
	"github.com/yukikurage/project-hub-api/internal/logging"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/repository"
	"github.com/yukikurage/project-hub-api/internal/retry"
	"github.com/yukikurage/project-hub-api/internal/server"
	"github.com/yukikurage/project-hub-api/internal/services"
)

const shutdownTimeout = 15 * time.Second

var rootCmd = &cobra.Command{
	Use:   "projecthub",
	Short: "Project Hub API server",
	Long: `Project Hub is a team project-management backend: projects, numbered
tasks, chat, notes and reports behind a role-based permission map.

Run without arguments to start the HTTP server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate the database and start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the database and seed the permission map, then exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration, builds the logger and opens the migrated database.
func setup() (*config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.IsRelease())
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := database.Connect(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.Migrate(db, logger); err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, db, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	_, logger, db, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer database.Close(db, logger)

	cfg, err := repository.NewPermissionStore(db).SeedIfAbsent(cmd.Context(), permissions.DefaultMap().Normalize())
	if err != nil {
		return fmt.Errorf("failed to seed permissions: %w", err)
	}
	logger.Info("Migration complete", zap.Uint64("permissions_revision", cfg.Revision))
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, db, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer database.Close(db, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(cfg.GinMode)

	feed, closeFeed, err := newFeed(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFeed()

	engine := permissions.NewEngine(repository.NewPermissionStore(db), feed, logger.Named("permissions"))
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	readyCtx, cancelReady := context.WithTimeout(ctx, cfg.PermissionsReadyTimeout)
	if err := engine.WaitReady(readyCtx); err != nil {
		// Non-admin checks are denied until the background load succeeds
		logger.Warn("Permission map not loaded yet, starting anyway", zap.Error(err))
	}
	cancelReady()

	store, err := server.NewSessionStore(cfg)
	if err != nil {
		return err
	}

	// Initialize AI service
	var drafter services.TaskDrafter
	if cfg.OpenAIAPIKey != "" {
		drafter = services.NewAIService(cfg.OpenAIAPIKey)
	}

	router := server.NewRouter(server.Deps{
		DB:                 db,
		Engine:             engine,
		Feed:               feed,
		SessionStore:       store,
		Drafter:            drafter,
		SequenceMaxRetries: cfg.SequenceMaxRetries,
		Logger:             logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("addr", cfg.HTTPAddr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// newFeed builds the change feed. The memory feed only reaches subscribers
// in this process.
func newFeed(ctx context.Context, cfg *config.Config, logger *zap.Logger) (events.Broker, func(), error) {
	if cfg.FeedBackend == config.FeedMemory {
		b := events.NewMemoryBroker()
		return b, func() { _ = b.Close() }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
	})
	err := retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	b := events.NewRedisBroker(client, cfg.FeedChannelPrefix, logger.Named("feed"))
	return b, func() { _ = client.Close() }, nil
}
