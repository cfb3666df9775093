// Package server assembles services, middleware and handlers into the HTTP router.
package server

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yukikurage/project-hub-api/internal/constants"
	"github.com/yukikurage/project-hub-api/internal/events"
	"github.com/yukikurage/project-hub-api/internal/handlers"
	"github.com/yukikurage/project-hub-api/internal/middleware"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/repository"
	"github.com/yukikurage/project-hub-api/internal/sequence"
	"github.com/yukikurage/project-hub-api/internal/services"
)

// Deps are the long-lived collaborators the router is built from.
type Deps struct {
	DB           *gorm.DB
	Engine       *permissions.Engine
	Feed         events.Broker
	SessionStore sessions.Store
	// Drafter is optional; leave it nil when no AI key is configured.
	Drafter            services.TaskDrafter
	SequenceMaxRetries int
	Logger             *zap.Logger
}

// NewRouter wires repositories, services and handlers and registers every route.
func NewRouter(d Deps) *gin.Engine {
	userRepo := repository.NewUserRepository(d.DB)
	projectRepo := repository.NewProjectRepository(d.DB)
	taskRepo := repository.NewTaskRepository(d.DB)
	messageRepo := repository.NewMessageRepository(d.DB)
	noteRepo := repository.NewNoteRepository(d.DB)

	allocator := sequence.NewAllocator(repository.NewSequenceStore(d.DB), d.SequenceMaxRetries, d.Logger)

	authService := services.NewAuthService(userRepo, d.Logger)
	userService := services.NewUserService(userRepo, d.Engine, d.Logger)
	projectService := services.NewProjectService(projectRepo, userRepo, d.Engine, d.Logger)
	taskService := services.NewTaskService(taskRepo, projectRepo, allocator, d.Feed, d.Engine, d.Drafter, d.Logger)
	chatService := services.NewChatService(messageRepo, projectRepo, d.Feed, d.Engine, d.Logger)
	noteService := services.NewNoteService(noteRepo)
	reportService := services.NewReportService(projectRepo, taskRepo, userRepo, d.Engine, d.Logger)

	authHandler := handlers.NewAuthHandler(authService, d.Logger)
	userHandler := handlers.NewUserHandler(userService, d.Logger)
	permissionHandler := handlers.NewPermissionHandler(d.Engine, d.Logger)
	projectHandler := handlers.NewProjectHandler(projectService, d.Logger)
	taskHandler := handlers.NewTaskHandler(taskService, d.Logger)
	chatHandler := handlers.NewChatHandler(chatService, d.Logger)
	noteHandler := handlers.NewNoteHandler(noteService, d.Logger)
	reportHandler := handlers.NewReportHandler(reportService, d.Logger)
	healthHandler := handlers.NewHealthHandler(d.DB, d.Engine)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(d.Logger))
	r.Use(sessions.Sessions(constants.SessionCookieName, d.SessionStore))

	requireAuth := middleware.RequireAuth(authService, d.Logger)
	projectAccess := middleware.RequireProjectAccess(projectService, d.Logger)

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", requireAuth, authHandler.GetCurrentUser)
		}

		protected := api.Group("")
		protected.Use(requireAuth)

		users := protected.Group("/users")
		{
			users.GET("", userHandler.ListUsers)
			users.PATCH("/:id", userHandler.UpdateProfile)
			users.PUT("/:id/role", userHandler.ChangeRole)
			users.DELETE("/:id", userHandler.DeleteUser)
		}

		perms := protected.Group("/permissions")
		{
			perms.GET("", permissionHandler.GetConfig)
			perms.PUT("", permissionHandler.UpdateConfig)
			perms.GET("/stream", permissionHandler.Stream)
		}

		me := protected.Group("/me")
		{
			me.GET("/permissions", permissionHandler.MyCapabilities)
			me.GET("/tasks", taskHandler.MyTasks)
		}

		projects := protected.Group("/projects")
		{
			projects.GET("", projectHandler.ListProjects)
			projects.POST("", projectHandler.CreateProject)

			// Services check visibility themselves; only GetProject reads the
			// project loaded by RequireProjectAccess.
			project := projects.Group("/:id")
			{
				project.GET("", projectAccess, projectHandler.GetProject)
				project.PATCH("", projectHandler.UpdateProject)
				project.DELETE("", projectHandler.DeleteProject)
				project.PUT("/status", projectHandler.ChangeStatus)
				project.PUT("/members", projectHandler.SetMembers)

				project.GET("/tasks", taskHandler.ListTasks)
				project.POST("/tasks", taskHandler.CreateTask)
				project.GET("/tasks/stream", taskHandler.Stream)
				project.POST("/tasks/generate", taskHandler.GenerateTasks)
				project.PATCH("/tasks/:task_id", taskHandler.UpdateTask)
				project.DELETE("/tasks/:task_id", taskHandler.DeleteTask)
				project.PUT("/tasks/:task_id/status", taskHandler.UpdateStatus)

				project.GET("/messages", chatHandler.ListMessages)
				project.POST("/messages", chatHandler.PostMessage)
				project.GET("/messages/stream", chatHandler.Stream)
			}
		}

		notes := protected.Group("/notes")
		{
			notes.GET("", noteHandler.ListNotes)
			notes.POST("", noteHandler.CreateNote)
			notes.PATCH("/:id", noteHandler.UpdateNote)
			notes.DELETE("/:id", noteHandler.DeleteNote)
		}

		reports := protected.Group("/reports")
		{
			reports.GET("/dashboard", reportHandler.Dashboard)
			reports.GET("/tracker", middleware.RequireCapability(d.Engine, permissions.ViewReports), reportHandler.Tracker)
			reports.GET("/workload", middleware.RequireCapability(d.Engine, permissions.ViewTeamWorkload), reportHandler.Workload)
		}
	}

	return r
}
