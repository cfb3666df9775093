package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yukikurage/project-hub-api/internal/dto"
	apierrors "github.com/yukikurage/project-hub-api/internal/errors"
	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/services"
	"github.com/yukikurage/project-hub-api/internal/utils"
)

type TaskHandler struct {
	taskService *services.TaskService
	logger      *zap.Logger
}

func NewTaskHandler(taskService *services.TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		logger:      logger,
	}
}

// ListTasks returns the tasks of a project ordered by task number
func (h *TaskHandler) ListTasks(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	projectID, ok := parseIDParam(c, "id", "Invalid project ID")
	if !ok {
		return
	}

	tasks, err := h.taskService.ListTasks(actor, projectID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": dto.ToTaskDTOs(tasks)})
}

// MyTasks returns the tasks assigned to the caller across projects
func (h *TaskHandler) MyTasks(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var status *models.TaskStatus
	if s := c.Query("status"); s != "" {
		v := models.TaskStatus(s)
		status = &v
	}
	params := utils.GetPaginationParams(c)

	tasks, total, err := h.taskService.MyTasks(actor, status, params)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToTaskListResponse(tasks, params, total))
}

// CreateTask creates a new task with the next number of its project
func (h *TaskHandler) CreateTask(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	projectID, ok := parseIDParam(c, "id", "Invalid project ID")
	if !ok {
		return
	}

	var req struct {
		Title       string            `json:"title" binding:"required,max=255"`
		Description string            `json:"description"`
		Status      models.TaskStatus `json:"status"`
		Priority    models.Priority   `json:"priority"`
		Deadline    *flexTime         `json:"deadline"`
		AssigneeID  *uint64           `json:"assignee_id"`
		Attributes  map[string]any    `json:"attributes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), actor, projectID, services.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Deadline:    req.Deadline.Time(),
		AssigneeID:  req.AssigneeID,
		Attributes:  req.Attributes,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, dto.ToTaskDTO(*task))
}

// UpdateTask updates task fields. Sending null clears the deadline or assignee.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	projectID, ok := parseIDParam(c, "id", "Invalid project ID")
	if !ok {
		return
	}
	taskID, ok := parseIDParam(c, "task_id", "Invalid task ID")
	if !ok {
		return
	}

	var req struct {
		Title       *string            `json:"title" binding:"omitempty,max=255"`
		Description *string            `json:"description"`
		Priority    *models.Priority   `json:"priority"`
		Deadline    optional[flexTime] `json:"deadline"`
		AssigneeID  optional[uint64]   `json:"assignee_id"`
		Attributes  map[string]any     `json:"attributes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	task, err := h.taskService.UpdateTask(c.Request.Context(), actor, projectID, taskID, services.UpdateTaskInput{
		Title:         req.Title,
		Description:   req.Description,
		Priority:      req.Priority,
		Deadline:      req.Deadline.Value.Time(),
		ClearDeadline: req.Deadline.Set && req.Deadline.Value == nil,
		AssigneeID:    req.AssigneeID.Value,
		ClearAssignee: req.AssigneeID.Set && req.AssigneeID.Value == nil,
		Attributes:    req.Attributes,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToTaskDTO(*task))
}

// UpdateStatus moves a task to another board column
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	projectID, ok := parseIDParam(c, "id", "Invalid project ID")
	if !ok {
		return
	}
	taskID, ok := parseIDParam(c, "task_id", "Invalid task ID")
	if !ok {
		return
	}

	var req struct {
		Status models.TaskStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	task, err := h.taskService.UpdateStatus(c.Request.Context(), actor, projectID, taskID, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToTaskDTO(*task))
}

// DeleteTask deletes a task
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	projectID, ok := parseIDParam(c, "id", "Invalid project ID")
	if !ok {
		return
	}
	taskID, ok := parseIDParam(c, "task_id", "Invalid task ID")
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(c.Request.Context(), actor, projectID, taskID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
}

// Stream pushes the full task list of a project on every change
func (h *TaskHandler) Stream(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	projectID, ok := parseIDParam(c, "id", "Invalid project ID")
	if !ok {
		return
	}

	sub, err := h.taskService.Subscribe(c.Request.Context(), actor, projectID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer func() { _ = sub.Close() }()

	load := func() (any, error) {
		tasks, err := h.taskService.ListTasks(actor, projectID)
		if err != nil {
			return nil, err
		}
		return dto.ToTaskDTOs(tasks), nil
	}
	streamEvents(c, h.logger, "tasks", load, sub.Messages(), func([]byte) (any, error) {
		return load()
	})
}

// GenerateTasks drafts tasks from free text using AI. Drafts are not stored.
func (h *TaskHandler) GenerateTasks(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	projectID, ok := parseIDParam(c, "id", "Invalid project ID")
	if !ok {
		return
	}

	type GenerateTasksRequest struct {
		Text string `json:"text" binding:"required"`
	}

	var req GenerateTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	drafts, err := h.taskService.GenerateTasks(c.Request.Context(), actor, projectID, req.Text)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	out := make([]dto.TaskDraftDTO, len(drafts))
	for i, d := range drafts {
		out[i] = dto.TaskDraftDTO{
			Title:       d.Title,
			Description: d.Description,
			Priority:    d.Priority,
			Deadline:    d.Deadline,
		}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": out})
}
