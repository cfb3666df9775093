package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yukikurage/project-hub-api/internal/constants"
	"github.com/yukikurage/project-hub-api/internal/events"
	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/repository"
	"github.com/yukikurage/project-hub-api/internal/sequence"
	"github.com/yukikurage/project-hub-api/internal/utils"
)

var (
	ErrTaskNotFound           = errors.New("task not found")
	ErrTitleRequired          = errors.New("title is required")
	ErrTitleEmpty             = errors.New("title cannot be empty")
	ErrInvalidTaskStatus      = errors.New("invalid task status")
	ErrInvalidTaskAssignee    = errors.New("assignee must be a member of the project")
	ErrTextRequired           = errors.New("text is required")
	ErrAIServiceNotConfigured = errors.New("AI service is not configured")
	ErrAINoTasksGenerated     = errors.New("AI did not generate any tasks")
	ErrAINoValidTasks         = errors.New("no valid tasks could be created from AI output")
)

// TaskService handles task business logic
type TaskService struct {
	taskRepo    repository.TaskRepository
	projectRepo repository.ProjectRepository
	allocator   *sequence.Allocator
	feed        events.Broker
	checker     PermissionChecker
	drafter     TaskDrafter
	logger      *zap.Logger
}

// NewTaskService creates a new TaskService. drafter may be nil when AI drafting is not configured.
func NewTaskService(
	taskRepo repository.TaskRepository,
	projectRepo repository.ProjectRepository,
	allocator *sequence.Allocator,
	feed events.Broker,
	checker PermissionChecker,
	drafter TaskDrafter,
	logger *zap.Logger,
) *TaskService {
	return &TaskService{
		taskRepo:    taskRepo,
		projectRepo: projectRepo,
		allocator:   allocator,
		feed:        feed,
		checker:     checker,
		drafter:     drafter,
		logger:      logger,
	}
}

// CreateTaskInput represents input for creating a task
type CreateTaskInput struct {
	Title       string
	Description string
	Status      models.TaskStatus
	Priority    models.Priority
	Deadline    *time.Time
	AssigneeID  *uint64
	Attributes  map[string]any
}

// UpdateTaskInput represents input for updating a task. Nil leaves a field unchanged.
type UpdateTaskInput struct {
	Title         *string
	Description   *string
	Priority      *models.Priority
	Deadline      *time.Time
	ClearDeadline bool
	AssigneeID    *uint64
	ClearAssignee bool
	Attributes    map[string]any
}

// ListTasks returns the tasks of a project ordered by task number
func (s *TaskService) ListTasks(actor permissions.Actor, projectID uint64) ([]models.Task, error) {
	if _, err := visibleProject(s.projectRepo, s.checker, actor, projectID); err != nil {
		return nil, err
	}

	tasks, err := s.taskRepo.ListByProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// MyTasks returns tasks assigned to the actor across projects
func (s *TaskService) MyTasks(actor permissions.Actor, status *models.TaskStatus, page utils.PaginationParams) ([]models.Task, int64, error) {
	if status != nil && !status.Valid() {
		return nil, 0, ErrInvalidTaskStatus
	}

	tasks, total, err := s.taskRepo.List(repository.TaskFilter{
		AssigneeID:     &actor.UserID,
		Status:         status,
		SortByDeadline: true,
		Pagination:     page,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, total, nil
}

// CreateTask numbers and stores a new task
func (s *TaskService) CreateTask(ctx context.Context, actor permissions.Actor, projectID uint64, input CreateTaskInput) (*models.Task, error) {
	project, err := visibleProject(s.projectRepo, s.checker, actor, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.Authorize(actor.Role, permissions.CreateTask); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if input.Status == "" {
		input.Status = models.TaskStatusTodo
	}
	if !input.Status.Valid() {
		return nil, ErrInvalidTaskStatus
	}
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}
	if !input.Priority.Valid() {
		return nil, ErrInvalidPriority
	}
	if input.AssigneeID != nil {
		if err := s.checker.Authorize(actor.Role, permissions.AssignTask); err != nil {
			return nil, err
		}
		if !project.HasMember(*input.AssigneeID) {
			return nil, ErrInvalidTaskAssignee
		}
	}

	task, err := s.allocator.Allocate(ctx, projectID, models.Task{
		Title:       title,
		Description: input.Description,
		Status:      input.Status,
		Priority:    input.Priority,
		Deadline:    input.Deadline,
		AssigneeID:  input.AssigneeID,
		CreatorID:   actor.UserID,
		Attributes:  input.Attributes,
	})
	if err != nil {
		if errors.Is(err, sequence.ErrProjectNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Info("Task created",
		zap.Uint64("project_id", projectID),
		zap.String("custom_id", task.CustomID),
		zap.Uint64("user_id", actor.UserID))
	s.publish(ctx, events.KindTaskCreated, projectID, task.ID)

	return s.findTask(projectID, task.ID)
}

// UpdateTask edits task fields. Changing the assignee needs assign_task,
// any other edit needs create_task.
func (s *TaskService) UpdateTask(ctx context.Context, actor permissions.Actor, projectID, taskID uint64, input UpdateTaskInput) (*models.Task, error) {
	project, err := visibleProject(s.projectRepo, s.checker, actor, projectID)
	if err != nil {
		return nil, err
	}
	task, err := s.findTask(projectID, taskID)
	if err != nil {
		return nil, err
	}

	assignee := task.AssigneeID
	if input.ClearAssignee {
		assignee = nil
	} else if input.AssigneeID != nil {
		assignee = input.AssigneeID
	}
	capability := permissions.CreateTask
	if !sameAssignee(task.AssigneeID, assignee) {
		capability = permissions.AssignTask
	}
	if err := s.checker.Authorize(actor.Role, capability); err != nil {
		return nil, err
	}
	if assignee != nil && !sameAssignee(task.AssigneeID, assignee) && !project.HasMember(*assignee) {
		return nil, ErrInvalidTaskAssignee
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, ErrTitleEmpty
		}
		task.Title = title
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			return nil, ErrInvalidPriority
		}
		task.Priority = *input.Priority
	}
	if input.ClearDeadline {
		task.Deadline = nil
	} else if input.Deadline != nil {
		task.Deadline = input.Deadline
	}
	if input.Attributes != nil {
		merged := maps.Clone(task.Attributes)
		if merged == nil {
			merged = make(map[string]any, len(input.Attributes))
		}
		maps.Copy(merged, input.Attributes)
		task.Attributes = merged
	}
	task.AssigneeID = assignee
	task.Assignee = nil

	if err := s.taskRepo.Update(task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	s.publish(ctx, events.KindTaskUpdated, projectID, taskID)
	return s.findTask(projectID, taskID)
}

// UpdateStatus moves a task across the board
func (s *TaskService) UpdateStatus(ctx context.Context, actor permissions.Actor, projectID, taskID uint64, status models.TaskStatus) (*models.Task, error) {
	if _, err := visibleProject(s.projectRepo, s.checker, actor, projectID); err != nil {
		return nil, err
	}
	if err := s.checker.Authorize(actor.Role, permissions.UpdateTaskStatus); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, ErrInvalidTaskStatus
	}

	if err := s.taskRepo.UpdateStatus(projectID, taskID, status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}

	s.publish(ctx, events.KindTaskUpdated, projectID, taskID)
	return s.findTask(projectID, taskID)
}

// DeleteTask removes a task. Its number is never handed out again.
func (s *TaskService) DeleteTask(ctx context.Context, actor permissions.Actor, projectID, taskID uint64) error {
	if _, err := visibleProject(s.projectRepo, s.checker, actor, projectID); err != nil {
		return err
	}
	if err := s.checker.Authorize(actor.Role, permissions.DeleteTask); err != nil {
		return err
	}

	if err := s.taskRepo.Delete(projectID, taskID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}

	s.publish(ctx, events.KindTaskDeleted, projectID, taskID)
	return nil
}

// Subscribe opens the change feed of a project's tasks
func (s *TaskService) Subscribe(ctx context.Context, actor permissions.Actor, projectID uint64) (events.Subscription, error) {
	if _, err := visibleProject(s.projectRepo, s.checker, actor, projectID); err != nil {
		return nil, err
	}
	return s.feed.Subscribe(ctx, events.ProjectTasksTopic(projectID))
}

// GenerateTasks uses AI to draft tasks from text. Drafts are not stored.
func (s *TaskService) GenerateTasks(ctx context.Context, actor permissions.Actor, projectID uint64, text string) ([]GeneratedTask, error) {
	if _, err := visibleProject(s.projectRepo, s.checker, actor, projectID); err != nil {
		return nil, err
	}
	if err := s.checker.Authorize(actor.Role, permissions.CreateTask); err != nil {
		return nil, err
	}
	if s.drafter == nil {
		return nil, ErrAIServiceNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrTextRequired
	}

	aiTasks, err := s.drafter.GenerateTasksFromText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tasks: %w", err)
	}

	if len(aiTasks) == 0 {
		return nil, ErrAINoTasksGenerated
	}
	if len(aiTasks) > constants.MaxAIGeneratedTasks {
		return nil, fmt.Errorf("AI generated too many tasks (max %d)", constants.MaxAIGeneratedTasks)
	}

	validTasks := make([]GeneratedTask, 0, len(aiTasks))
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, aiTask := range aiTasks {
		aiTask.Title = strings.TrimSpace(aiTask.Title)
		if aiTask.Title == "" {
			continue
		}
		if !aiTask.Priority.Valid() {
			aiTask.Priority = models.PriorityMedium
		}
		if aiTask.Deadline != nil && aiTask.Deadline.Before(cutoff) {
			aiTask.Deadline = nil
		}

		validTasks = append(validTasks, aiTask)
	}

	if len(validTasks) == 0 {
		return nil, ErrAINoValidTasks
	}

	return validTasks, nil
}

func (s *TaskService) findTask(projectID, taskID uint64) (*models.Task, error) {
	task, err := s.taskRepo.FindByID(projectID, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

// publish announces a mutation. Delivery is best effort; the write already committed.
func (s *TaskService) publish(ctx context.Context, kind string, projectID, id uint64) {
	publishChange(ctx, s.feed, s.logger, events.ProjectTasksTopic(projectID), events.Change{
		Kind:      kind,
		ProjectID: projectID,
		ID:        id,
	})
}

func publishChange(ctx context.Context, feed events.Broker, logger *zap.Logger, topic string, change events.Change) {
	payload, err := json.Marshal(change)
	if err != nil {
		logger.Error("Failed to encode change", zap.Error(err))
		return
	}
	if err := feed.Publish(context.WithoutCancel(ctx), topic, payload); err != nil {
		logger.Warn("Failed to publish change",
			zap.String("topic", topic),
			zap.String("kind", change.Kind),
			zap.Error(err))
	}
}

func sameAssignee(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
