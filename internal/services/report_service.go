package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yukikurage/project-hub-api/internal/constants"
	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/repository"
	"github.com/yukikurage/project-hub-api/internal/utils"
)

// Health summarises whether a project will meet its deadline
type Health string

const (
	HealthOnTrack Health = "On Track"
	HealthAtRisk  Health = "At Risk"
	HealthOverdue Health = "Overdue"
)

const (
	atRiskWindow    = 3 * 24 * time.Hour
	trackerParallel = 4
)

// Progress is the rounded percentage of done tasks, 0 for an empty project.
func Progress(tasks []models.Task) int {
	if len(tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range tasks {
		if t.Status == models.TaskStatusDone {
			done++
		}
	}
	return int(math.Round(float64(done) / float64(len(tasks)) * 100))
}

// ProjectHealth classifies a project against its deadline at now.
func ProjectHealth(project models.Project, tasks []models.Task, now time.Time) Health {
	if project.Deadline == nil {
		return HealthOnTrack
	}

	progress := Progress(tasks)
	deadline := *project.Deadline
	if progress < 100 && deadline.Before(now) {
		return HealthOverdue
	}
	if progress < 50 && deadline.Sub(now) < atRiskWindow {
		return HealthAtRisk
	}
	return HealthOnTrack
}

// DashboardMetrics is the landing page summary
type DashboardMetrics struct {
	// Scope is "personal" for members and "global" for everyone else.
	Scope             string        `json:"scope"`
	ActiveProjects    int           `json:"active_projects"`
	CompletedTasks    int           `json:"completed_tasks"`
	InProgressTasks   int           `json:"in_progress_tasks"`
	HighPriorityTasks int           `json:"high_priority_tasks"`
	Upcoming          []models.Task `json:"upcoming"`
}

// ProjectReport is one row of the tracker
type ProjectReport struct {
	ProjectID      uint64               `json:"project_id"`
	Name           string               `json:"name"`
	Status         models.ProjectStatus `json:"status"`
	Deadline       *time.Time           `json:"deadline,omitempty"`
	Progress       int                  `json:"progress"`
	Health         Health               `json:"health"`
	TaskCount      int                  `json:"task_count"`
	CompletedTasks int                  `json:"completed_tasks"`
}

// TrackerReport aggregates project reports
type TrackerReport struct {
	AverageProgress int             `json:"average_progress"`
	OnTrack         int             `json:"on_track"`
	AtRisk          int             `json:"at_risk"`
	Overdue         int             `json:"overdue"`
	Projects        []ProjectReport `json:"projects"`
}

// MemberWorkload counts the tasks assigned to one user
type MemberWorkload struct {
	UserID uint64           `json:"user_id"`
	Name   string           `json:"name"`
	Email  string           `json:"email"`
	Role   permissions.Role `json:"role"`
	Open   int64            `json:"open"`
	Done   int64            `json:"done"`
}

// ReportService computes dashboards and reports
type ReportService struct {
	projectRepo repository.ProjectRepository
	taskRepo    repository.TaskRepository
	userRepo    repository.UserRepository
	checker     PermissionChecker
	logger      *zap.Logger
	now         func() time.Time
}

// NewReportService creates a new ReportService
func NewReportService(
	projectRepo repository.ProjectRepository,
	taskRepo repository.TaskRepository,
	userRepo repository.UserRepository,
	checker PermissionChecker,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		projectRepo: projectRepo,
		taskRepo:    taskRepo,
		userRepo:    userRepo,
		checker:     checker,
		logger:      logger,
		now:         time.Now,
	}
}

// Dashboard returns personal metrics for members and global metrics otherwise
func (s *ReportService) Dashboard(actor permissions.Actor) (*DashboardMetrics, error) {
	projects, err := s.visibleProjects(actor)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	tasks, _, err := s.taskRepo.List(repository.TaskFilter{ProjectIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	metrics := &DashboardMetrics{}
	if actor.Role == permissions.RoleMember {
		metrics.Scope = "personal"
		metrics.ActiveProjects = len(projects)
		for _, t := range tasks {
			if t.AssigneeID == nil || *t.AssigneeID != actor.UserID {
				continue
			}
			if t.Status == models.TaskStatusDone {
				metrics.CompletedTasks++
				continue
			}
			metrics.InProgressTasks++
			if t.Priority == models.PriorityHigh {
				metrics.HighPriorityTasks++
			}
		}
	} else {
		metrics.Scope = "global"
		for _, p := range projects {
			if p.Status == models.ProjectStatusActive {
				metrics.ActiveProjects++
			}
		}
		for _, t := range tasks {
			if t.Status == models.TaskStatusDone {
				metrics.CompletedTasks++
			} else {
				metrics.InProgressTasks++
			}
			if t.Priority == models.PriorityHigh {
				metrics.HighPriorityTasks++
			}
		}
	}

	done := models.TaskStatusDone
	upcoming, _, err := s.taskRepo.List(repository.TaskFilter{
		AssigneeID:     &actor.UserID,
		ExcludeStatus:  &done,
		HasDeadline:    true,
		SortByDeadline: true,
		Pagination:     utils.NewPaginationParams(1, constants.UpcomingTaskLimit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming tasks: %w", err)
	}
	metrics.Upcoming = upcoming

	return metrics, nil
}

// Tracker reports progress and health for every project the actor can see
func (s *ReportService) Tracker(ctx context.Context, actor permissions.Actor) (*TrackerReport, error) {
	if err := s.checker.Authorize(actor.Role, permissions.ViewReports); err != nil {
		return nil, err
	}

	projects, err := s.visibleProjects(actor)
	if err != nil {
		return nil, err
	}

	now := s.now()
	reports := make([]ProjectReport, len(projects))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(trackerParallel)
	for i, project := range projects {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tasks, err := s.taskRepo.ListByProject(project.ID)
			if err != nil {
				return fmt.Errorf("failed to list tasks of project %d: %w", project.ID, err)
			}
			reports[i] = projectReport(project, tasks, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &TrackerReport{Projects: reports}
	total := 0
	for _, r := range reports {
		total += r.Progress
		switch r.Health {
		case HealthOnTrack:
			report.OnTrack++
		case HealthAtRisk:
			report.AtRisk++
		case HealthOverdue:
			report.Overdue++
		}
	}
	if len(reports) > 0 {
		report.AverageProgress = int(math.Round(float64(total) / float64(len(reports))))
	}
	return report, nil
}

// Workload counts open and done assigned tasks per user
func (s *ReportService) Workload(actor permissions.Actor) ([]MemberWorkload, error) {
	if err := s.checker.Authorize(actor.Role, permissions.ViewTeamWorkload); err != nil {
		return nil, err
	}

	users, err := s.userRepo.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	counts, err := s.taskRepo.CountByAssigneeAndStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	byUser := make(map[uint64]*MemberWorkload, len(users))
	workload := make([]MemberWorkload, len(users))
	for i, u := range users {
		workload[i] = MemberWorkload{UserID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
		byUser[u.ID] = &workload[i]
	}
	for _, c := range counts {
		w, ok := byUser[c.AssigneeID]
		if !ok {
			continue
		}
		if c.Status == models.TaskStatusDone {
			w.Done += c.Count
		} else {
			w.Open += c.Count
		}
	}
	return workload, nil
}

func (s *ReportService) visibleProjects(actor permissions.Actor) ([]models.Project, error) {
	var filter repository.ProjectFilter
	if !seesAllProjects(s.checker, actor) {
		filter.MemberID = &actor.UserID
	}
	projects, err := s.projectRepo.List(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

func projectReport(project models.Project, tasks []models.Task, now time.Time) ProjectReport {
	completed := 0
	for _, t := range tasks {
		if t.Status == models.TaskStatusDone {
			completed++
		}
	}
	return ProjectReport{
		ProjectID:      project.ID,
		Name:           project.Name,
		Status:         project.Status,
		Deadline:       project.Deadline,
		Progress:       Progress(tasks),
		Health:         ProjectHealth(project, tasks, now),
		TaskCount:      len(tasks),
		CompletedTasks: completed,
	}
}
