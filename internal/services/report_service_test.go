package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/testhelpers"
)

func tasksWithStatus(statuses ...models.TaskStatus) []models.Task {
	tasks := make([]models.Task, len(statuses))
	for i, s := range statuses {
		tasks[i] = models.Task{Status: s}
	}
	return tasks
}

func TestProgress(t *testing.T) {
	done, todo := models.TaskStatusDone, models.TaskStatusTodo
	tests := []struct {
		name  string
		tasks []models.Task
		want  int
	}{
		{"no tasks", nil, 0},
		{"none done", tasksWithStatus(todo, todo), 0},
		{"one of three", tasksWithStatus(done, todo, todo), 33},
		{"two of three rounds up", tasksWithStatus(done, done, todo), 67},
		{"all done", tasksWithStatus(done, done), 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Progress(tt.tasks))
		})
	}
}

func TestProjectHealth(t *testing.T) {
	now := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}
	done, todo := models.TaskStatusDone, models.TaskStatusTodo

	tests := []struct {
		name     string
		deadline *time.Time
		tasks    []models.Task
		want     Health
	}{
		{"no deadline", nil, tasksWithStatus(todo), HealthOnTrack},
		{"past and unfinished", at(-time.Hour), tasksWithStatus(done, todo), HealthOverdue},
		{"past but finished", at(-time.Hour), tasksWithStatus(done), HealthOnTrack},
		{"close and behind", at(48 * time.Hour), tasksWithStatus(todo, todo, done), HealthAtRisk},
		{"close but half done", at(48 * time.Hour), tasksWithStatus(todo, done), HealthOnTrack},
		{"far away", at(10 * 24 * time.Hour), tasksWithStatus(todo), HealthOnTrack},
		{"empty project near deadline", at(time.Hour), nil, HealthAtRisk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project := models.Project{Deadline: tt.deadline}
			assert.Equal(t, tt.want, ProjectHealth(project, tt.tasks, now))
		})
	}
}

func TestReportService_Dashboard(t *testing.T) {
	f := newFixture(t)
	tasks := f.taskService(nil)
	reports := f.reportService()
	ctx := context.Background()

	soon := time.Now().Add(24 * time.Hour)
	later := time.Now().Add(72 * time.Hour)
	for _, in := range []CreateTaskInput{
		{Title: "Later", Priority: models.PriorityHigh, Deadline: &later, AssigneeID: &f.member.UserID},
		{Title: "Soon", Deadline: &soon, AssigneeID: &f.member.UserID},
		{Title: "Finished", Status: models.TaskStatusDone, Deadline: &soon, AssigneeID: &f.member.UserID},
		{Title: "No deadline", AssigneeID: &f.member.UserID},
		{Title: "Someone else", Priority: models.PriorityHigh},
	} {
		_, err := tasks.CreateTask(ctx, f.manager, f.project.ID, in)
		require.NoError(t, err)
	}

	personal, err := reports.Dashboard(f.member)
	require.NoError(t, err)
	assert.Equal(t, "personal", personal.Scope)
	assert.Equal(t, 1, personal.ActiveProjects)
	assert.Equal(t, 1, personal.CompletedTasks)
	assert.Equal(t, 3, personal.InProgressTasks)
	assert.Equal(t, 1, personal.HighPriorityTasks)
	require.Len(t, personal.Upcoming, 2)
	assert.Equal(t, "Soon", personal.Upcoming[0].Title)
	assert.Equal(t, "Later", personal.Upcoming[1].Title)

	global, err := reports.Dashboard(f.manager)
	require.NoError(t, err)
	assert.Equal(t, "global", global.Scope)
	assert.Equal(t, 1, global.ActiveProjects)
	assert.Equal(t, 1, global.CompletedTasks)
	assert.Equal(t, 4, global.InProgressTasks)
	assert.Equal(t, 2, global.HighPriorityTasks)
	assert.Empty(t, global.Upcoming)

	lonely, err := reports.Dashboard(f.outsider)
	require.NoError(t, err)
	assert.Zero(t, lonely.ActiveProjects)
	assert.Zero(t, lonely.InProgressTasks)
}

func TestReportService_Tracker(t *testing.T) {
	f := newFixture(t)
	tasks := f.taskService(nil)
	reports := f.reportService()
	now := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	reports.now = func() time.Time { return now }
	ctx := context.Background()

	overdue := testhelpers.CreateProject(t, f.db, "Late", f.manager.UserID)
	past := now.Add(-time.Hour)
	require.NoError(t, f.db.Model(overdue).Update("deadline", past).Error)

	for _, status := range []models.TaskStatus{models.TaskStatusDone, models.TaskStatusTodo} {
		_, err := tasks.CreateTask(ctx, f.manager, f.project.ID, CreateTaskInput{Title: "t", Status: status})
		require.NoError(t, err)
		_, err = tasks.CreateTask(ctx, f.manager, overdue.ID, CreateTaskInput{Title: "t", Status: status})
		require.NoError(t, err)
	}

	_, err := reports.Tracker(ctx, f.member)
	assert.ErrorIs(t, err, permissions.ErrForbidden)

	report, err := reports.Tracker(ctx, f.manager)
	require.NoError(t, err)
	require.Len(t, report.Projects, 2)
	assert.Equal(t, 50, report.AverageProgress)
	assert.Equal(t, 1, report.OnTrack)
	assert.Equal(t, 1, report.Overdue)
	assert.Zero(t, report.AtRisk)
	for _, p := range report.Projects {
		assert.Equal(t, 2, p.TaskCount)
		assert.Equal(t, 1, p.CompletedTasks)
	}
}

func TestReportService_Workload(t *testing.T) {
	f := newFixture(t)
	tasks := f.taskService(nil)
	reports := f.reportService()
	ctx := context.Background()

	for _, status := range []models.TaskStatus{models.TaskStatusTodo, models.TaskStatusReview, models.TaskStatusDone} {
		_, err := tasks.CreateTask(ctx, f.manager, f.project.ID, CreateTaskInput{
			Title: "t", Status: status, AssigneeID: &f.member.UserID,
		})
		require.NoError(t, err)
	}

	_, err := reports.Workload(f.member)
	assert.ErrorIs(t, err, permissions.ErrForbidden)

	workload, err := reports.Workload(f.manager)
	require.NoError(t, err)
	require.Len(t, workload, 4)

	byEmail := make(map[string]MemberWorkload, len(workload))
	for _, w := range workload {
		byEmail[w.Email] = w
	}
	assert.Equal(t, int64(2), byEmail["member@example.com"].Open)
	assert.Equal(t, int64(1), byEmail["member@example.com"].Done)
	assert.Zero(t, byEmail["manager@example.com"].Open)
}
