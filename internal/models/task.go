package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusReview, TaskStatusDone:
		return true
	}
	return false
}

// TaskNumberIndex is the unique index backing per-project task numbers.
const TaskNumberIndex = "idx_tasks_project_task_no"

type Task struct {
	ID          uint64         `gorm:"primarykey" json:"id"`
	ProjectID   uint64         `gorm:"not null;uniqueIndex:idx_tasks_project_task_no,priority:1" json:"project_id"`
	TaskNo      uint64         `gorm:"not null;uniqueIndex:idx_tasks_project_task_no,priority:2" json:"task_no"`
	CustomID    string         `gorm:"type:varchar(20);not null" json:"custom_id"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Status      TaskStatus     `gorm:"type:varchar(20);not null;default:'todo'" json:"status"`
	Priority    Priority       `gorm:"type:varchar(20);not null;default:'Medium'" json:"priority"`
	Deadline    *time.Time     `json:"deadline"`
	AssigneeID  *uint64        `gorm:"index" json:"assignee_id"`
	CreatorID   uint64         `gorm:"not null" json:"creator_id"`
	Attributes  map[string]any `gorm:"serializer:json;type:text" json:"attributes,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Assignee *User `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
}

// FormatCustomID renders a task number as its display id: TK-001, TK-042, TK-1000.
func FormatCustomID(taskNo uint64) string {
	return fmt.Sprintf("TK-%03d", taskNo)
}
