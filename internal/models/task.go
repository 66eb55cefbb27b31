package models

import (
	"time"

	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
)

// Valid reports whether s is one of the canonical statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	default:
		return false
	}
}

type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "LOW"
	TaskPriorityMedium   TaskPriority = "MEDIUM"
	TaskPriorityHigh     TaskPriority = "HIGH"
	TaskPriorityCritical TaskPriority = "CRITICAL"
)

// Valid reports whether p is one of the canonical priorities.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityCritical:
		return true
	default:
		return false
	}
}

// TagList is stored as a JSON-encoded string column.
type TagList []string

type Task struct {
	ID             uint64         `gorm:"primarykey" json:"id"`
	Name           string         `gorm:"type:varchar(255);not null" json:"name"`
	Description    string         `gorm:"type:text" json:"description"`
	Status         TaskStatus     `gorm:"type:varchar(20);not null;default:'TODO'" json:"status"`
	Priority       TaskPriority   `gorm:"type:varchar(20);not null;default:'MEDIUM'" json:"priority"`
	DueDate        *time.Time     `json:"due_date"`
	ProjectID      uint64         `gorm:"not null;index" json:"project_id"`
	ParentID       *uint64        `gorm:"index" json:"parent_id"`
	Position       int            `gorm:"not null;default:0" json:"position"`
	AssigneeID     *uint64        `json:"assignee_id"`
	Tags           TagList        `gorm:"type:text;serializer:json" json:"tags"`
	EstimatedHours *float64       `json:"estimated_hours"`
	ActualHours    *float64       `json:"actual_hours"`
	CreatorID      uint64         `gorm:"not null" json:"creator_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations. Sub-tasks are never stored on the row; they are derived from
	// ParentID at read time.
	Project  Project       `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Parent   *Task         `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
	Creator  User          `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Assignee *User         `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
	Comments []TaskComment `gorm:"foreignKey:TaskID" json:"comments,omitempty"`
}

// IsOverdue reports whether the task is past due and not done.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && t.Status != TaskStatusDone
}

// Progress returns a coarse completion percentage derived from status.
func (t *Task) Progress() int {
	switch t.Status {
	case TaskStatusDone:
		return 100
	case TaskStatusInProgress:
		return 50
	default:
		return 0
	}
}

// RollUpStatus derives a parent's status from its children: done only when
// every child is done, in progress when any child has started, todo otherwise.
// Callers must not apply this to leaf tasks.
func RollUpStatus(children []Task) TaskStatus {
	if len(children) == 0 {
		return TaskStatusTodo
	}

	allDone := true
	anyStarted := false
	for _, child := range children {
		switch child.Status {
		case TaskStatusDone:
			anyStarted = true
		case TaskStatusInProgress:
			anyStarted = true
			allDone = false
		default:
			allDone = false
		}
	}

	if allDone {
		return TaskStatusDone
	}
	if anyStarted {
		return TaskStatusInProgress
	}
	return TaskStatusTodo
}
