package services

import (
	"strings"
	"time"

	"github.com/kawasemi/project-tracker-api/internal/models"
)

// TaskFilter holds the optional predicates applied when listing tasks.
// Active predicates combine with logical AND; a zero filter passes everything.
type TaskFilter struct {
	Status     *models.TaskStatus
	Priority   *models.TaskPriority
	DueFrom    *time.Time
	DueTo      *time.Time
	AssigneeID *uint64
	Tags       string
	Search     string
}

// IsZero reports whether no predicate is active.
func (f TaskFilter) IsZero() bool {
	return f.Status == nil &&
		f.Priority == nil &&
		f.DueFrom == nil &&
		f.DueTo == nil &&
		f.AssigneeID == nil &&
		f.Tags == "" &&
		f.Search == ""
}

// Matches reports whether a task passes every active predicate.
func (f TaskFilter) Matches(t *models.Task) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}

	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}

	// Date bounds compare calendar dates only. A task without a due date is
	// never excluded by date bounds.
	if t.DueDate != nil {
		due := dateOnly(*t.DueDate)
		if f.DueFrom != nil && due.Before(dateOnly(*f.DueFrom)) {
			return false
		}
		if f.DueTo != nil && due.After(dateOnly(*f.DueTo)) {
			return false
		}
	}

	if f.AssigneeID != nil {
		if t.AssigneeID == nil || *t.AssigneeID != *f.AssigneeID {
			return false
		}
	}

	if f.Tags != "" && !matchesTags(t.Tags, f.Tags) {
		return false
	}

	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Name), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) {
			return false
		}
	}

	return true
}

// ApplyTaskFilter returns the tasks passing the filter, preserving input order.
func ApplyTaskFilter(tasks []models.Task, f TaskFilter) []models.Task {
	if f.IsZero() {
		return tasks
	}

	filtered := make([]models.Task, 0, len(tasks))
	for _, task := range tasks {
		if f.Matches(&task) {
			filtered = append(filtered, task)
		}
	}
	return filtered
}

// matchesTags reports whether any task tag contains any of the comma-separated
// filter fragments, case-insensitively.
func matchesTags(tags models.TagList, filter string) bool {
	fragments := make([]string, 0)
	for _, fragment := range strings.Split(filter, ",") {
		fragment = strings.ToLower(strings.TrimSpace(fragment))
		if fragment != "" {
			fragments = append(fragments, fragment)
		}
	}
	if len(fragments) == 0 {
		return true
	}

	for _, tag := range tags {
		lowered := strings.ToLower(tag)
		for _, fragment := range fragments {
			if strings.Contains(lowered, fragment) {
				return true
			}
		}
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
