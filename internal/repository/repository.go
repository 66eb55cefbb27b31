package repository

import (
	"github.com/kawasemi/project-tracker-api/internal/models"
	"github.com/kawasemi/project-tracker-api/internal/utils"
)

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	// Create creates a new task
	Create(task *models.Task) error

	// FindByID finds a task by ID with optional preloading
	FindByID(id uint64, preload ...string) (*models.Task, error)

	// ListByProject returns every task belonging to a project
	ListByProject(projectID uint64) ([]models.Task, error)

	// ListChildren returns the direct children of a task
	ListChildren(parentID uint64) ([]models.Task, error)

	// CountSiblings counts tasks sharing a project and parent slot
	CountSiblings(projectID uint64, parentID *uint64) (int64, error)

	// CountByProjectAndIDs counts how many of the given task IDs belong to the project
	CountByProjectAndIDs(projectID uint64, ids []uint64) (int64, error)

	// Update persists changes to a task
	Update(task *models.Task) error

	// DeleteMany soft deletes a set of tasks and their comments atomically
	DeleteMany(ids []uint64) error

	// UpdatePositions assigns position = index for each ID, and optionally a
	// status for the whole set, in one transaction
	UpdatePositions(projectID uint64, orderedIDs []uint64, status *models.TaskStatus) error

	// AddComment appends a comment to a task
	AddComment(comment *models.TaskComment) error

	// ListComments returns a task's comments oldest first
	ListComments(taskID uint64) ([]models.TaskComment, error)

	// ListCommentsPage returns one page of a task's comments plus the total count
	ListCommentsPage(taskID uint64, params utils.PaginationParams) ([]models.TaskComment, int64, error)
}

// ProjectRepository defines the interface for project data access
type ProjectRepository interface {
	// Create creates a new project
	Create(project *models.Project) error

	// FindByID finds a project by ID
	FindByID(id uint64) (*models.Project, error)

	// ListByOwner returns projects owned by a user
	ListByOwner(ownerID uint64) ([]models.Project, error)

	// Update updates a project
	Update(project *models.Project) error

	// Delete deletes a project and all related data
	Delete(id uint64) error

	// UpsertMember adds a member or replaces an existing member's role
	UpsertMember(member *models.ProjectMember) error

	// RemoveMember removes a member from a project
	RemoveMember(projectID, userID uint64) error

	// FindMember finds a specific project member
	FindMember(projectID, userID uint64) (*models.ProjectMember, error)

	// ListMembersByUserID lists all projects shared with a user
	ListMembersByUserID(userID uint64) ([]models.ProjectMember, error)

	// ListMembers lists all members of a project
	ListMembers(projectID uint64) ([]models.ProjectMember, error)
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Create creates a new user
	Create(user *models.User) error

	// FindByID finds a user by ID
	FindByID(id uint64) (*models.User, error)

	// FindByEmail finds a user by email
	FindByEmail(email string) (*models.User, error)

	// Update persists changes to a user
	Update(user *models.User) error

	// Delete soft deletes a user
	Delete(id uint64) error
}
