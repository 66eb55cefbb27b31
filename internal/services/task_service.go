package services

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kawasemi/project-tracker-api/internal/models"
	"github.com/kawasemi/project-tracker-api/internal/repository"
	"github.com/kawasemi/project-tracker-api/internal/utils"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound          = errors.New("task not found")
	ErrTaskNameRequired      = errors.New("task name is required")
	ErrInvalidTaskStatus     = errors.New("invalid task status")
	ErrInvalidTaskPriority   = errors.New("invalid task priority")
	ErrNegativeHours         = errors.New("estimated and actual hours must be non-negative")
	ErrParentTaskNotFound    = errors.New("parent task not found")
	ErrParentProjectMismatch = errors.New("parent task belongs to a different project")
	ErrSelfParent            = errors.New("a task cannot be its own parent")
	ErrTaskCycle             = errors.New("reparenting would create a cycle in the task tree")
	ErrInvalidAssignee       = errors.New("assignee has no access to the project")
	ErrNoTaskIDs             = errors.New("at least one task ID is required")
	ErrDuplicateTaskIDs      = errors.New("task IDs must be unique")
	ErrTaskOutsideProject    = errors.New("one or more tasks do not belong to the project")
	ErrCommentBodyRequired   = errors.New("comment body is required")
)

// TaskService maintains the task hierarchy: parent/child linkage, cycle
// prevention, cascade deletion and status roll-up. Structural mutations on a
// project serialize on a per-project lock so concurrent reparents cannot
// reintroduce a cycle between validation and commit.
type TaskService struct {
	taskRepo repository.TaskRepository
	userRepo repository.UserRepository
	access   *AccessService

	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

// NewTaskService creates a new TaskService
func NewTaskService(taskRepo repository.TaskRepository, userRepo repository.UserRepository, access *AccessService) *TaskService {
	return &TaskService{
		taskRepo: taskRepo,
		userRepo: userRepo,
		access:   access,
		locks:    make(map[uint64]*sync.Mutex),
	}
}

// lockProject acquires the project's mutation lock and returns the unlock.
func (s *TaskService) lockProject(projectID uint64) func() {
	s.mu.Lock()
	lock, ok := s.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[projectID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// CreateTaskInput represents input for creating a task
type CreateTaskInput struct {
	Name           string
	Description    string
	Status         models.TaskStatus
	Priority       models.TaskPriority
	DueDate        *time.Time
	ParentID       *uint64
	AssigneeID     *uint64
	Tags           []string
	EstimatedHours *float64
	ActualHours    *float64
	Position       *int
}

// UpdateTaskInput represents input for updating a task. Pointer fields are
// applied only when set; Clear* flags reset the corresponding optional field.
type UpdateTaskInput struct {
	Name           *string
	Description    *string
	Status         *models.TaskStatus
	Priority       *models.TaskPriority
	DueDate        *time.Time
	ClearDueDate   bool
	ParentID       *uint64
	ClearParent    bool
	AssigneeID     *uint64
	ClearAssignee  bool
	Tags           *[]string
	EstimatedHours *float64
	ClearEstimated bool
	ActualHours    *float64
	ClearActual    bool
	Position       *int
}

// ReorderTasksInput represents a sibling/column reorder. Status, when set,
// is applied to every listed task (a drag-and-drop move into a new column).
type ReorderTasksInput struct {
	TaskIDs []uint64
	Status  *models.TaskStatus
}

// CreateTask creates a task under a project, optionally under a parent task,
// after validating the parent reference. Requires the editor role.
func (s *TaskService) CreateTask(projectID, callerID uint64, input CreateTaskInput) (*models.Task, error) {
	unlock := s.lockProject(projectID)
	defer unlock()

	if _, _, err := s.access.Authorize(projectID, callerID, models.RoleEditor); err != nil {
		return nil, err
	}

	if strings.TrimSpace(input.Name) == "" {
		return nil, ErrTaskNameRequired
	}

	if input.Status == "" {
		input.Status = models.TaskStatusTodo
	} else if !input.Status.Valid() {
		return nil, ErrInvalidTaskStatus
	}

	if input.Priority == "" {
		input.Priority = models.TaskPriorityMedium
	} else if !input.Priority.Valid() {
		return nil, ErrInvalidTaskPriority
	}

	if err := validateHours(input.EstimatedHours, input.ActualHours); err != nil {
		return nil, err
	}

	if input.ParentID != nil {
		parent, err := s.taskRepo.FindByID(*input.ParentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrParentTaskNotFound
			}
			return nil, fmt.Errorf("failed to find parent task: %w", err)
		}
		if parent.ProjectID != projectID {
			return nil, ErrParentProjectMismatch
		}
	}

	if input.AssigneeID != nil {
		if err := s.validateAssignee(projectID, *input.AssigneeID); err != nil {
			return nil, err
		}
	}

	position := 0
	if input.Position != nil {
		position = *input.Position
	} else {
		count, err := s.taskRepo.CountSiblings(projectID, input.ParentID)
		if err != nil {
			return nil, fmt.Errorf("failed to count siblings: %w", err)
		}
		position = int(count)
	}

	task := &models.Task{
		Name:           input.Name,
		Description:    input.Description,
		Status:         input.Status,
		Priority:       input.Priority,
		DueDate:        input.DueDate,
		ProjectID:      projectID,
		ParentID:       input.ParentID,
		Position:       position,
		AssigneeID:     input.AssigneeID,
		Tags:           models.TagList(input.Tags),
		EstimatedHours: input.EstimatedHours,
		ActualHours:    input.ActualHours,
		CreatorID:      callerID,
	}

	if err := s.taskRepo.Create(task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// A new child can change its parent's derived status.
	if err := s.rollUpChain(task.ParentID); err != nil {
		return nil, err
	}

	return s.taskRepo.FindByID(task.ID, "Creator", "Assignee")
}

// GetTask returns a task with its comments. Requires the viewer role.
func (s *TaskService) GetTask(projectID, taskID, callerID uint64) (*models.Task, []models.TaskComment, error) {
	if _, _, err := s.access.Authorize(projectID, callerID, models.RoleViewer); err != nil {
		return nil, nil, err
	}

	task, err := s.findProjectTask(projectID, taskID, "Creator", "Assignee")
	if err != nil {
		return nil, nil, err
	}

	comments, err := s.taskRepo.ListComments(taskID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list comments: %w", err)
	}

	return task, comments, nil
}

// ListTasks returns a project's tasks after applying the filter, together
// with the caller's resolved role. Requires the viewer role.
func (s *TaskService) ListTasks(projectID, callerID uint64, filter TaskFilter) ([]models.Task, models.ProjectRole, error) {
	role, _, err := s.access.Authorize(projectID, callerID, models.RoleViewer)
	if err != nil {
		return nil, "", err
	}

	tasks, err := s.taskRepo.ListByProject(projectID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list tasks: %w", err)
	}

	return ApplyTaskFilter(tasks, filter), role, nil
}

// UpdateTask patches a task, including reparenting. Structural violations
// (self-parent, cycle, cross-project parent) are rejected before any write.
// Requires the editor role.
func (s *TaskService) UpdateTask(projectID, taskID, callerID uint64, input UpdateTaskInput) (*models.Task, error) {
	unlock := s.lockProject(projectID)
	defer unlock()

	if _, _, err := s.access.Authorize(projectID, callerID, models.RoleEditor); err != nil {
		return nil, err
	}

	task, err := s.findProjectTask(projectID, taskID)
	if err != nil {
		return nil, err
	}

	oldParentID := task.ParentID
	oldStatus := task.Status

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, ErrTaskNameRequired
		}
		task.Name = *input.Name
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, ErrInvalidTaskStatus
		}
		task.Status = *input.Status
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			return nil, ErrInvalidTaskPriority
		}
		task.Priority = *input.Priority
	}
	if input.ClearDueDate {
		task.DueDate = nil
	} else if input.DueDate != nil {
		task.DueDate = input.DueDate
	}
	if input.Tags != nil {
		task.Tags = models.TagList(*input.Tags)
	}
	if input.ClearEstimated {
		task.EstimatedHours = nil
	} else if input.EstimatedHours != nil {
		task.EstimatedHours = input.EstimatedHours
	}
	if input.ClearActual {
		task.ActualHours = nil
	} else if input.ActualHours != nil {
		task.ActualHours = input.ActualHours
	}
	if err := validateHours(task.EstimatedHours, task.ActualHours); err != nil {
		return nil, err
	}
	if input.Position != nil {
		task.Position = *input.Position
	}

	if input.ClearAssignee {
		task.AssigneeID = nil
	} else if input.AssigneeID != nil {
		if err := s.validateAssignee(projectID, *input.AssigneeID); err != nil {
			return nil, err
		}
		task.AssigneeID = input.AssigneeID
	}

	if input.ClearParent {
		task.ParentID = nil
	} else if input.ParentID != nil {
		if err := s.validateReparent(task, *input.ParentID); err != nil {
			return nil, err
		}
		task.ParentID = input.ParentID
	}

	if err := s.taskRepo.Update(task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	parentChanged := !equalParent(oldParentID, task.ParentID)
	if parentChanged {
		// Both the old and the new ancestor chains may derive new statuses.
		if err := s.rollUpChain(oldParentID); err != nil {
			return nil, err
		}
		if err := s.rollUpChain(task.ParentID); err != nil {
			return nil, err
		}
	} else if task.Status != oldStatus {
		if err := s.rollUpChain(task.ParentID); err != nil {
			return nil, err
		}
	}

	return s.taskRepo.FindByID(task.ID, "Creator", "Assignee")
}

// DeleteTask removes a task and its entire subtree as one unit, then re-derives
// the former parent chain. Requires the editor role.
func (s *TaskService) DeleteTask(projectID, taskID, callerID uint64) error {
	unlock := s.lockProject(projectID)
	defer unlock()

	if _, _, err := s.access.Authorize(projectID, callerID, models.RoleEditor); err != nil {
		return err
	}

	task, err := s.findProjectTask(projectID, taskID)
	if err != nil {
		return err
	}
	oldParentID := task.ParentID

	ids, err := s.collectSubtree(projectID, taskID)
	if err != nil {
		return err
	}

	if err := s.taskRepo.DeleteMany(ids); err != nil {
		return fmt.Errorf("failed to delete task subtree: %w", err)
	}

	return s.rollUpChain(oldParentID)
}

// ReorderTasks assigns position = index within the supplied sequence. The
// caller scopes the set (typically one status column); every ID must belong
// to the project and appear once. Requires the editor role.
func (s *TaskService) ReorderTasks(projectID, callerID uint64, input ReorderTasksInput) error {
	unlock := s.lockProject(projectID)
	defer unlock()

	if _, _, err := s.access.Authorize(projectID, callerID, models.RoleEditor); err != nil {
		return err
	}

	if len(input.TaskIDs) == 0 {
		return ErrNoTaskIDs
	}

	seen := make(map[uint64]struct{}, len(input.TaskIDs))
	for _, id := range input.TaskIDs {
		if _, dup := seen[id]; dup {
			return ErrDuplicateTaskIDs
		}
		seen[id] = struct{}{}
	}

	if input.Status != nil && !input.Status.Valid() {
		return ErrInvalidTaskStatus
	}

	count, err := s.taskRepo.CountByProjectAndIDs(projectID, input.TaskIDs)
	if err != nil {
		return fmt.Errorf("failed to verify tasks: %w", err)
	}
	if int(count) != len(input.TaskIDs) {
		return ErrTaskOutsideProject
	}

	// Parents whose derived status may change when the column move sets a
	// new status on their children.
	var parentIDs []*uint64
	if input.Status != nil {
		tasks, err := s.taskRepo.ListByProject(projectID)
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}
		distinct := make(map[uint64]struct{})
		for _, t := range tasks {
			if _, ok := seen[t.ID]; !ok || t.ParentID == nil {
				continue
			}
			if _, ok := distinct[*t.ParentID]; !ok {
				distinct[*t.ParentID] = struct{}{}
				parentIDs = append(parentIDs, t.ParentID)
			}
		}
	}

	if err := s.taskRepo.UpdatePositions(projectID, input.TaskIDs, input.Status); err != nil {
		return fmt.Errorf("failed to update positions: %w", err)
	}

	for _, parentID := range parentIDs {
		if err := s.rollUpChain(parentID); err != nil {
			return err
		}
	}

	return nil
}

// AddComment appends a comment to a task. Requires the viewer role.
func (s *TaskService) AddComment(projectID, taskID, callerID uint64, body string) (*models.TaskComment, error) {
	if _, _, err := s.access.Authorize(projectID, callerID, models.RoleViewer); err != nil {
		return nil, err
	}

	if strings.TrimSpace(body) == "" {
		return nil, ErrCommentBodyRequired
	}

	if _, err := s.findProjectTask(projectID, taskID); err != nil {
		return nil, err
	}

	comment := &models.TaskComment{
		TaskID:   taskID,
		AuthorID: callerID,
		Body:     body,
	}

	if err := s.taskRepo.AddComment(comment); err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}

	author, err := s.userRepo.FindByID(callerID)
	if err == nil {
		comment.Author = *author
	}

	return comment, nil
}

// ListComments returns one page of a task's comments with the total count.
// Requires the viewer role.
func (s *TaskService) ListComments(projectID, taskID, callerID uint64, params utils.PaginationParams) ([]models.TaskComment, int64, error) {
	if _, _, err := s.access.Authorize(projectID, callerID, models.RoleViewer); err != nil {
		return nil, 0, err
	}

	if _, err := s.findProjectTask(projectID, taskID); err != nil {
		return nil, 0, err
	}

	comments, total, err := s.taskRepo.ListCommentsPage(taskID, params)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list comments: %w", err)
	}

	return comments, total, nil
}

// findProjectTask loads a task and verifies it belongs to the project. Tasks
// from other projects are reported as not found rather than leaked.
func (s *TaskService) findProjectTask(projectID, taskID uint64, preload ...string) (*models.Task, error) {
	task, err := s.taskRepo.FindByID(taskID, preload...)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	if task.ProjectID != projectID {
		return nil, ErrTaskNotFound
	}

	return task, nil
}

// validateReparent rejects self-parenting, cross-project parents and cycles.
// Cycles are detected by walking newParent's ancestor chain: if the chain
// reaches the task being moved, the new parent is one of its descendants.
func (s *TaskService) validateReparent(task *models.Task, newParentID uint64) error {
	if newParentID == task.ID {
		return ErrSelfParent
	}

	parent, err := s.taskRepo.FindByID(newParentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrParentTaskNotFound
		}
		return fmt.Errorf("failed to find parent task: %w", err)
	}

	if parent.ProjectID != task.ProjectID {
		return ErrParentProjectMismatch
	}

	visited := make(map[uint64]struct{})
	current := parent
	for {
		if current.ID == task.ID {
			return ErrTaskCycle
		}
		if _, seen := visited[current.ID]; seen {
			// Pre-existing corruption; refuse to extend it.
			return ErrTaskCycle
		}
		visited[current.ID] = struct{}{}

		if current.ParentID == nil {
			return nil
		}

		current, err = s.taskRepo.FindByID(*current.ParentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to walk ancestor chain: %w", err)
		}
	}
}

// collectSubtree returns the task and all of its descendants, gathered with
// an explicit worklist so deep hierarchies cannot exhaust the stack.
func (s *TaskService) collectSubtree(projectID, taskID uint64) ([]uint64, error) {
	tasks, err := s.taskRepo.ListByProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	childIndex := make(map[uint64][]uint64, len(tasks))
	for _, t := range tasks {
		if t.ParentID != nil {
			childIndex[*t.ParentID] = append(childIndex[*t.ParentID], t.ID)
		}
	}

	ids := make([]uint64, 0)
	seen := make(map[uint64]struct{})
	worklist := []uint64{taskID}
	for len(worklist) > 0 {
		id := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		worklist = append(worklist, childIndex[id]...)
	}

	return ids, nil
}

// rollUpChain recomputes derived statuses walking up from the given parent
// until a node's status is unchanged by the rule or the root is reached.
// Leaf tasks are never touched.
func (s *TaskService) rollUpChain(parentID *uint64) error {
	visited := make(map[uint64]struct{})

	for parentID != nil {
		id := *parentID
		if _, seen := visited[id]; seen {
			return nil
		}
		visited[id] = struct{}{}

		parent, err := s.taskRepo.FindByID(id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to find parent task: %w", err)
		}

		children, err := s.taskRepo.ListChildren(id)
		if err != nil {
			return fmt.Errorf("failed to list children: %w", err)
		}
		if len(children) == 0 {
			return nil
		}

		derived := models.RollUpStatus(children)
		if derived == parent.Status {
			return nil
		}

		parent.Status = derived
		if err := s.taskRepo.Update(parent); err != nil {
			return fmt.Errorf("failed to roll up status: %w", err)
		}

		parentID = parent.ParentID
	}

	return nil
}

// validateAssignee ensures the assignee can at least view the project.
func (s *TaskService) validateAssignee(projectID, assigneeID uint64) error {
	if _, _, err := s.access.Authorize(projectID, assigneeID, models.RoleViewer); err != nil {
		if errors.Is(err, ErrProjectAccessDenied) || errors.Is(err, ErrInsufficientRole) {
			return ErrInvalidAssignee
		}
		return err
	}
	return nil
}

func validateHours(estimated, actual *float64) error {
	if estimated != nil && *estimated < 0 {
		return ErrNegativeHours
	}
	if actual != nil && *actual < 0 {
		return ErrNegativeHours
	}
	return nil
}

func equalParent(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
