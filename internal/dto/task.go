package dto

import (
	"sort"
	"time"

	"github.com/kawasemi/project-tracker-api/internal/models"
)

// TaskDTO represents a task in API responses. SubTasks is the computed
// children view, nested recursively.
type TaskDTO struct {
	ID             uint64              `json:"id"`
	Name           string              `json:"name"`
	Description    string              `json:"description"`
	Status         models.TaskStatus   `json:"status"`
	Priority       models.TaskPriority `json:"priority"`
	DueDate        *time.Time          `json:"due_date"`
	ProjectID      uint64              `json:"project_id"`
	ParentID       *uint64             `json:"parent_id"`
	Position       int                 `json:"position"`
	AssigneeID     *uint64             `json:"assignee_id"`
	Tags           []string            `json:"tags"`
	EstimatedHours *float64            `json:"estimated_hours"`
	ActualHours    *float64            `json:"actual_hours"`
	CreatorID      uint64              `json:"creator_id"`
	IsOverdue      bool                `json:"is_overdue"`
	Progress       int                 `json:"progress"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	Creator        *UserDTO            `json:"creator,omitempty"`
	Assignee       *UserDTO            `json:"assignee,omitempty"`
	SubTasks       []TaskDTO           `json:"sub_tasks"`
}

// TaskCommentDTO represents a comment in API responses
type TaskCommentDTO struct {
	ID        uint64    `json:"id"`
	AuthorID  uint64    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Author    *UserDTO  `json:"author,omitempty"`
}

// TaskDetailDTO is a task with its comment thread
type TaskDetailDTO struct {
	TaskDTO
	Comments []TaskCommentDTO `json:"comments"`
}

// ToTaskDTO converts a Task model to TaskDTO without children
func ToTaskDTO(task models.Task, now time.Time) TaskDTO {
	dto := TaskDTO{
		ID:             task.ID,
		Name:           task.Name,
		Description:    task.Description,
		Status:         task.Status,
		Priority:       task.Priority,
		DueDate:        task.DueDate,
		ProjectID:      task.ProjectID,
		ParentID:       task.ParentID,
		Position:       task.Position,
		AssigneeID:     task.AssigneeID,
		Tags:           task.Tags,
		EstimatedHours: task.EstimatedHours,
		ActualHours:    task.ActualHours,
		CreatorID:      task.CreatorID,
		IsOverdue:      task.IsOverdue(now),
		Progress:       task.Progress(),
		CreatedAt:      task.CreatedAt,
		UpdatedAt:      task.UpdatedAt,
		SubTasks:       []TaskDTO{},
	}

	if dto.Tags == nil {
		dto.Tags = []string{}
	}

	// Include creator if preloaded
	if task.Creator.ID != 0 {
		creator := ToUserDTO(task.Creator)
		dto.Creator = &creator
	}

	// Include assignee if preloaded
	if task.Assignee != nil && task.Assignee.ID != 0 {
		assignee := ToUserDTO(*task.Assignee)
		dto.Assignee = &assignee
	}

	return dto
}

// ToTaskCommentDTO converts a comment model to DTO
func ToTaskCommentDTO(comment models.TaskComment) TaskCommentDTO {
	dto := TaskCommentDTO{
		ID:        comment.ID,
		AuthorID:  comment.AuthorID,
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt,
	}

	if comment.Author.ID != 0 {
		author := ToUserDTO(comment.Author)
		dto.Author = &author
	}

	return dto
}

// ToTaskDetailDTO converts a task and its comments to a detail DTO
func ToTaskDetailDTO(task models.Task, comments []models.TaskComment, now time.Time) TaskDetailDTO {
	commentDTOs := make([]TaskCommentDTO, len(comments))
	for i, comment := range comments {
		commentDTOs[i] = ToTaskCommentDTO(comment)
	}

	return TaskDetailDTO{
		TaskDTO:  ToTaskDTO(task, now),
		Comments: commentDTOs,
	}
}

// BuildTaskTree nests a flat task set into root tasks with recursive
// SubTasks. A task whose parent is absent from the set (filtered out, or a
// true root) surfaces as a root. Siblings order by position, then ID.
func BuildTaskTree(tasks []models.Task, now time.Time) []TaskDTO {
	nodes := make(map[uint64]*TaskDTO, len(tasks))
	order := make([]uint64, 0, len(tasks))
	for _, task := range tasks {
		dto := ToTaskDTO(task, now)
		nodes[task.ID] = &dto
		order = append(order, task.ID)
	}

	roots := make([]*TaskDTO, 0)
	childIndex := make(map[uint64][]*TaskDTO)
	for _, id := range order {
		node := nodes[id]
		if node.ParentID != nil {
			if _, ok := nodes[*node.ParentID]; ok {
				childIndex[*node.ParentID] = append(childIndex[*node.ParentID], node)
				continue
			}
		}
		roots = append(roots, node)
	}

	var attach func(node *TaskDTO) TaskDTO
	attach = func(node *TaskDTO) TaskDTO {
		children := childIndex[node.ID]
		sort.SliceStable(children, func(i, j int) bool {
			if children[i].Position != children[j].Position {
				return children[i].Position < children[j].Position
			}
			return children[i].ID < children[j].ID
		})

		result := *node
		result.SubTasks = make([]TaskDTO, 0, len(children))
		for _, child := range children {
			result.SubTasks = append(result.SubTasks, attach(child))
		}
		return result
	}

	sort.SliceStable(roots, func(i, j int) bool {
		if roots[i].Position != roots[j].Position {
			return roots[i].Position < roots[j].Position
		}
		return roots[i].ID < roots[j].ID
	})

	tree := make([]TaskDTO, 0, len(roots))
	for _, root := range roots {
		tree = append(tree, attach(root))
	}
	return tree
}
