package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kawasemi/project-tracker-api/internal/dto"
	apierrors "github.com/kawasemi/project-tracker-api/internal/errors"
	"github.com/kawasemi/project-tracker-api/internal/models"
	"github.com/kawasemi/project-tracker-api/internal/services"
	"github.com/kawasemi/project-tracker-api/internal/utils"
)

// TaskHandler coordinates task HTTP handlers.
type TaskHandler struct {
	taskService *services.TaskService
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
	}
}

// ListTasks returns the project's tasks as a nested tree, after applying
// query-string filters.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	projectID, userID, ok := projectRequestIDs(c)
	if !ok {
		return
	}

	filter, ok := parseTaskFilter(c)
	if !ok {
		return
	}

	tasks, role, err := h.taskService.ListTasks(projectID, userID, filter)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks":     dto.BuildTaskTree(tasks, time.Now()),
		"your_role": role,
	})
}

// GetTask returns a single task with its comments.
func (h *TaskHandler) GetTask(c *gin.Context) {
	projectID, userID, ok := projectRequestIDs(c)
	if !ok {
		return
	}
	taskID, ok := taskParam(c)
	if !ok {
		return
	}

	task, comments, err := h.taskService.GetTask(projectID, taskID, userID)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDetailDTO(*task, comments, time.Now()))
}

// CreateTask creates a new task, optionally under a parent task.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	projectID, userID, ok := projectRequestIDs(c)
	if !ok {
		return
	}

	type CreateTaskRequest struct {
		Name           string              `json:"name" binding:"required"`
		Description    string              `json:"description"`
		Status         models.TaskStatus   `json:"status"`
		Priority       models.TaskPriority `json:"priority"`
		DueDate        *time.Time          `json:"due_date"`
		ParentID       *uint64             `json:"parent_id"`
		AssigneeID     *uint64             `json:"assignee_id"`
		Tags           []string            `json:"tags"`
		EstimatedHours *float64            `json:"estimated_hours"`
		ActualHours    *float64            `json:"actual_hours"`
		Position       *int                `json:"position"`
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	task, err := h.taskService.CreateTask(projectID, userID, services.CreateTaskInput{
		Name:           req.Name,
		Description:    req.Description,
		Status:         req.Status,
		Priority:       req.Priority,
		DueDate:        req.DueDate,
		ParentID:       req.ParentID,
		AssigneeID:     req.AssigneeID,
		Tags:           req.Tags,
		EstimatedHours: req.EstimatedHours,
		ActualHours:    req.ActualHours,
		Position:       req.Position,
	})
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToTaskDTO(*task, time.Now()))
}

// UpdateTask patches a task. The raw body is inspected so that explicit nulls
// clear optional fields (due date, parent, assignee, hours) while absent keys
// leave them untouched.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	projectID, userID, ok := projectRequestIDs(c)
	if !ok {
		return
	}
	taskID, ok := taskParam(c)
	if !ok {
		return
	}

	var rawReq map[string]any
	if err := c.ShouldBindJSON(&rawReq); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	input, ok := buildUpdateTaskInput(c, rawReq)
	if !ok {
		return
	}

	task, err := h.taskService.UpdateTask(projectID, taskID, userID, input)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*task, time.Now()))
}

// DeleteTask removes a task and its entire subtree.
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	projectID, userID, ok := projectRequestIDs(c)
	if !ok {
		return
	}
	taskID, ok := taskParam(c)
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(projectID, taskID, userID); err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task deleted successfully",
	})
}

// ReorderTasks assigns display positions from the supplied ID sequence, with
// an optional status for drag-and-drop column moves.
func (h *TaskHandler) ReorderTasks(c *gin.Context) {
	projectID, userID, ok := projectRequestIDs(c)
	if !ok {
		return
	}

	type ReorderRequest struct {
		TaskIDs []uint64           `json:"task_ids" binding:"required"`
		Status  *models.TaskStatus `json:"status"`
	}

	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	err := h.taskService.ReorderTasks(projectID, userID, services.ReorderTasksInput{
		TaskIDs: req.TaskIDs,
		Status:  req.Status,
	})
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Tasks reordered successfully",
	})
}

// ListComments returns a page of a task's comments with pagination metadata.
func (h *TaskHandler) ListComments(c *gin.Context) {
	projectID, userID, ok := projectRequestIDs(c)
	if !ok {
		return
	}
	taskID, ok := taskParam(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)

	comments, total, err := h.taskService.ListComments(projectID, taskID, userID, params)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	commentDTOs := make([]dto.TaskCommentDTO, len(comments))
	for i, comment := range comments {
		commentDTOs[i] = dto.ToTaskCommentDTO(comment)
	}

	c.JSON(http.StatusOK, gin.H{
		"comments": commentDTOs,
		"pagination": utils.PaginationResponse{
			Page:  params.Page,
			Limit: params.Limit,
			Total: total,
		},
	})
}

// AddComment appends a comment to a task.
func (h *TaskHandler) AddComment(c *gin.Context) {
	projectID, userID, ok := projectRequestIDs(c)
	if !ok {
		return
	}
	taskID, ok := taskParam(c)
	if !ok {
		return
	}

	type AddCommentRequest struct {
		Body string `json:"body" binding:"required"`
	}

	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	comment, err := h.taskService.AddComment(projectID, taskID, userID, req.Body)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToTaskCommentDTO(*comment))
}

func taskParam(c *gin.Context) (uint64, bool) {
	taskID, err := strconv.ParseUint(c.Param("task_id"), 10, 64)
	if err != nil {
		apierrors.BadRequest(c, "Invalid task ID")
		return 0, false
	}
	return taskID, true
}

// parseTaskFilter extracts filter predicates from the query string.
func parseTaskFilter(c *gin.Context) (services.TaskFilter, bool) {
	var filter services.TaskFilter

	if status := c.Query("status"); status != "" {
		s := models.TaskStatus(status)
		if !s.Valid() {
			apierrors.BadRequest(c, "Invalid status filter")
			return filter, false
		}
		filter.Status = &s
	}
	if priority := c.Query("priority"); priority != "" {
		p := models.TaskPriority(priority)
		if !p.Valid() {
			apierrors.BadRequest(c, "Invalid priority filter")
			return filter, false
		}
		filter.Priority = &p
	}
	if from := c.Query("due_from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			apierrors.BadRequest(c, "Invalid due_from date, expected YYYY-MM-DD")
			return filter, false
		}
		filter.DueFrom = &t
	}
	if to := c.Query("due_to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			apierrors.BadRequest(c, "Invalid due_to date, expected YYYY-MM-DD")
			return filter, false
		}
		filter.DueTo = &t
	}
	if assignee := c.Query("assignee_id"); assignee != "" {
		id, err := strconv.ParseUint(assignee, 10, 64)
		if err != nil {
			apierrors.BadRequest(c, "Invalid assignee_id")
			return filter, false
		}
		filter.AssigneeID = &id
	}
	filter.Tags = c.Query("tags")
	filter.Search = c.Query("search")

	return filter, true
}

// buildUpdateTaskInput maps the raw JSON patch body onto the service input,
// distinguishing explicit nulls from absent keys.
func buildUpdateTaskInput(c *gin.Context, rawReq map[string]any) (services.UpdateTaskInput, bool) {
	var input services.UpdateTaskInput

	if name, ok := rawReq["name"]; ok {
		if nameStr, ok := name.(string); ok {
			input.Name = &nameStr
		}
	}
	if description, ok := rawReq["description"]; ok {
		if descStr, ok := description.(string); ok {
			input.Description = &descStr
		}
	}
	if status, ok := rawReq["status"]; ok {
		if statusStr, ok := status.(string); ok {
			s := models.TaskStatus(statusStr)
			input.Status = &s
		}
	}
	if priority, ok := rawReq["priority"]; ok {
		if priorityStr, ok := priority.(string); ok {
			p := models.TaskPriority(priorityStr)
			input.Priority = &p
		}
	}
	if _, ok := rawReq["due_date"]; ok {
		if rawReq["due_date"] == nil {
			input.ClearDueDate = true
		} else if dueDateStr, ok := rawReq["due_date"].(string); ok {
			parsed, err := time.Parse(time.RFC3339, dueDateStr)
			if err != nil {
				apierrors.BadRequest(c, "Invalid due_date, expected RFC3339")
				return input, false
			}
			input.DueDate = &parsed
		}
	}
	if _, ok := rawReq["parent_id"]; ok {
		if rawReq["parent_id"] == nil {
			input.ClearParent = true
		} else if parentFloat, ok := rawReq["parent_id"].(float64); ok {
			parentID := uint64(parentFloat)
			input.ParentID = &parentID
		}
	}
	if _, ok := rawReq["assignee_id"]; ok {
		if rawReq["assignee_id"] == nil {
			input.ClearAssignee = true
		} else if assigneeFloat, ok := rawReq["assignee_id"].(float64); ok {
			assigneeID := uint64(assigneeFloat)
			input.AssigneeID = &assigneeID
		}
	}
	if tags, ok := rawReq["tags"]; ok {
		if tagsSlice, ok := tags.([]any); ok {
			tagStrings := make([]string, 0, len(tagsSlice))
			for _, tag := range tagsSlice {
				if tagStr, ok := tag.(string); ok {
					tagStrings = append(tagStrings, tagStr)
				}
			}
			input.Tags = &tagStrings
		}
	}
	if _, ok := rawReq["estimated_hours"]; ok {
		if rawReq["estimated_hours"] == nil {
			input.ClearEstimated = true
		} else if hours, ok := rawReq["estimated_hours"].(float64); ok {
			input.EstimatedHours = &hours
		}
	}
	if _, ok := rawReq["actual_hours"]; ok {
		if rawReq["actual_hours"] == nil {
			input.ClearActual = true
		} else if hours, ok := rawReq["actual_hours"].(float64); ok {
			input.ActualHours = &hours
		}
	}
	if position, ok := rawReq["position"]; ok {
		if posFloat, ok := position.(float64); ok {
			pos := int(posFloat)
			input.Position = &pos
		}
	}

	return input, true
}

func respondTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrProjectNotFound),
		errors.Is(err, services.ErrTaskNotFound):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, services.ErrProjectAccessDenied):
		apierrors.Forbidden(c, err.Error())
	case errors.Is(err, services.ErrInsufficientRole):
		apierrors.InsufficientPermissions(c, err.Error())
	case errors.Is(err, services.ErrTaskNameRequired),
		errors.Is(err, services.ErrInvalidTaskStatus),
		errors.Is(err, services.ErrInvalidTaskPriority),
		errors.Is(err, services.ErrNegativeHours),
		errors.Is(err, services.ErrParentTaskNotFound),
		errors.Is(err, services.ErrInvalidAssignee),
		errors.Is(err, services.ErrNoTaskIDs),
		errors.Is(err, services.ErrDuplicateTaskIDs),
		errors.Is(err, services.ErrTaskOutsideProject),
		errors.Is(err, services.ErrCommentBodyRequired):
		apierrors.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrSelfParent):
		apierrors.InvalidOperation(c, err.Error())
	case errors.Is(err, services.ErrTaskCycle),
		errors.Is(err, services.ErrParentProjectMismatch):
		apierrors.Conflict(c, err.Error())
	default:
		apierrors.InternalError(c, "Internal server error")
	}
}
