package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kawasemi/project-tracker-api/internal/dto"
	apierrors "github.com/kawasemi/project-tracker-api/internal/errors"
	"github.com/kawasemi/project-tracker-api/internal/middleware"
	"github.com/kawasemi/project-tracker-api/internal/models"
	"github.com/kawasemi/project-tracker-api/internal/services"
)

// ProjectHandler coordinates project HTTP handlers.
type ProjectHandler struct {
	projectService *services.ProjectService
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(projectService *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
	}
}

// CreateProject creates a new project owned by the caller.
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	type CreateProjectRequest struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}

	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	project, err := h.projectService.CreateProject(services.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     userID,
	})
	if err != nil {
		respondProjectError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToProjectDTO(*project))
}

// ListProjects returns the projects the caller owns or has been shared,
// annotated with the caller's role.
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	projects, err := h.projectService.ListProjects(userID)
	if err != nil {
		respondProjectError(c, err)
		return
	}

	projectDTOs := make([]dto.ProjectWithRoleDTO, len(projects))
	for i, project := range projects {
		projectDTOs[i] = dto.ToProjectWithRoleDTO(project)
	}

	c.JSON(http.StatusOK, gin.H{
		"projects": projectDTOs,
	})
}

// GetProject returns project details with members and the caller's role.
func (h *ProjectHandler) GetProject(c *gin.Context) {
	projectID, userID, ok := projectRequestIDs(c)
	if !ok {
		return
	}

	project, members, role, err := h.projectService.GetProject(projectID, userID)
	if err != nil {
		respondProjectError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProjectDetailDTO(*project, members, role))
}

// UpdateProject patches a project's name and description.
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	projectID, userID, ok := projectRequestIDs(c)
	if !ok {
		return
	}

	type UpdateProjectRequest struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}

	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	project, err := h.projectService.UpdateProject(projectID, userID, services.UpdateProjectInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respondProjectError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProjectDTO(*project))
}

// DeleteProject removes a project and all of its tasks.
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	projectID, userID, ok := projectRequestIDs(c)
	if !ok {
		return
	}

	if err := h.projectService.DeleteProject(projectID, userID); err != nil {
		respondProjectError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Project deleted successfully",
	})
}

// ShareProject grants or replaces a user's role on a project.
func (h *ProjectHandler) ShareProject(c *gin.Context) {
	projectID, userID, ok := projectRequestIDs(c)
	if !ok {
		return
	}

	type ShareProjectRequest struct {
		UserID uint64             `json:"user_id" binding:"required"`
		Role   models.ProjectRole `json:"role" binding:"required"`
	}

	var req ShareProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	member, err := h.projectService.ShareProject(projectID, userID, req.UserID, req.Role)
	if err != nil {
		respondProjectError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Project shared successfully",
		"member": gin.H{
			"user_id": member.UserID,
			"role":    member.Role,
		},
	})
}

// UnshareProject revokes a user's access to a project.
func (h *ProjectHandler) UnshareProject(c *gin.Context) {
	projectID, userID, ok := projectRequestIDs(c)
	if !ok {
		return
	}

	targetID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil {
		apierrors.BadRequest(c, "Invalid user ID")
		return
	}

	if err := h.projectService.UnshareProject(projectID, userID, targetID); err != nil {
		respondProjectError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Project unshared successfully",
	})
}

// projectRequestIDs parses the project ID from the URL and the caller ID from
// the context, responding with the appropriate error when either is missing.
func projectRequestIDs(c *gin.Context) (projectID, userID uint64, ok bool) {
	projectID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apierrors.BadRequest(c, "Invalid project ID")
		return 0, 0, false
	}

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return 0, 0, false
	}

	return projectID, userID, true
}

func respondProjectError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrProjectNotFound):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, services.ErrProjectAccessDenied):
		apierrors.Forbidden(c, err.Error())
	case errors.Is(err, services.ErrInsufficientRole):
		apierrors.InsufficientPermissions(c, err.Error())
	case errors.Is(err, services.ErrInvalidProjectName),
		errors.Is(err, services.ErrInvalidShareRole):
		apierrors.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrCannotShareWithOwner),
		errors.Is(err, services.ErrCannotShareWithSelf):
		apierrors.InvalidOperation(c, err.Error())
	case errors.Is(err, services.ErrShareTargetNotFound):
		apierrors.NotFound(c, err.Error())
	default:
		apierrors.InternalError(c, "Internal server error")
	}
}
