package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kawasemi/project-tracker-api/internal/models"
	"github.com/kawasemi/project-tracker-api/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrInvalidProjectName   = errors.New("project name cannot be empty")
	ErrInvalidShareRole     = errors.New("share role must be viewer or editor")
	ErrShareTargetNotFound  = errors.New("share target user not found")
	ErrCannotShareWithOwner = errors.New("cannot share a project with its owner")
	ErrCannotShareWithSelf  = errors.New("cannot share a project with yourself")
)

// ProjectService provides business logic for project operations.
type ProjectService struct {
	projectRepo repository.ProjectRepository
	userRepo    repository.UserRepository
	access      *AccessService
}

// NewProjectService creates a new ProjectService.
func NewProjectService(projectRepo repository.ProjectRepository, userRepo repository.UserRepository, access *AccessService) *ProjectService {
	return &ProjectService{
		projectRepo: projectRepo,
		userRepo:    userRepo,
		access:      access,
	}
}

// CreateProjectInput represents parameters to create a new project.
type CreateProjectInput struct {
	Name        string
	Description string
	OwnerID     uint64
}

// ProjectWithRole pairs a project with the caller's effective role on it.
type ProjectWithRole struct {
	Project models.Project
	Role    models.ProjectRole
}

// CreateProject creates a new project owned by the caller.
func (s *ProjectService) CreateProject(input CreateProjectInput) (*models.Project, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, ErrInvalidProjectName
	}

	project := &models.Project{
		Name:        input.Name,
		Description: input.Description,
		OwnerID:     input.OwnerID,
	}

	if err := s.projectRepo.Create(project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	return project, nil
}

// ListProjects returns the projects the user owns or has been shared,
// annotated with the user's role on each.
func (s *ProjectService) ListProjects(userID uint64) ([]ProjectWithRole, error) {
	owned, err := s.projectRepo.ListByOwner(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned projects: %w", err)
	}

	memberships, err := s.projectRepo.ListMembersByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shared projects: %w", err)
	}

	projects := make([]ProjectWithRole, 0, len(owned)+len(memberships))
	for _, project := range owned {
		projects = append(projects, ProjectWithRole{Project: project, Role: models.RoleOwner})
	}
	for _, m := range memberships {
		projects = append(projects, ProjectWithRole{Project: m.Project, Role: m.Role})
	}

	return projects, nil
}

// GetProject returns a project with its member list and the caller's role.
// Requires the viewer role.
func (s *ProjectService) GetProject(projectID, callerID uint64) (*models.Project, []models.ProjectMember, models.ProjectRole, error) {
	role, project, err := s.access.Authorize(projectID, callerID, models.RoleViewer)
	if err != nil {
		return nil, nil, "", err
	}

	members, err := s.projectRepo.ListMembers(projectID)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to list project members: %w", err)
	}

	return project, members, role, nil
}

// UpdateProjectInput represents a project patch.
type UpdateProjectInput struct {
	Name        *string
	Description *string
}

// UpdateProject patches a project's name and description. Requires the
// editor role.
func (s *ProjectService) UpdateProject(projectID, callerID uint64, input UpdateProjectInput) (*models.Project, error) {
	_, project, err := s.access.Authorize(projectID, callerID, models.RoleEditor)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, ErrInvalidProjectName
		}
		project.Name = *input.Name
	}
	if input.Description != nil {
		project.Description = *input.Description
	}

	if err := s.projectRepo.Update(project); err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	return project, nil
}

// DeleteProject removes a project and cascades to its tasks, comments and
// member entries. Requires the owner role.
func (s *ProjectService) DeleteProject(projectID, callerID uint64) error {
	if _, _, err := s.access.Authorize(projectID, callerID, models.RoleOwner); err != nil {
		return err
	}

	if err := s.projectRepo.Delete(projectID); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	return nil
}

// ShareProject grants or replaces a user's role on a project. Requires the
// owner role. Sharing with the owner or with oneself is rejected.
func (s *ProjectService) ShareProject(projectID, callerID, targetUserID uint64, role models.ProjectRole) (*models.ProjectMember, error) {
	_, project, err := s.access.Authorize(projectID, callerID, models.RoleOwner)
	if err != nil {
		return nil, err
	}

	if role != models.RoleViewer && role != models.RoleEditor {
		return nil, ErrInvalidShareRole
	}
	if targetUserID == callerID {
		return nil, ErrCannotShareWithSelf
	}
	if targetUserID == project.OwnerID {
		return nil, ErrCannotShareWithOwner
	}

	if _, err := s.userRepo.FindByID(targetUserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShareTargetNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	member := &models.ProjectMember{
		ProjectID: projectID,
		UserID:    targetUserID,
		Role:      role,
		SharedAt:  time.Now(),
	}

	if err := s.projectRepo.UpsertMember(member); err != nil {
		return nil, fmt.Errorf("failed to share project: %w", err)
	}

	return member, nil
}

// UnshareProject revokes a user's access. Removing a user who was never
// shared is a no-op. Requires the owner role.
func (s *ProjectService) UnshareProject(projectID, callerID, targetUserID uint64) error {
	if _, _, err := s.access.Authorize(projectID, callerID, models.RoleOwner); err != nil {
		return err
	}

	if err := s.projectRepo.RemoveMember(projectID, targetUserID); err != nil {
		return fmt.Errorf("failed to unshare project: %w", err)
	}

	return nil
}
