package services

import (
	"errors"
	"fmt"

	"github.com/kawasemi/project-tracker-api/internal/models"
	"github.com/kawasemi/project-tracker-api/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrProjectNotFound     = errors.New("project not found")
	ErrProjectAccessDenied = errors.New("user has no access to this project")
	ErrInsufficientRole    = errors.New("user's role does not permit this action")
)

// AccessService resolves a caller's effective role on a project and gates
// operations on a minimum role. Every project and task operation calls
// Authorize before touching data.
type AccessService struct {
	projectRepo repository.ProjectRepository
}

// NewAccessService creates a new AccessService
func NewAccessService(projectRepo repository.ProjectRepository) *AccessService {
	return &AccessService{
		projectRepo: projectRepo,
	}
}

// ResolveRole returns the caller's effective role on a project. The owner
// always resolves to RoleOwner regardless of the member list; shared users
// resolve to their stored role; anyone else gets ErrProjectAccessDenied.
func (s *AccessService) ResolveRole(project *models.Project, userID uint64) (models.ProjectRole, error) {
	if project.OwnerID == userID {
		return models.RoleOwner, nil
	}

	member, err := s.projectRepo.FindMember(project.ID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrProjectAccessDenied
		}
		return "", fmt.Errorf("failed to look up project member: %w", err)
	}

	return member.Role, nil
}

// Authorize loads the project, resolves the caller's role and checks it
// against the minimum requirement. The resolved role and project are returned
// so callers can branch on them without refetching.
func (s *AccessService) Authorize(projectID, userID uint64, min models.ProjectRole) (models.ProjectRole, *models.Project, error) {
	project, err := s.projectRepo.FindByID(projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrProjectNotFound
		}
		return "", nil, fmt.Errorf("failed to find project: %w", err)
	}

	role, err := s.ResolveRole(project, userID)
	if err != nil {
		return "", nil, err
	}

	if !role.Satisfies(min) {
		return role, project, ErrInsufficientRole
	}

	return role, project, nil
}
