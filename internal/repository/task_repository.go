package repository

import (
	"github.com/kawasemi/project-tracker-api/internal/database"
	"github.com/kawasemi/project-tracker-api/internal/models"
	"github.com/kawasemi/project-tracker-api/internal/utils"
	"gorm.io/gorm"
)

// GormTaskRepository is a GORM implementation of TaskRepository
type GormTaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &GormTaskRepository{db: db}
}

// Create creates a new task
func (r *GormTaskRepository) Create(task *models.Task) error {
	return r.db.Create(task).Error
}

// FindByID finds a task by ID with optional preloading
func (r *GormTaskRepository) FindByID(id uint64, preload ...string) (*models.Task, error) {
	var task models.Task
	query := r.db

	for _, p := range preload {
		query = query.Preload(p)
	}

	if err := query.First(&task, id).Error; err != nil {
		return nil, err
	}

	return &task, nil
}

// ListByProject returns every task belonging to a project, ordered for
// stable sibling display
func (r *GormTaskRepository) ListByProject(projectID uint64) ([]models.Task, error) {
	var tasks []models.Task
	if err := r.db.
		Where("project_id = ?", projectID).
		Order("position ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListChildren returns the direct children of a task
func (r *GormTaskRepository) ListChildren(parentID uint64) ([]models.Task, error) {
	var tasks []models.Task
	if err := r.db.
		Where("parent_id = ?", parentID).
		Order("position ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// CountSiblings counts tasks sharing a project and parent slot
func (r *GormTaskRepository) CountSiblings(projectID uint64, parentID *uint64) (int64, error) {
	var count int64
	query := r.db.Model(&models.Task{}).Where("project_id = ?", projectID)
	if parentID != nil {
		query = query.Where("parent_id = ?", *parentID)
	} else {
		query = query.Where("parent_id IS NULL")
	}
	err := query.Count(&count).Error
	return count, err
}

// CountByProjectAndIDs counts how many of the given task IDs belong to the project
func (r *GormTaskRepository) CountByProjectAndIDs(projectID uint64, ids []uint64) (int64, error) {
	var count int64
	err := r.db.Model(&models.Task{}).
		Where("project_id = ? AND id IN ?", projectID, ids).
		Count(&count).Error
	return count, err
}

// Update persists changes to a task
func (r *GormTaskRepository) Update(task *models.Task) error {
	return r.db.Save(task).Error
}

// DeleteMany soft deletes a set of tasks and their comments atomically
func (r *GormTaskRepository) DeleteMany(ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id IN ?", ids).Delete(&models.TaskComment{}).Error; err != nil {
			return err
		}

		return tx.Where("id IN ?", ids).Delete(&models.Task{}).Error
	})
}

// UpdatePositions assigns position = index for each ID, and optionally a
// status for the whole set, in one transaction
func (r *GormTaskRepository) UpdatePositions(projectID uint64, orderedIDs []uint64, status *models.TaskStatus) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for i, id := range orderedIDs {
			updates := map[string]interface{}{"position": i}
			if status != nil {
				updates["status"] = *status
			}

			if err := tx.Model(&models.Task{}).
				Where("id = ? AND project_id = ?", id, projectID).
				Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// AddComment appends a comment to a task
func (r *GormTaskRepository) AddComment(comment *models.TaskComment) error {
	return r.db.Create(comment).Error
}

// ListCommentsPage returns one page of a task's comments plus the total count
func (r *GormTaskRepository) ListCommentsPage(taskID uint64, params utils.PaginationParams) ([]models.TaskComment, int64, error) {
	var total int64
	if err := r.db.Model(&models.TaskComment{}).
		Where("task_id = ?", taskID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var comments []models.TaskComment
	if err := r.db.Preload("Author").
		Where("task_id = ?", taskID).
		Order("created_at ASC, id ASC").
		Scopes(database.Paginate(params)).
		Find(&comments).Error; err != nil {
		return nil, 0, err
	}

	return comments, total, nil
}

// ListComments returns a task's comments oldest first
func (r *GormTaskRepository) ListComments(taskID uint64) ([]models.TaskComment, error) {
	var comments []models.TaskComment
	if err := r.db.Preload("Author").
		Where("task_id = ?", taskID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}
