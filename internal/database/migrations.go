package database

import (
	"fmt"
)

// AddIndexes adds performance-critical indexes to the database
func AddIndexes() error {
	indexes := []struct {
		table   string
		name    string
		columns string
	}{
		// Task indexes for tree traversal, filtering and column ordering
		{"tasks", "idx_tasks_project_id", "project_id"},
		{"tasks", "idx_tasks_parent_id", "parent_id"},
		{"tasks", "idx_tasks_status", "status"},
		{"tasks", "idx_tasks_priority", "priority"},
		{"tasks", "idx_tasks_due_date", "due_date"},
		{"tasks", "idx_tasks_position", "project_id, status, position"},

		// Project member indexes
		{"project_members", "idx_project_members_project_id", "project_id"},
		{"project_members", "idx_project_members_user_id", "user_id"},

		// Task comment indexes
		{"task_comments", "idx_task_comments_task_id", "task_id"},

		// Project owner index
		{"projects", "idx_projects_owner_id", "owner_id"},
	}

	for _, idx := range indexes {
		exists, err := indexExists(idx.table, idx.name)
		if err != nil {
			return fmt.Errorf("failed to check index %s: %w", idx.name, err)
		}
		if exists {
			continue
		}

		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.columns)
		if err := DB.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}

// indexExists queries the driver's catalog for an index by name.
func indexExists(table, name string) (bool, error) {
	var count int64
	var err error

	switch DB.Dialector.Name() {
	case "postgres":
		err = DB.Raw(`
			SELECT COUNT(*)
			FROM pg_indexes
			WHERE tablename = ? AND indexname = ?
		`, table, name).Scan(&count).Error
	case "mysql":
		err = DB.Raw(`
			SELECT COUNT(*)
			FROM information_schema.statistics
			WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?
		`, table, name).Scan(&count).Error
	default:
		// Other drivers (sqlite in tests) rely on AutoMigrate's model-tag indexes.
		return true, nil
	}

	return count > 0, err
}
