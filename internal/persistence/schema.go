package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		agent_type TEXT NOT NULL,
		priority INTEGER NOT NULL,
		status TEXT NOT NULL,
		retry_count INTEGER NOT NULL,
		max_retries INTEGER NOT NULL,
		assigned_agent TEXT,
		files_to_create TEXT,
		tools_required TEXT,
		validation_criteria TEXT,
		metadata TEXT,
		estimated_minutes INTEGER,
		result TEXT,
		error_info TEXT,
		started_at DATETIME,
		completed_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS task_dependencies (
		task_id TEXT NOT NULL,
		depends_on_id TEXT NOT NULL,
		PRIMARY KEY (task_id, depends_on_id),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_dependencies_task_id ON task_dependencies(task_id);

	CREATE TABLE IF NOT EXISTS agents (
		name TEXT PRIMARY KEY,
		agent_type TEXT NOT NULL,
		state TEXT NOT NULL,
		capabilities TEXT,
		max_concurrent INTEGER NOT NULL,
		completed_tasks TEXT,
		failed_tasks TEXT,
		last_activity DATETIME,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
