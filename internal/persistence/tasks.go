package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/castellan/foreman/internal/scheduler"
)

// SaveTask saves or updates a task snapshot and its dependencies.
// Uses ON CONFLICT to make saves idempotent, so checkpointing the same task
// after every transition is cheap and safe.
func (s *SQLiteStore) SaveTask(ctx context.Context, task *scheduler.Task) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	validation, err := marshalMap(task.ValidationCriteria)
	if err != nil {
		return fmt.Errorf("encoding validation criteria: %w", err)
	}
	metadata, err := marshalMap(task.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	result, err := marshalMap(task.Result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	errorInfo, err := marshalMap(task.ErrorInfo)
	if err != nil {
		return fmt.Errorf("encoding error info: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, agent_type, priority, status,
			retry_count, max_retries, assigned_agent, files_to_create, tools_required,
			validation_criteria, metadata, estimated_minutes, result, error_info,
			started_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			agent_type = excluded.agent_type,
			priority = excluded.priority,
			status = excluded.status,
			retry_count = excluded.retry_count,
			max_retries = excluded.max_retries,
			assigned_agent = excluded.assigned_agent,
			files_to_create = excluded.files_to_create,
			tools_required = excluded.tools_required,
			validation_criteria = excluded.validation_criteria,
			metadata = excluded.metadata,
			estimated_minutes = excluded.estimated_minutes,
			result = excluded.result,
			error_info = excluded.error_info,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			updated_at = CURRENT_TIMESTAMP
	`, task.ID, task.Title, task.Description, task.AgentType, int(task.Priority),
		string(task.Status), task.RetryCount, task.MaxRetries, task.AssignedAgent,
		strings.Join(task.FilesToCreate, ","), strings.Join(task.ToolsRequired, ","),
		validation, metadata, task.EstimatedMinutes, result, errorInfo,
		nullTime(task.StartedAt), nullTime(task.CompletedAt), task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id = ?`, task.ID)
	if err != nil {
		return fmt.Errorf("failed to delete old dependencies: %w", err)
	}
	for _, depID := range task.Dependencies {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_dependencies (task_id, depends_on_id)
			VALUES (?, ?)
		`, task.ID, depID)
		if err != nil {
			return fmt.Errorf("failed to insert dependency %s -> %s: %w", task.ID, depID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID, including its dependencies.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*scheduler.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, agent_type, priority, status,
			retry_count, max_retries, assigned_agent, files_to_create, tools_required,
			validation_criteria, metadata, estimated_minutes, result, error_info,
			started_at, completed_at, created_at
		FROM tasks
		WHERE id = ?
	`, taskID)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	if err := s.loadDependencies(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns all tasks with their dependencies, in creation order.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*scheduler.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, agent_type, priority, status,
			retry_count, max_retries, assigned_agent, files_to_create, tools_required,
			validation_criteria, metadata, estimated_minutes, result, error_info,
			started_at, completed_at, created_at
		FROM tasks
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*scheduler.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	for _, task := range tasks {
		if err := s.loadDependencies(ctx, task); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func (s *SQLiteStore) loadDependencies(ctx context.Context, task *scheduler.Task) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT depends_on_id
		FROM task_dependencies
		WHERE task_id = ?
		ORDER BY depends_on_id
	`, task.ID)
	if err != nil {
		return fmt.Errorf("failed to query dependencies for task %s: %w", task.ID, err)
	}
	defer rows.Close()

	task.Dependencies = nil
	for rows.Next() {
		var depID string
		if err := rows.Scan(&depID); err != nil {
			return fmt.Errorf("failed to scan dependency: %w", err)
		}
		task.Dependencies = append(task.Dependencies, depID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating dependencies: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*scheduler.Task, error) {
	task := &scheduler.Task{}
	var (
		priority                              int
		status                                string
		filesToCreate, toolsRequired          string
		validation, metadata, result, errInfo string
		startedAt, completedAt                sql.NullTime
	)

	err := row.Scan(&task.ID, &task.Title, &task.Description, &task.AgentType,
		&priority, &status, &task.RetryCount, &task.MaxRetries, &task.AssignedAgent,
		&filesToCreate, &toolsRequired, &validation, &metadata,
		&task.EstimatedMinutes, &result, &errInfo,
		&startedAt, &completedAt, &task.CreatedAt)
	if err != nil {
		return nil, err
	}

	task.Priority = scheduler.Priority(priority)
	task.Status = scheduler.TaskStatus(status)
	task.FilesToCreate = splitList(filesToCreate)
	task.ToolsRequired = splitList(toolsRequired)
	if task.ValidationCriteria, err = unmarshalMap(validation); err != nil {
		return nil, fmt.Errorf("decoding validation criteria: %w", err)
	}
	if task.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	if task.Result, err = unmarshalMap(result); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	if task.ErrorInfo, err = unmarshalMap(errInfo); err != nil {
		return nil, fmt.Errorf("decoding error info: %w", err)
	}
	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	return task, nil
}

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalMap(data string) (map[string]any, error) {
	if data == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
