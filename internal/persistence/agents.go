package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/castellan/foreman/internal/scheduler"
)

// SaveAgent saves or updates an agent snapshot.
func (s *SQLiteStore) SaveAgent(ctx context.Context, agent *scheduler.AgentInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (name, agent_type, state, capabilities, max_concurrent,
			completed_tasks, failed_tasks, last_activity, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			agent_type = excluded.agent_type,
			state = excluded.state,
			capabilities = excluded.capabilities,
			max_concurrent = excluded.max_concurrent,
			completed_tasks = excluded.completed_tasks,
			failed_tasks = excluded.failed_tasks,
			last_activity = excluded.last_activity,
			updated_at = CURRENT_TIMESTAMP
	`, agent.Name, agent.AgentType, string(agent.State),
		strings.Join(agent.Capabilities, ","), agent.MaxConcurrent,
		strings.Join(agent.CompletedTasks, ","), strings.Join(agent.FailedTasks, ","),
		agent.LastActivity)
	if err != nil {
		return fmt.Errorf("failed to save agent: %w", err)
	}
	return nil
}

// ListAgents returns all agent snapshots, by name.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*scheduler.AgentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, agent_type, state, capabilities, max_concurrent,
			completed_tasks, failed_tasks, last_activity
		FROM agents
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var agents []*scheduler.AgentInfo
	for rows.Next() {
		agent := &scheduler.AgentInfo{ActiveTasks: make(map[string]struct{})}
		var state, capabilities, completed, failed string
		err := rows.Scan(&agent.Name, &agent.AgentType, &state, &capabilities,
			&agent.MaxConcurrent, &completed, &failed, &agent.LastActivity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agent.State = scheduler.AgentState(state)
		agent.Capabilities = splitList(capabilities)
		agent.CompletedTasks = splitList(completed)
		agent.FailedTasks = splitList(failed)
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}
	return agents, nil
}
