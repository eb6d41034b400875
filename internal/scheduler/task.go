// Package scheduler implements dependency-aware task scheduling for a pool of
// role-specialized agents. Tasks form a directed acyclic graph; the scheduler
// hands out ready tasks to capability-matching agents and propagates
// completion and failure through the graph.
package scheduler

import (
	"fmt"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"     // Waiting for dependencies
	StatusReady      TaskStatus = "ready"       // All dependencies completed, assignable
	StatusInProgress TaskStatus = "in_progress" // Assigned to an agent
	StatusBlocked    TaskStatus = "blocked"     // A dependency failed terminally
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed" // Retry budget exhausted
	StatusCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible from s.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Priority orders tasks for assignment. Higher values win.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority converts a priority name to its value. Empty input maps to
// PriorityNormal.
func ParsePriority(name string) (Priority, error) {
	switch name {
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	}
	return 0, fmt.Errorf("unknown priority %q", name)
}

// DefaultMaxRetries is the retry budget applied to tasks that don't set one.
const DefaultMaxRetries = 3

// Task is a unit of work submitted by the planning collaborator.
//
// The scheduler owns Status, RetryCount, AssignedAgent and the timestamps;
// Result and ErrorInfo are opaque payloads stored on behalf of the execution
// collaborator and never interpreted.
type Task struct {
	ID          string
	Title       string
	Description string
	AgentType   string // Capability category required to execute (e.g. "generation")
	Priority    Priority
	Status      TaskStatus

	Dependencies []string // IDs of tasks that must complete first

	RetryCount int
	MaxRetries int

	FilesToCreate      []string
	ToolsRequired      []string
	ValidationCriteria map[string]any
	Metadata           map[string]any

	EstimatedMinutes int // 0 when unknown

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	AssignedAgent string

	Result    map[string]any
	ErrorInfo map[string]any
}

// Clone returns a deep copy of the task. The scheduler hands out clones so
// callers can't mutate registry state behind its back.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	cp := *t
	cp.Dependencies = append([]string(nil), t.Dependencies...)
	cp.FilesToCreate = append([]string(nil), t.FilesToCreate...)
	cp.ToolsRequired = append([]string(nil), t.ToolsRequired...)
	cp.ValidationCriteria = cloneMap(t.ValidationCriteria)
	cp.Metadata = cloneMap(t.Metadata)
	cp.Result = cloneMap(t.Result)
	cp.ErrorInfo = cloneMap(t.ErrorInfo)
	if t.StartedAt != nil {
		started := *t.StartedAt
		cp.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		cp.CompletedAt = &completed
	}
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
