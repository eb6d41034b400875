package scheduler

import (
	"fmt"
	"time"
)

// transitions is the task status state machine. A requested transition must
// appear in the slice for its current status or SetStatus rejects it.
//
// IN_PROGRESS -> READY is the retry path; PENDING -> BLOCKED and the terminal
// statuses are one-way. Cancellation is allowed from any non-terminal status.
var transitions = map[TaskStatus][]TaskStatus{
	StatusPending:    {StatusReady, StatusBlocked, StatusCancelled},
	StatusReady:      {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusReady, StatusCancelled},
	StatusBlocked:    {StatusCancelled},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusCancelled:  {},
}

// TaskRegistry stores task records and validates status transitions. It is a
// plain data store: all locking happens in the owning Scheduler.
type TaskRegistry struct {
	tasks       map[string]*Task
	order       []string // insertion order, for deterministic iteration
	lastUpdated time.Time
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		tasks: make(map[string]*Task),
	}
}

// Add inserts a new task, applying defaults for status, retry budget and
// creation time. Fails with ErrDuplicateTask if the ID is taken.
func (r *TaskRegistry) Add(task *Task) error {
	if _, exists := r.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}

	if task.Status == "" {
		task.Status = StatusPending
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = DefaultMaxRetries
	}
	if task.Priority == 0 {
		task.Priority = PriorityNormal
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	r.tasks[task.ID] = task
	r.order = append(r.order, task.ID)
	r.touch()
	return nil
}

// Get returns the stored task or ErrTaskNotFound. The returned pointer is the
// registry's own record; only the Scheduler may mutate it.
func (r *TaskRegistry) Get(taskID string) (*Task, error) {
	task, exists := r.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task, nil
}

// Has reports whether a task ID is known.
func (r *TaskRegistry) Has(taskID string) bool {
	_, exists := r.tasks[taskID]
	return exists
}

// SetStatus validates and applies a status transition. Setting the current
// status again is a no-op. Violations return ErrInvalidTransition and leave
// the task unchanged.
func (r *TaskRegistry) SetStatus(taskID string, status TaskStatus) error {
	task, err := r.Get(taskID)
	if err != nil {
		return err
	}

	if task.Status == status {
		return nil
	}

	for _, allowed := range transitions[task.Status] {
		if allowed == status {
			task.Status = status
			r.touch()
			return nil
		}
	}
	return fmt.Errorf("%w: %s: %s -> %s", ErrInvalidTransition, taskID, task.Status, status)
}

// All iterates tasks in insertion order.
func (r *TaskRegistry) All() []*Task {
	tasks := make([]*Task, 0, len(r.order))
	for _, id := range r.order {
		tasks = append(tasks, r.tasks[id])
	}
	return tasks
}

// Len returns the number of stored tasks.
func (r *TaskRegistry) Len() int {
	return len(r.tasks)
}

// CountByStatus tallies tasks per status.
func (r *TaskRegistry) CountByStatus() map[TaskStatus]int {
	counts := make(map[TaskStatus]int)
	for _, task := range r.tasks {
		counts[task.Status]++
	}
	return counts
}

// LastUpdated returns the time of the most recent mutation. The project state
// aggregator stamps its snapshots with it.
func (r *TaskRegistry) LastUpdated() time.Time {
	return r.lastUpdated
}

// touch records a mutation. Every write path must call it.
func (r *TaskRegistry) touch() {
	r.lastUpdated = time.Now()
}
