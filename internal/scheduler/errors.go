package scheduler

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the registries and the scheduler. Callers match
// them with errors.Is; the scheduler wraps them with task or agent context.
var (
	// ErrDuplicateTask is returned when a submitted task ID already exists.
	ErrDuplicateTask = errors.New("task already exists")

	// ErrTaskNotFound is returned when operating on an unknown task ID.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a status change is not permitted
	// by the task state machine. The task is left unchanged.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrCapacityExceeded is returned when assigning a task to an agent that
	// is already at its concurrency limit.
	ErrCapacityExceeded = errors.New("agent at capacity")

	// ErrUnknownAgent is returned when an unregistered agent name is used.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrDependencyCycle is returned when a submitted batch of tasks contains
	// a circular dependency. The whole batch is rejected.
	ErrDependencyCycle = errors.New("dependency cycle")

	// ErrUnknownDependency is returned when, after a bulk submission, a task
	// still references a dependency the registry has never seen.
	ErrUnknownDependency = errors.New("unknown dependency")
)

// fmtErr wraps a sentinel error with the offending ID.
func fmtErr(sentinel error, id string) error {
	return fmt.Errorf("%w: %s", sentinel, id)
}
