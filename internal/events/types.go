package events

import (
	"time"
)

// Event is the base interface for all events published on the bus.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask     = "task"
	TopicProgress = "progress"
)

// Event type constants
const (
	EventTypeTaskReady     = "task.ready"
	EventTypeTaskAssigned  = "task.assigned"
	EventTypeTaskOutput    = "task.output"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeTaskBlocked   = "task.blocked"
	EventTypeTaskCancelled = "task.cancelled"
	EventTypeProgress      = "progress.snapshot"
)

// TaskReadyEvent is published when a task's dependencies are satisfied and it
// becomes eligible for assignment.
type TaskReadyEvent struct {
	ID        string
	Title     string
	Timestamp time.Time
}

func (e TaskReadyEvent) EventType() string { return EventTypeTaskReady }
func (e TaskReadyEvent) TaskID() string    { return e.ID }

// TaskAssignedEvent is published when the scheduler hands a task to an agent.
type TaskAssignedEvent struct {
	ID        string
	Title     string
	AgentName string
	AgentType string
	Timestamp time.Time
}

func (e TaskAssignedEvent) EventType() string { return EventTypeTaskAssigned }
func (e TaskAssignedEvent) TaskID() string    { return e.ID }

// TaskOutputEvent carries a line of executor output for a running task.
type TaskOutputEvent struct {
	ID        string
	Line      string
	Timestamp time.Time
}

func (e TaskOutputEvent) EventType() string { return EventTypeTaskOutput }
func (e TaskOutputEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task finishes successfully.
type TaskCompletedEvent struct {
	ID        string
	AgentName string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a failure is reported for a task.
// WillRetry indicates whether the task was re-queued or failed terminally.
type TaskFailedEvent struct {
	ID        string
	AgentName string
	Reason    string
	WillRetry bool
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskBlockedEvent is published when a task is blocked by a terminally failed
// or cancelled dependency.
type TaskBlockedEvent struct {
	ID        string
	BlockedOn string
	Timestamp time.Time
}

func (e TaskBlockedEvent) EventType() string { return EventTypeTaskBlocked }
func (e TaskBlockedEvent) TaskID() string    { return e.ID }

// TaskCancelledEvent is published when a task is cancelled externally.
type TaskCancelledEvent struct {
	ID        string
	Timestamp time.Time
}

func (e TaskCancelledEvent) EventType() string { return EventTypeTaskCancelled }
func (e TaskCancelledEvent) TaskID() string    { return e.ID }

// ProgressEvent is a snapshot of overall project progress.
type ProgressEvent struct {
	Total     int
	Completed int
	Failed    int
	Running   int
	Ready     int
	Pending   int
	Blocked   int
	Progress  float64
	Verdict   string
	Timestamp time.Time
}

func (e ProgressEvent) EventType() string { return EventTypeProgress }
func (e ProgressEvent) TaskID() string    { return "" }
