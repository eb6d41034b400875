package scheduler

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/castellan/foreman/internal/events"
)

// CheckpointSink receives task snapshots after scheduler mutations. The
// persistence layer implements it; a nil sink disables checkpointing.
type CheckpointSink interface {
	SaveTask(ctx context.Context, task *Task) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithEventBus makes the scheduler publish lifecycle and progress events.
func WithEventBus(bus *events.Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// WithCheckpoint makes the scheduler persist task snapshots after mutations.
// Checkpointing is best-effort: failures are logged, never surfaced.
func WithCheckpoint(sink CheckpointSink) Option {
	return func(s *Scheduler) { s.sink = sink }
}

// WithVerdictThresholds overrides the completion verdict bands.
func WithVerdictThresholds(t VerdictThresholds) Option {
	return func(s *Scheduler) { s.thresholds = t }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler assigns ready tasks to available, capability-matching agents and
// propagates completion and failure through the dependency graph.
//
// One Scheduler is instantiated per project run. All mutations of the task
// registry, dependency graph and agent registry happen under its single
// mutex: two concurrent NextTask calls can never receive the same task, and
// a Complete or Fail is fully applied before any later call observes it.
type Scheduler struct {
	mu         sync.Mutex
	tasks      *TaskRegistry
	graph      *DepGraph
	agents     *AgentRegistry
	bus        *events.Bus
	sink       CheckpointSink
	thresholds VerdictThresholds
	now        func() time.Time
}

// New creates a Scheduler with fresh registries.
func New(opts ...Option) *Scheduler {
	reg := NewTaskRegistry()
	s := &Scheduler{
		tasks:      reg,
		graph:      NewDepGraph(reg),
		agents:     NewAgentRegistry(),
		thresholds: DefaultVerdictThresholds(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterAgent registers a worker agent with the scheduler. Idempotent per
// name; re-registration refreshes static fields only.
func (s *Scheduler) RegisterAgent(name, agentType string, capabilities []string, maxConcurrent int) {
	s.mu.Lock()
	s.agents.Register(name, agentType, capabilities, maxConcurrent)
	s.mu.Unlock()
}

// SubmitTasks bulk-registers a batch of tasks from the planning collaborator.
// The batch is validated as a whole before anything is stored: duplicate IDs
// (against the registry or within the batch), dependencies that resolve to
// neither a known task nor a batch member, and dependency cycles all reject
// the entire batch with the registry unchanged.
//
// After registration a readiness pass runs over the new tasks so independent
// tasks and chain heads become READY immediately.
func (s *Scheduler) SubmitTasks(batch []*Task) error {
	s.mu.Lock()
	snapshots, evs, err := s.submitLocked(batch)
	s.mu.Unlock()

	s.publish(evs)
	s.checkpoint(snapshots)
	return err
}

func (s *Scheduler) submitLocked(batch []*Task) ([]*Task, []events.Event, error) {
	known := make(map[string]struct{}, len(batch))
	for _, task := range batch {
		if s.tasks.Has(task.ID) {
			return nil, nil, fmtErr(ErrDuplicateTask, task.ID)
		}
		if _, dup := known[task.ID]; dup {
			return nil, nil, fmtErr(ErrDuplicateTask, task.ID)
		}
		known[task.ID] = struct{}{}
	}
	for _, task := range batch {
		for _, depID := range task.Dependencies {
			if s.tasks.Has(depID) {
				continue
			}
			if _, inBatch := known[depID]; !inBatch {
				return nil, nil, fmtErr(ErrUnknownDependency, depID)
			}
		}
	}
	if err := validateAcyclic(s.tasks, batch); err != nil {
		return nil, nil, err
	}

	for _, task := range batch {
		if err := s.tasks.Add(task); err != nil {
			return nil, nil, err
		}
		s.graph.Register(task.ID, task.Dependencies)
	}

	var evs []events.Event
	snapshots := make([]*Task, 0, len(batch))
	for _, task := range batch {
		status, changed, err := s.graph.RecomputeReadiness(task.ID)
		if err != nil {
			return snapshots, evs, err
		}
		if changed && status == StatusReady {
			evs = append(evs, events.TaskReadyEvent{ID: task.ID, Title: task.Title, Timestamp: s.now()})
		}
		snapshots = append(snapshots, task.Clone())
	}
	evs = append(evs, s.progressLocked())
	return snapshots, evs, nil
}

// NextTask returns the next task for the named agent, or nil when the agent
// is unavailable or no READY task matches its type and capabilities.
// Candidates are ordered by priority, then creation time, then ID. The
// selected task moves READY -> IN_PROGRESS and is assigned to the agent
// before the call returns.
func (s *Scheduler) NextTask(agentName string) (*Task, error) {
	s.mu.Lock()
	task, evs, err := s.nextLocked(agentName)
	s.mu.Unlock()

	s.publish(evs)
	if task != nil {
		s.checkpoint([]*Task{task})
	}
	return task, err
}

func (s *Scheduler) nextLocked(agentName string) (*Task, []events.Event, error) {
	agent, err := s.agents.Get(agentName)
	if err != nil {
		return nil, nil, err
	}
	if !agent.Available() {
		return nil, nil, nil
	}

	var candidates []*Task
	for _, task := range s.tasks.All() {
		if task.Status == StatusReady && s.agents.CanHandle(agent, task) {
			candidates = append(candidates, task)
		}
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})

	selected := candidates[0]
	if err := s.tasks.SetStatus(selected.ID, StatusInProgress); err != nil {
		return nil, nil, err
	}
	if err := s.agents.Assign(agentName, selected.ID); err != nil {
		return nil, nil, err
	}
	started := s.now()
	selected.StartedAt = &started
	selected.AssignedAgent = agentName
	s.tasks.touch()

	ev := events.TaskAssignedEvent{
		ID:        selected.ID,
		Title:     selected.Title,
		AgentName: agentName,
		AgentType: agent.AgentType,
		Timestamp: started,
	}
	return selected.Clone(), []events.Event{ev, s.progressLocked()}, nil
}

// Complete reports successful execution of a task. The task moves
// IN_PROGRESS -> COMPLETED, the result payload is stored, the assigned agent
// is released, and readiness propagates to dependents before the call
// returns.
func (s *Scheduler) Complete(taskID string, result map[string]any) error {
	s.mu.Lock()
	task, evs, err := s.completeLocked(taskID, result)
	s.mu.Unlock()

	s.publish(evs)
	if task != nil {
		s.checkpoint([]*Task{task})
	}
	return err
}

func (s *Scheduler) completeLocked(taskID string, result map[string]any) (*Task, []events.Event, error) {
	task, err := s.tasks.Get(taskID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.tasks.SetStatus(taskID, StatusCompleted); err != nil {
		return nil, nil, err
	}

	completed := s.now()
	task.CompletedAt = &completed
	task.Result = result
	s.tasks.touch()

	var evs []events.Event
	duration := time.Duration(0)
	if task.StartedAt != nil {
		duration = completed.Sub(*task.StartedAt)
	}
	evs = append(evs, events.TaskCompletedEvent{
		ID:        taskID,
		AgentName: task.AssignedAgent,
		Duration:  duration,
		Timestamp: completed,
	})

	if task.AssignedAgent != "" {
		if err := s.agents.Release(task.AssignedAgent, taskID, OutcomeSuccess); err != nil {
			return task.Clone(), evs, err
		}
	}

	changed, err := s.graph.PropagateCompletion(taskID)
	if err != nil {
		return task.Clone(), evs, err
	}
	evs = append(evs, s.transitionEvents(changed, taskID)...)
	evs = append(evs, s.progressLocked())
	return task.Clone(), evs, nil
}

// Fail reports a failed execution attempt. While the retry budget lasts the
// task moves IN_PROGRESS -> READY for rescheduling; once exhausted it fails
// terminally and its dependents are re-evaluated for BLOCKED. The returned
// bool is true when the failure was terminal.
func (s *Scheduler) Fail(taskID string, errorInfo map[string]any) (bool, error) {
	s.mu.Lock()
	task, terminal, evs, err := s.failLocked(taskID, errorInfo)
	s.mu.Unlock()

	s.publish(evs)
	if task != nil {
		s.checkpoint([]*Task{task})
	}
	return terminal, err
}

func (s *Scheduler) failLocked(taskID string, errorInfo map[string]any) (*Task, bool, []events.Event, error) {
	task, err := s.tasks.Get(taskID)
	if err != nil {
		return nil, false, nil, err
	}
	if task.Status != StatusInProgress {
		return nil, false, nil, fmtErr(ErrInvalidTransition, taskID)
	}

	agentName := task.AssignedAgent
	task.ErrorInfo = errorInfo
	now := s.now()

	retry := task.RetryCount < task.MaxRetries
	if retry {
		task.RetryCount++
		if err := s.tasks.SetStatus(taskID, StatusReady); err != nil {
			return nil, false, nil, err
		}
		task.AssignedAgent = ""
		task.StartedAt = nil
	} else {
		if err := s.tasks.SetStatus(taskID, StatusFailed); err != nil {
			return nil, false, nil, err
		}
		task.CompletedAt = &now
	}
	s.tasks.touch()

	var evs []events.Event
	evs = append(evs, events.TaskFailedEvent{
		ID:        taskID,
		AgentName: agentName,
		Reason:    errorReason(errorInfo),
		WillRetry: retry,
		Timestamp: now,
	})

	if agentName != "" {
		if err := s.agents.Release(agentName, taskID, OutcomeFailure); err != nil {
			return task.Clone(), !retry, evs, err
		}
	}

	if !retry {
		// Terminal failure: dependents become BLOCKED rather than waiting
		// forever on an output that will never exist.
		changed, err := s.graph.PropagateCompletion(taskID)
		if err != nil {
			return task.Clone(), true, evs, err
		}
		evs = append(evs, s.transitionEvents(changed, taskID)...)
	}
	evs = append(evs, s.progressLocked())
	return task.Clone(), !retry, evs, nil
}

// Cancel moves a task from any non-terminal status to CANCELLED. An
// in-progress task's agent is released without crediting an outcome.
// Dependents of a cancelled task are re-evaluated and become BLOCKED.
func (s *Scheduler) Cancel(taskID string) error {
	s.mu.Lock()
	task, evs, err := s.cancelLocked(taskID)
	s.mu.Unlock()

	s.publish(evs)
	if task != nil {
		s.checkpoint([]*Task{task})
	}
	return err
}

func (s *Scheduler) cancelLocked(taskID string) (*Task, []events.Event, error) {
	task, err := s.tasks.Get(taskID)
	if err != nil {
		return nil, nil, err
	}
	agentName := task.AssignedAgent

	if err := s.tasks.SetStatus(taskID, StatusCancelled); err != nil {
		return nil, nil, err
	}
	task.AssignedAgent = ""
	s.tasks.touch()

	if agentName != "" {
		if err := s.agents.Release(agentName, taskID, OutcomeCancelled); err != nil {
			return task.Clone(), nil, err
		}
	}

	evs := []events.Event{events.TaskCancelledEvent{ID: taskID, Timestamp: s.now()}}
	changed, err := s.graph.PropagateCompletion(taskID)
	if err != nil {
		return task.Clone(), evs, err
	}
	evs = append(evs, s.transitionEvents(changed, taskID)...)
	evs = append(evs, s.progressLocked())
	return task.Clone(), evs, nil
}

// Task returns a copy of the task record for reporting.
func (s *Scheduler) Task(taskID string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// Tasks returns copies of all task records in submission order.
func (s *Scheduler) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.tasks.All()
	out := make([]*Task, 0, len(all))
	for _, task := range all {
		out = append(out, task.Clone())
	}
	return out
}

// Agents returns copies of all agent records in registration order.
func (s *Scheduler) Agents() []*AgentInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.agents.All()
	out := make([]*AgentInfo, 0, len(all))
	for _, agent := range all {
		out = append(out, agent.Clone())
	}
	return out
}

// Done reports whether no task can make further progress: nothing is
// pending, ready or in progress.
func (s *Scheduler) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := s.tasks.CountByStatus()
	return counts[StatusPending]+counts[StatusReady]+counts[StatusInProgress] == 0
}

// transitionEvents maps the results of a propagation pass to events.
func (s *Scheduler) transitionEvents(changed []string, sourceID string) []events.Event {
	var evs []events.Event
	for _, id := range changed {
		task, err := s.tasks.Get(id)
		if err != nil {
			continue
		}
		switch task.Status {
		case StatusReady:
			evs = append(evs, events.TaskReadyEvent{ID: id, Title: task.Title, Timestamp: s.now()})
		case StatusBlocked:
			evs = append(evs, events.TaskBlockedEvent{ID: id, BlockedOn: sourceID, Timestamp: s.now()})
		}
	}
	return evs
}

// publish delivers collected events outside the critical section.
func (s *Scheduler) publish(evs []events.Event) {
	if s.bus == nil {
		return
	}
	for _, ev := range evs {
		topic := events.TopicTask
		if ev.EventType() == events.EventTypeProgress {
			topic = events.TopicProgress
		}
		s.bus.Publish(topic, ev)
	}
}

// checkpoint persists task snapshots best-effort.
func (s *Scheduler) checkpoint(tasks []*Task) {
	if s.sink == nil {
		return
	}
	for _, task := range tasks {
		if err := s.sink.SaveTask(context.Background(), task); err != nil {
			log.Printf("WARNING: failed to checkpoint task %q: %v", task.ID, err)
		}
	}
}

// validateAcyclic rejects batches that would introduce a dependency cycle.
// The check runs before the batch is stored, over the union of existing and
// new tasks, so a bad batch leaves the registry untouched.
func validateAcyclic(reg *TaskRegistry, batch []*Task) error {
	staging := NewTaskRegistry()
	for _, task := range reg.All() {
		_ = staging.Add(task)
	}
	for _, task := range batch {
		if err := staging.Add(task); err != nil {
			return err
		}
	}
	return NewDepGraph(staging).Validate()
}

func errorReason(errorInfo map[string]any) string {
	if errorInfo == nil {
		return ""
	}
	if msg, ok := errorInfo["error"].(string); ok {
		return msg
	}
	if msg, ok := errorInfo["message"].(string); ok {
		return msg
	}
	return ""
}
