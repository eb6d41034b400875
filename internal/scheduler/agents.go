package scheduler

import (
	"fmt"
	"time"
)

// AgentState describes a worker agent's availability.
type AgentState string

const (
	AgentIdle    AgentState = "idle"
	AgentBusy    AgentState = "busy"
	AgentError   AgentState = "error"
	AgentOffline AgentState = "offline"
)

// Outcome classifies how an agent finished a task when released.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// AgentInfo is the registry's record of one execution-capable actor.
type AgentInfo struct {
	Name          string
	AgentType     string
	State         AgentState
	Capabilities  []string
	MaxConcurrent int

	ActiveTasks    map[string]struct{}
	CompletedTasks []string
	FailedTasks    []string
	LastActivity   time.Time
}

// Available reports whether the agent can accept another task: it must not
// be errored or offline and must have a free concurrency slot. An agent that
// is busy on one of two slots is still available.
func (a *AgentInfo) Available() bool {
	if a.State == AgentError || a.State == AgentOffline {
		return false
	}
	return len(a.ActiveTasks) < a.MaxConcurrent
}

// Utilization returns the active/max concurrency ratio.
func (a *AgentInfo) Utilization() float64 {
	if a.MaxConcurrent == 0 {
		return 0
	}
	return float64(len(a.ActiveTasks)) / float64(a.MaxConcurrent)
}

// Clone returns a copy safe to hand outside the scheduler's critical section.
func (a *AgentInfo) Clone() *AgentInfo {
	cp := *a
	cp.Capabilities = append([]string(nil), a.Capabilities...)
	cp.CompletedTasks = append([]string(nil), a.CompletedTasks...)
	cp.FailedTasks = append([]string(nil), a.FailedTasks...)
	cp.ActiveTasks = make(map[string]struct{}, len(a.ActiveTasks))
	for id := range a.ActiveTasks {
		cp.ActiveTasks[id] = struct{}{}
	}
	return &cp
}

// AgentRegistry tracks registered agents. Like the task registry it carries
// no lock of its own; the Scheduler serializes access.
type AgentRegistry struct {
	agents map[string]*AgentInfo
	order  []string
}

// NewAgentRegistry creates an empty agent registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		agents: make(map[string]*AgentInfo),
	}
}

// Register adds an agent or, for a known name, refreshes its static fields.
// Live counters survive re-registration while the agent has active tasks.
func (r *AgentRegistry) Register(name, agentType string, capabilities []string, maxConcurrent int) {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	if existing, ok := r.agents[name]; ok {
		existing.AgentType = agentType
		existing.Capabilities = append([]string(nil), capabilities...)
		existing.MaxConcurrent = maxConcurrent
		if len(existing.ActiveTasks) == 0 {
			existing.State = AgentIdle
		}
		return
	}

	r.agents[name] = &AgentInfo{
		Name:          name,
		AgentType:     agentType,
		State:         AgentIdle,
		Capabilities:  append([]string(nil), capabilities...),
		MaxConcurrent: maxConcurrent,
		ActiveTasks:   make(map[string]struct{}),
		LastActivity:  time.Now(),
	}
	r.order = append(r.order, name)
}

// Get returns the agent record or ErrUnknownAgent.
func (r *AgentRegistry) Get(name string) (*AgentInfo, error) {
	agent, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	return agent, nil
}

// CanHandle reports whether the agent's type matches the task and its
// capability set covers the task's required tools. An empty requirement list
// is always satisfied.
func (r *AgentRegistry) CanHandle(agent *AgentInfo, task *Task) bool {
	if task.AgentType != agent.AgentType {
		return false
	}
	if len(task.ToolsRequired) == 0 {
		return true
	}

	caps := make(map[string]struct{}, len(agent.Capabilities))
	for _, c := range agent.Capabilities {
		caps[c] = struct{}{}
	}
	for _, tool := range task.ToolsRequired {
		if _, ok := caps[tool]; !ok {
			return false
		}
	}
	return true
}

// Assign marks the agent busy with the task. Fails with ErrCapacityExceeded
// when the agent is not available.
func (r *AgentRegistry) Assign(name, taskID string) error {
	agent, err := r.Get(name)
	if err != nil {
		return err
	}
	if !agent.Available() {
		return fmt.Errorf("%w: %s (%d/%d active)", ErrCapacityExceeded, name, len(agent.ActiveTasks), agent.MaxConcurrent)
	}

	agent.ActiveTasks[taskID] = struct{}{}
	agent.State = AgentBusy
	agent.LastActivity = time.Now()
	return nil
}

// Release removes the task from the agent's active set and records the
// outcome. The agent returns to idle once its active set drains; with
// MaxConcurrent > 1 it stays busy while other slots are filled.
func (r *AgentRegistry) Release(name, taskID string, outcome Outcome) error {
	agent, err := r.Get(name)
	if err != nil {
		return err
	}

	delete(agent.ActiveTasks, taskID)
	switch outcome {
	case OutcomeSuccess:
		agent.CompletedTasks = append(agent.CompletedTasks, taskID)
	case OutcomeFailure:
		agent.FailedTasks = append(agent.FailedTasks, taskID)
	}
	if len(agent.ActiveTasks) == 0 {
		agent.State = AgentIdle
	}
	agent.LastActivity = time.Now()
	return nil
}

// All iterates agents in registration order.
func (r *AgentRegistry) All() []*AgentInfo {
	agents := make([]*AgentInfo, 0, len(r.order))
	for _, name := range r.order {
		agents = append(agents, r.agents[name])
	}
	return agents
}
