package config

// SchedulerConfig tunes the task scheduler.
type SchedulerConfig struct {
	MaxRetries         int     `json:"max_retries,omitempty"`         // Retry budget applied to tasks without one
	FullyThreshold     float64 `json:"fully_threshold,omitempty"`     // Completion ratio for a fully_completed verdict
	MostlyThreshold    float64 `json:"mostly_threshold,omitempty"`    // Completion ratio for mostly_completed
	PartiallyThreshold float64 `json:"partially_threshold,omitempty"` // Completion ratio for partially_completed
}

// WorkerConfig tunes the worker pool that drives agents.
type WorkerConfig struct {
	PollIntervalMS int `json:"poll_interval_ms,omitempty"` // Delay between NextTask polls when idle
	MaxAttempts    int `json:"max_attempts,omitempty"`     // Transport-level retry attempts per execution
}

// AgentConfig defines one named agent in the pool.
type AgentConfig struct {
	Type          string   `json:"type"`                   // Capability category ("generation", "evaluation")
	Capabilities  []string `json:"capabilities,omitempty"` // Tools the agent can use
	MaxConcurrent int      `json:"max_concurrent,omitempty"`
	Executor      string   `json:"executor,omitempty"` // Executor type: "command" or "simulated"
	Command       string   `json:"command,omitempty"`  // Binary for the command executor
	Args          []string `json:"args,omitempty"`     // Default args prepended to every invocation
}

// ForemanConfig is the top-level configuration.
type ForemanConfig struct {
	Scheduler     SchedulerConfig        `json:"scheduler"`
	Workers       WorkerConfig           `json:"workers"`
	Agents        map[string]AgentConfig `json:"agents"`
	WorkspaceRoot string                 `json:"workspace_root,omitempty"` // Root for per-task output directories
	DatabasePath  string                 `json:"database_path,omitempty"`  // SQLite checkpoint store location
}
