package config

// DefaultConfig returns the default configuration with a built-in agent pool:
// two generation agents and one evaluation agent, all simulated.
func DefaultConfig() *ForemanConfig {
	return &ForemanConfig{
		Scheduler: SchedulerConfig{
			MaxRetries:         3,
			FullyThreshold:     1.0,
			MostlyThreshold:    0.8,
			PartiallyThreshold: 0.5,
		},
		Workers: WorkerConfig{
			PollIntervalMS: 250,
			MaxAttempts:    3,
		},
		Agents: map[string]AgentConfig{
			"generator-1": {
				Type:          "generation",
				Capabilities:  []string{"python", "javascript", "web_development", "go", "web_server"},
				MaxConcurrent: 1,
				Executor:      "simulated",
			},
			"generator-2": {
				Type:          "generation",
				Capabilities:  []string{"python", "javascript", "web_development", "go", "web_server"},
				MaxConcurrent: 1,
				Executor:      "simulated",
			},
			"evaluator-1": {
				Type:          "evaluation",
				Capabilities:  []string{"testing", "linting"},
				MaxConcurrent: 1,
				Executor:      "simulated",
			},
		},
		WorkspaceRoot: "output",
		DatabasePath:  ".foreman/state.db",
	}
}
