// Package executor runs task work on behalf of agents. An Executor takes a
// task plus a provisioned working directory and produces output; what
// "running" means depends on the implementation.
package executor

import (
	"context"
	"fmt"

	"github.com/castellan/foreman/internal/scheduler"
)

// Request is one execution of a task inside its workspace.
type Request struct {
	Task    *scheduler.Task
	WorkDir string
}

// Result carries the execution output.
type Result struct {
	Output string
}

// Executor defines the interface all execution adapters implement.
type Executor interface {
	// Run executes the task and returns its output.
	Run(ctx context.Context, req Request) (Result, error)

	// Close releases any resources held by the executor.
	Close() error
}

// Config selects and parameterizes an executor.
type Config struct {
	Type    string   // "command" or "simulated"
	Command string   // Binary for the command executor
	Args    []string // Default args prepended to every invocation
}

// New creates an executor based on the provided configuration.
// The ProcessManager is optional; if nil, subprocesses won't be tracked.
func New(cfg Config, pm *ProcessManager) (Executor, error) {
	switch cfg.Type {
	case "command":
		return NewCommandExecutor(cfg, pm)
	case "simulated", "":
		return NewSimulatedExecutor(), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %s", cfg.Type)
	}
}
