package executor

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// CommandExecutor runs a configured command once per task. The task is passed
// through the environment (FOREMAN_TASK_ID, FOREMAN_TASK_TITLE,
// FOREMAN_TASK_FILES) and the command runs inside the task workspace.
type CommandExecutor struct {
	command string
	args    []string
	pm      *ProcessManager
}

// NewCommandExecutor creates a command executor.
func NewCommandExecutor(cfg Config, pm *ProcessManager) (*CommandExecutor, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("command executor requires a command")
	}
	return &CommandExecutor{
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		pm:      pm,
	}, nil
}

// Run executes the configured command for the task. The task description is
// appended as the final argument.
func (e *CommandExecutor) Run(ctx context.Context, req Request) (Result, error) {
	args := append(append([]string(nil), e.args...), req.Task.Description)
	cmd := newCommand(ctx, e.command, args...)
	cmd.Dir = req.WorkDir
	cmd.Env = taskEnv(req)

	stdout, _, err := executeCommand(cmd, e.pm)
	if err != nil {
		return Result{Output: string(stdout)}, fmt.Errorf("task %s: %w", req.Task.ID, err)
	}
	return Result{Output: string(stdout)}, nil
}

// Close is a no-op; each Run spawns and reaps its own subprocess.
func (e *CommandExecutor) Close() error {
	return nil
}

func taskEnv(req Request) []string {
	return append(os.Environ(),
		"FOREMAN_TASK_ID="+req.Task.ID,
		"FOREMAN_TASK_TITLE="+req.Task.Title,
		"FOREMAN_TASK_FILES="+strings.Join(req.Task.FilesToCreate, ","),
	)
}
