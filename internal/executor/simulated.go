package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// SimulatedExecutor stands in for a real code-producing agent: it writes the
// task's expected files with placeholder content. Failures can be scripted
// per task to exercise retry handling.
type SimulatedExecutor struct {
	// Delay is slept per run to mimic work. Zero means no delay.
	Delay time.Duration

	mu       sync.Mutex
	failures map[string]int
}

// NewSimulatedExecutor creates a simulated executor.
func NewSimulatedExecutor() *SimulatedExecutor {
	return &SimulatedExecutor{
		failures: make(map[string]int),
	}
}

// FailFirst scripts the executor to fail the first n runs of the given task.
func (e *SimulatedExecutor) FailFirst(taskID string, n int) {
	e.mu.Lock()
	e.failures[taskID] = n
	e.mu.Unlock()
}

// Run writes every expected file under the workspace and reports what it did.
func (e *SimulatedExecutor) Run(ctx context.Context, req Request) (Result, error) {
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	e.mu.Lock()
	remaining := e.failures[req.Task.ID]
	if remaining > 0 {
		e.failures[req.Task.ID] = remaining - 1
	}
	e.mu.Unlock()
	if remaining > 0 {
		return Result{}, fmt.Errorf("simulated failure for task %s", req.Task.ID)
	}

	var lines []string
	for _, name := range req.Task.FilesToCreate {
		path := filepath.Join(req.WorkDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return Result{}, fmt.Errorf("creating directory for %s: %w", name, err)
		}
		content := fmt.Sprintf("// %s\n// generated for task %s: %s\n", name, req.Task.ID, req.Task.Title)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return Result{}, fmt.Errorf("writing %s: %w", name, err)
		}
		lines = append(lines, "created "+name)
	}
	if len(lines) == 0 {
		lines = append(lines, "completed "+req.Task.Title)
	}
	return Result{Output: strings.Join(lines, "\n")}, nil
}

// Close is a no-op.
func (e *SimulatedExecutor) Close() error {
	return nil
}
