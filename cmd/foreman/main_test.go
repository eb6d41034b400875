package main

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/castellan/foreman/internal/config"
	"github.com/castellan/foreman/internal/executor"
	"github.com/castellan/foreman/internal/scheduler"
	"github.com/castellan/foreman/internal/worker"
	"github.com/castellan/foreman/internal/workspace"
)

// TestProcessManagerKillAllOnShutdown verifies that ProcessManager.KillAll()
// correctly terminates tracked processes during simulated shutdown.
func TestProcessManagerKillAllOnShutdown(t *testing.T) {
	pm := executor.NewProcessManager()

	// Start a long-running subprocess
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // Process group isolation
	}

	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start subprocess: %v", err)
	}

	// Track the process
	pm.Track(cmd)

	// Verify it's tracked
	if count := pm.Count(); count != 1 {
		t.Errorf("Expected 1 tracked process, got %d", count)
	}

	// Simulate shutdown: kill all processes
	if err := pm.KillAll(); err != nil {
		t.Errorf("KillAll() failed: %v", err)
	}

	// Wait for process to terminate (should be killed)
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		// Process terminated (expected - it was killed)
		if err == nil {
			t.Error("Expected process to be killed (non-zero exit), got nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Process did not terminate after KillAll()")
	}

	// KillAll doesn't untrack; that happens when the executor's Run returns
	if count := pm.Count(); count != 1 {
		t.Errorf("Expected process to still be tracked after KillAll, got count=%d", count)
	}

	pm.Untrack(cmd)

	if count := pm.Count(); count != 0 {
		t.Errorf("Expected 0 tracked processes after Untrack, got %d", count)
	}
}

// TestSignalContextCancellation verifies that signal.NotifyContext produces
// a context that cancels correctly when a signal is received.
func TestSignalContextCancellation(t *testing.T) {
	// Use SIGUSR1 as a safe test signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGUSR1)
	defer stop()

	// Send SIGUSR1 to self
	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Failed to send SIGUSR1: %v", err)
	}

	// Verify context cancels within 1 second
	select {
	case <-ctx.Done():
		// Success - context cancelled
	case <-time.After(1 * time.Second):
		t.Fatal("Context did not cancel after SIGUSR1")
	}

	if err := ctx.Err(); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestBuildAgents(t *testing.T) {
	cfg := config.DefaultConfig()
	sched := scheduler.New()
	pm := executor.NewProcessManager()

	agents, err := buildAgents(cfg, sched, pm)
	if err != nil {
		t.Fatalf("buildAgents failed: %v", err)
	}
	if len(agents) != len(cfg.Agents) {
		t.Fatalf("got %d agents, want %d", len(agents), len(cfg.Agents))
	}

	// Sorted registration order
	want := []string{"evaluator-1", "generator-1", "generator-2"}
	for i, agent := range agents {
		if agent.Name != want[i] {
			t.Errorf("agents[%d] = %s, want %s", i, agent.Name, want[i])
		}
		if agent.Exec == nil {
			t.Errorf("agent %s has no executor", agent.Name)
		}
	}

	// Each agent should be registered and available for work
	registered := make(map[string]*scheduler.AgentInfo)
	for _, info := range sched.Agents() {
		registered[info.Name] = info
	}
	for _, name := range want {
		info, ok := registered[name]
		if !ok {
			t.Fatalf("agent %s not registered", name)
		}
		if !info.Available() {
			t.Errorf("agent %s should start available", name)
		}
	}
}

func TestBuildAgentsUnknownExecutor(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agents["broken"] = config.AgentConfig{Type: "generation", Executor: "telepathy"}

	_, err := buildAgents(cfg, scheduler.New(), executor.NewProcessManager())
	if err == nil {
		t.Fatal("expected error for unknown executor type")
	}
}

// TestRunHeadlessCompletesPlan exercises the wiring end to end: config,
// scheduler, simulated executors, and the worker pool.
func TestRunHeadlessCompletesPlan(t *testing.T) {
	cfg := config.DefaultConfig()
	sched := scheduler.New()
	pm := executor.NewProcessManager()

	agents, err := buildAgents(cfg, sched, pm)
	if err != nil {
		t.Fatalf("buildAgents failed: %v", err)
	}

	tasks := []*scheduler.Task{
		{ID: "T1", Title: "Scaffold", AgentType: "generation"},
		{ID: "T2", Title: "Quality check", AgentType: "evaluation", Dependencies: []string{"T1"}},
	}
	if err := sched.SubmitTasks(tasks); err != nil {
		t.Fatalf("SubmitTasks failed: %v", err)
	}

	pool := worker.NewPool(worker.PoolConfig{
		PollInterval: time.Millisecond,
		Workspaces:   workspace.NewManager(t.TempDir()),
	}, sched, agents)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pool.Run(ctx); err != nil {
		t.Fatalf("pool.Run failed: %v", err)
	}

	sum := sched.Summary()
	if sum.Completed != 2 {
		t.Errorf("completed = %d, want 2", sum.Completed)
	}
	if got := sched.CompletionVerdict(); got != scheduler.VerdictFullyCompleted {
		t.Errorf("verdict = %s, want %s", got, scheduler.VerdictFullyCompleted)
	}
}
