// Package worker drives the agent pool: each agent polls the scheduler for
// its next task, executes it in a provisioned workspace, and reports the
// outcome back.
package worker

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/castellan/foreman/internal/events"
	"github.com/castellan/foreman/internal/executor"
	"github.com/castellan/foreman/internal/scheduler"
	"github.com/castellan/foreman/internal/workspace"
)

// Agent pairs a registered scheduler agent with the executor that does its
// work.
type Agent struct {
	Name string
	Exec executor.Executor
}

// PoolConfig configures the worker pool.
type PoolConfig struct {
	PollInterval time.Duration      // Delay between polls when no task is available (default 250ms)
	Retry        RetryConfig        // Transport-level retry policy
	Workspaces   *workspace.Manager // Per-task working directories
	Bus          *events.Bus        // Optional; executor output is published to it
}

// Pool runs one goroutine per agent until the project can make no further
// progress or the context is cancelled.
type Pool struct {
	cfg      PoolConfig
	sched    *scheduler.Scheduler
	agents   []Agent
	breakers *CircuitBreakerRegistry
}

// NewPool creates a worker pool over the given scheduler and agents.
func NewPool(cfg PoolConfig, sched *scheduler.Scheduler, agents []Agent) *Pool {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Workspaces == nil {
		cfg.Workspaces = workspace.NewManager("")
	}
	return &Pool{
		cfg:      cfg,
		sched:    sched,
		agents:   agents,
		breakers: NewCircuitBreakerRegistry(),
	}
}

// Run executes tasks until the scheduler reports no further progress is
// possible. Returns the context error on cancellation, nil otherwise.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, agent := range p.agents {
		a := agent
		g.Go(func() error {
			return p.runAgent(gctx, a)
		})
	}
	return g.Wait()
}

func (p *Pool) runAgent(ctx context.Context, agent Agent) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.sched.Done() {
			return nil
		}

		task, err := p.sched.NextTask(agent.Name)
		if err != nil {
			return err
		}
		if task == nil {
			// Nothing assignable right now; other agents may still be
			// unblocking work.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.PollInterval):
			}
			continue
		}

		p.executeTask(ctx, agent, task)
	}
}

// executeTask runs one assigned task end to end and reports Complete or Fail.
func (p *Pool) executeTask(ctx context.Context, agent Agent, task *scheduler.Task) {
	info, err := p.cfg.Workspaces.Provision(task.ID)
	if err != nil {
		p.fail(task.ID, agent.Name, err)
		return
	}

	cb := p.breakers.Get(task.AgentType)
	result, err := runWithRetry(ctx, agent.Exec, executor.Request{Task: task, WorkDir: info.Path}, cb, p.cfg.Retry)
	if err != nil {
		p.fail(task.ID, agent.Name, err)
		return
	}
	p.publishOutput(task.ID, result.Output)

	produced, err := p.cfg.Workspaces.Collect(info, task.FilesToCreate)
	if err != nil {
		p.fail(task.ID, agent.Name, err)
		return
	}

	payload := map[string]any{
		"agent":  agent.Name,
		"output": result.Output,
	}
	if len(produced) > 0 {
		payload["files"] = produced
		payload["workspace"] = info.Path
	}
	if err := p.sched.Complete(task.ID, payload); err != nil {
		p.fail(task.ID, agent.Name, err)
	}
}

func (p *Pool) fail(taskID, agentName string, err error) {
	// Best-effort: on a cancelled context the task may already be cancelled.
	_, _ = p.sched.Fail(taskID, map[string]any{
		"error": err.Error(),
		"agent": agentName,
	})
}

func (p *Pool) publishOutput(taskID, output string) {
	if p.cfg.Bus == nil || output == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(output, "\n"), "\n") {
		p.cfg.Bus.Publish(events.TopicTask, events.TaskOutputEvent{
			ID:        taskID,
			Line:      line,
			Timestamp: time.Now(),
		})
	}
}
