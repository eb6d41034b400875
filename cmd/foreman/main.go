package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/castellan/foreman/internal/config"
	"github.com/castellan/foreman/internal/events"
	"github.com/castellan/foreman/internal/executor"
	"github.com/castellan/foreman/internal/persistence"
	"github.com/castellan/foreman/internal/plan"
	"github.com/castellan/foreman/internal/scheduler"
	"github.com/castellan/foreman/internal/tui"
	"github.com/castellan/foreman/internal/worker"
	"github.com/castellan/foreman/internal/workspace"
)

const workspaceMaxAge = 7 * 24 * time.Hour

func main() {
	os.Exit(run())
}

// run holds the real entry point so deferred cleanup survives the exit code.
func run() int {
	planPath := flag.String("plan", "", "path to the project plan JSON file")
	noTUI := flag.Bool("no-tui", false, "run headless and log events to stderr")
	flag.Parse()

	if *planPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: foreman -plan <plan.json> [-no-tui]")
		return 2
	}

	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create ProcessManager for subprocess tracking
	pm := executor.NewProcessManager()

	// Load configuration
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}

	// Determine config paths for the settings pane
	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
		return 1
	}
	globalPath := filepath.Join(homeDir, ".foreman", "config.json")
	projectPath := filepath.Join(".foreman", "config.json")

	// Open the checkpoint store
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating database directory: %v\n", err)
			return 1
		}
	}
	store, err := persistence.NewSQLiteStore(ctx, cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return 1
	}
	defer store.Close()

	// Create event bus
	bus := events.NewBus()
	defer bus.Close()

	sched := scheduler.New(
		scheduler.WithEventBus(bus),
		scheduler.WithCheckpoint(store),
		scheduler.WithVerdictThresholds(scheduler.VerdictThresholds{
			Fully:     cfg.Scheduler.FullyThreshold,
			Mostly:    cfg.Scheduler.MostlyThreshold,
			Partially: cfg.Scheduler.PartiallyThreshold,
		}),
	)

	agents, err := buildAgents(cfg, sched, pm)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring agents: %v\n", err)
		return 1
	}
	defer func() {
		for _, agent := range agents {
			agent.Exec.Close()
		}
	}()

	// Load the plan and submit it
	p, err := plan.Load(*planPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading plan: %v\n", err)
		return 1
	}
	tasks, err := p.Tasks()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error converting plan: %v\n", err)
		return 1
	}
	for _, task := range tasks {
		// Config-level retry budget applies to tasks that didn't set one.
		if task.MaxRetries == 0 {
			task.MaxRetries = cfg.Scheduler.MaxRetries
		}
	}
	if err := sched.SubmitTasks(tasks); err != nil {
		fmt.Fprintf(os.Stderr, "Error submitting plan: %v\n", err)
		return 1
	}

	// Workspaces: one directory per task under the configured root
	workspaces := workspace.NewManager(cfg.WorkspaceRoot)
	if pruned, err := workspaces.Prune(workspaceMaxAge); err != nil {
		log.Printf("WARNING: pruning stale workspaces: %v", err)
	} else if len(pruned) > 0 {
		log.Printf("Pruned %d stale workspaces", len(pruned))
	}

	retry := worker.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Workers.MaxAttempts
	pool := worker.NewPool(worker.PoolConfig{
		PollInterval: time.Duration(cfg.Workers.PollIntervalMS) * time.Millisecond,
		Retry:        retry,
		Workspaces:   workspaces,
		Bus:          bus,
	}, sched, agents)

	var exitCode int
	if *noTUI {
		exitCode = runHeadless(ctx, pool, sched, bus)
	} else {
		exitCode = runTUI(ctx, pool, sched, bus, cfg, globalPath, projectPath, pm)
	}

	sum := sched.Summary()
	fmt.Printf("%s: %d/%d tasks completed (%s)\n",
		p.Project, sum.Completed, sum.Total, sched.CompletionVerdict())
	return exitCode
}

// buildAgents registers each configured agent with the scheduler and creates
// its executor. Names are sorted so registration order is stable.
func buildAgents(cfg *config.ForemanConfig, sched *scheduler.Scheduler, pm *executor.ProcessManager) ([]worker.Agent, error) {
	names := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		names = append(names, name)
	}
	sort.Strings(names)

	agents := make([]worker.Agent, 0, len(names))
	for _, name := range names {
		ac := cfg.Agents[name]
		exec, err := executor.New(executor.Config{
			Type:    ac.Executor,
			Command: ac.Command,
			Args:    ac.Args,
		}, pm)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}
		sched.RegisterAgent(name, ac.Type, ac.Capabilities, ac.MaxConcurrent)
		agents = append(agents, worker.Agent{Name: name, Exec: exec})
	}
	return agents, nil
}

// runHeadless drives the pool to completion, logging task events to stderr.
func runHeadless(ctx context.Context, pool *worker.Pool, sched *scheduler.Scheduler, bus *events.Bus) int {
	sub := bus.SubscribeAll(256)
	logDone := make(chan struct{})
	go func() {
		defer close(logDone)
		for event := range sub {
			logEvent(event)
		}
	}()

	err := pool.Run(ctx)
	bus.Close()
	<-logDone

	if err != nil && ctx.Err() != nil {
		log.Println("Shutdown signal received")
		return 130
	}
	if err != nil {
		log.Printf("Worker pool error: %v", err)
		return 1
	}
	return 0
}

func logEvent(event events.Event) {
	switch e := event.(type) {
	case events.TaskReadyEvent:
		log.Printf("ready     %s %s", e.ID, e.Title)
	case events.TaskAssignedEvent:
		log.Printf("assigned  %s -> %s", e.ID, e.AgentName)
	case events.TaskCompletedEvent:
		log.Printf("completed %s in %v", e.ID, e.Duration)
	case events.TaskFailedEvent:
		if e.WillRetry {
			log.Printf("retrying  %s: %s", e.ID, e.Reason)
		} else {
			log.Printf("failed    %s: %s", e.ID, e.Reason)
		}
	case events.TaskBlockedEvent:
		log.Printf("blocked   %s on %s", e.ID, e.BlockedOn)
	case events.TaskCancelledEvent:
		log.Printf("cancelled %s", e.ID)
	case events.ProgressEvent:
		log.Printf("progress  %d/%d (%.0f%%)", e.Completed, e.Total, e.Progress*100)
	}
}

// runTUI runs the worker pool behind a Bubble Tea program. The TUI owns the
// terminal; the pool publishes events the TUI renders.
func runTUI(ctx context.Context, pool *worker.Pool, sched *scheduler.Scheduler, bus *events.Bus, cfg *config.ForemanConfig, globalPath, projectPath string, pm *executor.ProcessManager) int {
	model := tui.New(bus, cfg, globalPath, projectPath)
	prog := tea.NewProgram(model, tea.WithAltScreen())

	tuiErr := make(chan error, 1)
	go func() {
		_, err := prog.Run()
		tuiErr <- err
	}()

	poolCtx, cancelPool := context.WithCancel(ctx)
	defer cancelPool()
	poolErr := make(chan error, 1)
	go func() {
		poolErr <- pool.Run(poolCtx)
	}()

	for {
		select {
		case err := <-tuiErr:
			// User quit; stop the pool and wait for in-flight tasks.
			cancelPool()
			if poolErr != nil {
				<-poolErr
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return 1
			}
			return 0

		case err := <-poolErr:
			// Project finished; leave the TUI up so the user can inspect
			// results, then exit when they quit.
			if err != nil && ctx.Err() == nil {
				log.Printf("Worker pool error: %v", err)
			}
			poolErr = nil

		case <-ctx.Done():
			log.Println("Shutdown signal received, cleaning up...")

			if err := pm.KillAll(); err != nil {
				log.Printf("Error killing subprocesses: %v", err)
			}
			cancelPool()
			prog.Quit()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			select {
			case <-tuiErr:
			case <-shutdownCtx.Done():
				log.Println("Shutdown timeout exceeded, forcing exit")
			}
			return 130
		}
	}
}
