package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/castellan/foreman/internal/scheduler"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndGetTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	task := &scheduler.Task{
		ID:            "T1",
		Title:         "Build API",
		Description:   "REST endpoints",
		AgentType:     "generation",
		Priority:      scheduler.PriorityHigh,
		Status:        scheduler.StatusInProgress,
		Dependencies:  []string{"T0"},
		RetryCount:    1,
		MaxRetries:    3,
		AssignedAgent: "generator-1",
		FilesToCreate: []string{"api.go", "api_test.go"},
		ToolsRequired: []string{"go"},
		ValidationCriteria: map[string]any{
			"files_required": []any{"api.go"},
		},
		Metadata:         map[string]any{"source": "project_plan"},
		EstimatedMinutes: 90,
		CreatedAt:        started.Add(-time.Hour),
		StartedAt:        &started,
		ErrorInfo:        map[string]any{"error": "first attempt flaked"},
	}

	if err := store.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}

	got, err := store.GetTask(ctx, "T1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != task.Title || got.Status != task.Status || got.Priority != task.Priority {
		t.Errorf("loaded task = %+v", got)
	}
	if got.RetryCount != 1 || got.MaxRetries != 3 || got.AssignedAgent != "generator-1" {
		t.Errorf("bookkeeping fields = %+v", got)
	}
	if len(got.Dependencies) != 1 || got.Dependencies[0] != "T0" {
		t.Errorf("Dependencies = %v", got.Dependencies)
	}
	if len(got.FilesToCreate) != 2 || got.FilesToCreate[1] != "api_test.go" {
		t.Errorf("FilesToCreate = %v", got.FilesToCreate)
	}
	if got.Metadata["source"] != "project_plan" {
		t.Errorf("Metadata = %v", got.Metadata)
	}
	if got.ErrorInfo["error"] != "first attempt flaked" {
		t.Errorf("ErrorInfo = %v", got.ErrorInfo)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v", got.StartedAt)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
	}
}

func TestSaveTaskIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := &scheduler.Task{ID: "T1", Title: "Build", AgentType: "generation", Status: scheduler.StatusReady, CreatedAt: time.Now()}
	if err := store.SaveTask(ctx, task); err != nil {
		t.Fatalf("first SaveTask failed: %v", err)
	}

	task.Status = scheduler.StatusCompleted
	task.Result = map[string]any{"files": []any{"main.go"}}
	if err := store.SaveTask(ctx, task); err != nil {
		t.Fatalf("second SaveTask failed: %v", err)
	}

	got, err := store.GetTask(ctx, "T1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != scheduler.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.Result == nil {
		t.Error("Result not updated")
	}

	tasks, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("ListTasks returned %d rows, want 1", len(tasks))
	}
}

func TestGetTaskNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetTask(context.Background(), "ghost"); err == nil {
		t.Error("GetTask of missing task should fail")
	}
}

func TestListTasksOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		task := &scheduler.Task{
			ID:        id,
			Title:     id,
			AgentType: "generation",
			Status:    scheduler.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.SaveTask(ctx, task); err != nil {
			t.Fatalf("SaveTask(%s) failed: %v", id, err)
		}
	}

	tasks, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	want := []string{"first", "second", "third"}
	for i, task := range tasks {
		if task.ID != want[i] {
			t.Errorf("tasks[%d] = %q, want %q", i, task.ID, want[i])
		}
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(ctx)
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}
	defer store.Close()

	task := &scheduler.Task{ID: "T1", Title: "x", AgentType: "generation", Status: scheduler.StatusReady, CreatedAt: time.Now()}
	if err := store.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	if _, err := store.GetTask(ctx, "T1"); err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
}

func TestSaveAndListAgents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	agent := &scheduler.AgentInfo{
		Name:           "generator-1",
		AgentType:      "generation",
		State:          scheduler.AgentIdle,
		Capabilities:   []string{"go", "python"},
		MaxConcurrent:  2,
		CompletedTasks: []string{"T1", "T2"},
		FailedTasks:    []string{"T3"},
		LastActivity:   time.Now().UTC(),
	}
	if err := store.SaveAgent(ctx, agent); err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}

	// Update in place and save again.
	agent.State = scheduler.AgentBusy
	if err := store.SaveAgent(ctx, agent); err != nil {
		t.Fatalf("second SaveAgent failed: %v", err)
	}

	agents, err := store.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("ListAgents returned %d rows, want 1", len(agents))
	}
	got := agents[0]
	if got.State != scheduler.AgentBusy || got.MaxConcurrent != 2 {
		t.Errorf("agent = %+v", got)
	}
	if len(got.Capabilities) != 2 || len(got.CompletedTasks) != 2 || len(got.FailedTasks) != 1 {
		t.Errorf("agent lists = %+v", got)
	}
}

// The store doubles as the scheduler's checkpoint sink.
func TestStoreIsCheckpointSink(t *testing.T) {
	var _ scheduler.CheckpointSink = (*SQLiteStore)(nil)

	store := newTestStore(t)
	s := scheduler.New(scheduler.WithCheckpoint(store))
	if err := s.SubmitTasks([]*scheduler.Task{
		{ID: "A", Title: "A", AgentType: "generation"},
		{ID: "B", Title: "B", AgentType: "generation", Dependencies: []string{"A"}},
	}); err != nil {
		t.Fatalf("SubmitTasks failed: %v", err)
	}

	tasks, err := store.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("checkpointed %d tasks, want 2", len(tasks))
	}
}
