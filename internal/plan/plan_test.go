package plan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/castellan/foreman/internal/scheduler"
)

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing plan: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writePlan(t, `{
		"project": "todo-app",
		"tasks": [
			{"id": "design", "title": "Design the data model"},
			{"title": "Implement API", "dependencies": ["design"]}
		]
	}`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Project != "todo-app" || len(p.Items) != 2 {
		t.Errorf("plan = %+v", p)
	}
}

func TestLoadRejectsBadPlans(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		errContains string
	}{
		{"invalid json", `{"tasks": [`, "parsing plan"},
		{"no tasks", `{"project": "empty", "tasks": []}`, "no tasks"},
		{"missing title", `{"tasks": [{"description": "untitled"}]}`, "no title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePlan(t, tt.content)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Load error = %v, want containing %q", err, tt.errContains)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("Load of missing file should fail")
	}
}

func TestItemTaskDefaults(t *testing.T) {
	item := PlanItem{Title: "Build the parser"}
	task, err := item.Task()
	if err != nil {
		t.Fatalf("Task failed: %v", err)
	}
	if task.ID == "" {
		t.Error("missing ID should get a uuid")
	}
	if task.AgentType != AgentTypeGeneration {
		t.Errorf("AgentType = %q, want generation", task.AgentType)
	}
	if task.Priority != scheduler.PriorityNormal {
		t.Errorf("Priority = %v, want normal", task.Priority)
	}
}

func TestItemTaskExplicitFieldsWin(t *testing.T) {
	item := PlanItem{
		ID:            "t-1",
		Title:         "Review the API",
		AgentType:     "generation",
		Priority:      "high",
		ToolsRequired: []string{"linting"},
		MaxRetries:    5,
	}
	task, err := item.Task()
	if err != nil {
		t.Fatalf("Task failed: %v", err)
	}
	if task.ID != "t-1" || task.AgentType != "generation" || task.MaxRetries != 5 {
		t.Errorf("explicit fields overridden: %+v", task)
	}
	if task.Priority != scheduler.PriorityHigh {
		t.Errorf("Priority = %v, want high", task.Priority)
	}
	if len(task.ToolsRequired) != 1 || task.ToolsRequired[0] != "linting" {
		t.Errorf("ToolsRequired = %v, want [linting]", task.ToolsRequired)
	}
}

func TestItemTaskBadPriority(t *testing.T) {
	item := PlanItem{Title: "x", Priority: "urgent"}
	if _, err := item.Task(); err == nil {
		t.Error("unknown priority should fail conversion")
	}
}

func TestInferAgentType(t *testing.T) {
	tests := []struct {
		name string
		item PlanItem
		want string
	}{
		{"implementation", PlanItem{Title: "Implement login endpoint"}, AgentTypeGeneration},
		{"architecture is implementation", PlanItem{Title: "Design service architecture"}, AgentTypeGeneration},
		{"review keyword in title", PlanItem{Title: "Review generated code"}, AgentTypeEvaluation},
		{"qa keyword in description", PlanItem{Title: "Final pass", Description: "QA the deliverables"}, AgentTypeEvaluation},
		{"validate keyword", PlanItem{Title: "Validate output files"}, AgentTypeEvaluation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inferAgentType(tt.item); got != tt.want {
				t.Errorf("inferAgentType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInferTools(t *testing.T) {
	item := PlanItem{
		Description:   "Serve the app from a small web server",
		FilesToCreate: []string{"app.py", "static/main.js", "static/style.css", "index.html"},
	}
	got := inferTools(item)
	want := map[string]bool{"python": true, "javascript": true, "web_development": true, "web_server": true}
	if len(got) != len(want) {
		t.Fatalf("inferTools = %v, want keys %v", got, want)
	}
	for _, tool := range got {
		if !want[tool] {
			t.Errorf("unexpected tool %q", tool)
		}
	}
}

func TestValidationCriteria(t *testing.T) {
	item := PlanItem{
		Description:   "Build a responsive page and test it",
		FilesToCreate: []string{"index.html"},
	}
	criteria := validationCriteria(item)
	if criteria["responsive_design"] != true || criteria["needs_testing"] != true {
		t.Errorf("criteria = %v", criteria)
	}
	files, ok := criteria["files_required"].([]string)
	if !ok || len(files) != 1 {
		t.Errorf("files_required = %v", criteria["files_required"])
	}

	if got := validationCriteria(PlanItem{Title: "x"}); got != nil {
		t.Errorf("empty criteria = %v, want nil", got)
	}
}

func TestParseEffort(t *testing.T) {
	tests := []struct {
		effort string
		want   int
	}{
		{"2 hours", 120},
		{"1.5 hours", 90},
		{"1 hour", 60},
		{"45 minutes", 45},
		{"30 min", 30},
		{"", 0},
		{"soon", 0},
		{"many hours", 0},
	}
	for _, tt := range tests {
		if got := parseEffort(tt.effort); got != tt.want {
			t.Errorf("parseEffort(%q) = %d, want %d", tt.effort, got, tt.want)
		}
	}
}

func TestPlanTasksOrderAndErrors(t *testing.T) {
	p := &Plan{Items: []PlanItem{
		{ID: "a", Title: "First"},
		{ID: "b", Title: "Second", Dependencies: []string{"a"}},
	}}
	tasks, err := p.Tasks()
	if err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	if tasks[0].ID != "a" || tasks[1].ID != "b" {
		t.Errorf("order = %v, %v", tasks[0].ID, tasks[1].ID)
	}

	bad := &Plan{Items: []PlanItem{{Title: "Broken", Priority: "asap"}}}
	if _, err := bad.Tasks(); err == nil || !strings.Contains(err.Error(), "Broken") {
		t.Errorf("Tasks error = %v, want item context", err)
	}
}
