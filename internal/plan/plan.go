// Package plan loads project plans and converts their items into scheduler
// tasks. A plan is the hand-off artifact from the planning collaborator: a
// JSON document listing work items with dependencies.
package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/castellan/foreman/internal/scheduler"
)

// Agent type categories tasks are routed by.
const (
	AgentTypeGeneration = "generation"
	AgentTypeEvaluation = "evaluation"
)

// Plan is a parsed project plan.
type Plan struct {
	Project     string     `json:"project"`
	Description string     `json:"description,omitempty"`
	Items       []PlanItem `json:"tasks"`
}

// PlanItem is one unit of work as the planner expresses it. Only Title is
// required; everything else is inferred or defaulted during conversion.
type PlanItem struct {
	ID              string   `json:"id,omitempty"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	AgentType       string   `json:"agent_type,omitempty"`
	Priority        string   `json:"priority,omitempty"`
	Dependencies    []string `json:"dependencies,omitempty"`
	FilesToCreate   []string `json:"files_to_create,omitempty"`
	ToolsRequired   []string `json:"tools_required,omitempty"`
	EstimatedEffort string   `json:"estimated_effort,omitempty"`
	MaxRetries      int      `json:"max_retries,omitempty"`
}

// Load reads and parses a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}

	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan %s: %w", path, err)
	}
	if len(p.Items) == 0 {
		return nil, fmt.Errorf("plan %s contains no tasks", path)
	}
	for i, item := range p.Items {
		if strings.TrimSpace(item.Title) == "" {
			return nil, fmt.Errorf("plan %s: task %d has no title", path, i)
		}
	}
	return &p, nil
}

// Tasks converts every plan item into a scheduler task, in plan order.
func (p *Plan) Tasks() ([]*scheduler.Task, error) {
	tasks := make([]*scheduler.Task, 0, len(p.Items))
	for i, item := range p.Items {
		task, err := item.Task()
		if err != nil {
			return nil, fmt.Errorf("plan item %d (%q): %w", i, item.Title, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Task converts a single plan item. Missing IDs get a fresh uuid; agent type
// and required tools are inferred from the item's content when absent.
func (item PlanItem) Task() (*scheduler.Task, error) {
	id := item.ID
	if id == "" {
		id = uuid.NewString()
	}

	priority, err := scheduler.ParsePriority(item.Priority)
	if err != nil {
		return nil, err
	}

	agentType := item.AgentType
	if agentType == "" {
		agentType = inferAgentType(item)
	}

	tools := item.ToolsRequired
	if len(tools) == 0 {
		tools = inferTools(item)
	}

	return &scheduler.Task{
		ID:                 id,
		Title:              item.Title,
		Description:        item.Description,
		AgentType:          agentType,
		Priority:           priority,
		Dependencies:       append([]string(nil), item.Dependencies...),
		MaxRetries:         item.MaxRetries,
		FilesToCreate:      append([]string(nil), item.FilesToCreate...),
		ToolsRequired:      tools,
		ValidationCriteria: validationCriteria(item),
		EstimatedMinutes:   parseEffort(item.EstimatedEffort),
		Metadata: map[string]any{
			"source": "project_plan",
		},
	}, nil
}

// evaluationKeywords route review-style work to evaluation agents. Everything
// else, architecture included, is implementation work.
var evaluationKeywords = []string{"review", "test", "validate", "check", "quality", "qa"}

func inferAgentType(item PlanItem) string {
	text := strings.ToLower(item.Title + " " + item.Description)
	for _, kw := range evaluationKeywords {
		if strings.Contains(text, kw) {
			return AgentTypeEvaluation
		}
	}
	return AgentTypeGeneration
}

func inferTools(item PlanItem) []string {
	var tools []string
	add := func(tool string) {
		for _, t := range tools {
			if t == tool {
				return
			}
		}
		tools = append(tools, tool)
	}

	for _, name := range item.FilesToCreate {
		switch filepath.Ext(strings.ToLower(name)) {
		case ".py":
			add("python")
		case ".js", ".ts":
			add("javascript")
		case ".html", ".css":
			add("web_development")
		case ".go":
			add("go")
		}
	}

	desc := strings.ToLower(item.Description)
	if strings.Contains(desc, "test") {
		add("testing")
	}
	if strings.Contains(desc, "server") {
		add("web_server")
	}
	return tools
}

func validationCriteria(item PlanItem) map[string]any {
	criteria := make(map[string]any)
	if len(item.FilesToCreate) > 0 {
		criteria["files_required"] = append([]string(nil), item.FilesToCreate...)
	}
	desc := strings.ToLower(item.Description)
	if strings.Contains(desc, "responsive") {
		criteria["responsive_design"] = true
	}
	if strings.Contains(desc, "test") {
		criteria["needs_testing"] = true
	}
	if len(criteria) == 0 {
		return nil
	}
	return criteria
}

// parseEffort converts planner effort strings like "2 hours" or "45 min" to
// minutes. Unparseable input yields 0 (unknown).
func parseEffort(effort string) int {
	effort = strings.ToLower(strings.TrimSpace(effort))
	if effort == "" {
		return 0
	}

	parse := func(unit string, factor float64) (int, bool) {
		idx := strings.Index(effort, unit)
		if idx < 0 {
			return 0, false
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(effort[:idx]), 64)
		if err != nil {
			return 0, false
		}
		return int(value * factor), true
	}

	if minutes, ok := parse("hour", 60); ok {
		return minutes
	}
	if minutes, ok := parse("min", 1); ok {
		return minutes
	}
	return 0
}
