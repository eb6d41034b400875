package scheduler

import (
	"fmt"
	"sort"

	"github.com/gammazero/toposort"
)

// DepGraph maintains dependency edges between tasks. Forward edges live on
// the tasks themselves (Task.Dependencies); the graph keeps the reverse index
// from a task to the set of tasks that depend on it.
type DepGraph struct {
	reg        *TaskRegistry
	dependents map[string]map[string]struct{} // depID -> dependent task IDs
}

// NewDepGraph creates a graph over the given registry.
func NewDepGraph(reg *TaskRegistry) *DepGraph {
	return &DepGraph{
		reg:        reg,
		dependents: make(map[string]map[string]struct{}),
	}
}

// Register records reverse edges for a task's dependencies. Unknown
// dependency IDs are tolerated so bulk submissions can arrive in any order;
// Validate catches references that never resolve.
func (g *DepGraph) Register(taskID string, deps []string) {
	for _, depID := range deps {
		set, ok := g.dependents[depID]
		if !ok {
			set = make(map[string]struct{})
			g.dependents[depID] = set
		}
		set[taskID] = struct{}{}
	}
}

// Dependents returns the IDs of tasks that depend on taskID, sorted for
// deterministic propagation order.
func (g *DepGraph) Dependents(taskID string) []string {
	set := g.dependents[taskID]
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks that every dependency resolves to a known task and that the
// graph is acyclic. Cycle detection runs a topological sort over all known
// tasks (gammazero/toposort).
func (g *DepGraph) Validate() error {
	for _, task := range g.reg.All() {
		for _, depID := range task.Dependencies {
			if !g.reg.Has(depID) {
				return fmt.Errorf("%w: task %q depends on %q", ErrUnknownDependency, task.ID, depID)
			}
		}
	}

	var edges []toposort.Edge
	for _, task := range g.reg.All() {
		if len(task.Dependencies) == 0 {
			// Edge from nil keeps isolated tasks in the sort result.
			edges = append(edges, toposort.Edge{nil, task.ID})
			continue
		}
		for _, depID := range task.Dependencies {
			edges = append(edges, toposort.Edge{depID, task.ID})
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyCycle, err)
	}
	return nil
}

// RecomputeReadiness re-evaluates a PENDING task against its dependencies'
// statuses: all completed requests PENDING -> READY, any terminally failed or
// cancelled dependency requests PENDING -> BLOCKED. Returns the status the
// task ended up with and whether it changed.
//
// BLOCKED is one-way: a terminal dependency failure never reverts, so blocked
// tasks are not re-evaluated.
func (g *DepGraph) RecomputeReadiness(taskID string) (TaskStatus, bool, error) {
	task, err := g.reg.Get(taskID)
	if err != nil {
		return "", false, err
	}

	if task.Status != StatusPending {
		return task.Status, false, nil
	}

	allCompleted := true
	for _, depID := range task.Dependencies {
		dep, err := g.reg.Get(depID)
		if err != nil {
			// Dangling reference during bulk registration: not ready yet.
			allCompleted = false
			continue
		}
		switch dep.Status {
		case StatusCompleted:
		case StatusFailed, StatusCancelled:
			if err := g.reg.SetStatus(taskID, StatusBlocked); err != nil {
				return task.Status, false, err
			}
			return StatusBlocked, true, nil
		default:
			allCompleted = false
		}
	}

	if !allCompleted {
		return StatusPending, false, nil
	}
	if err := g.reg.SetStatus(taskID, StatusReady); err != nil {
		return task.Status, false, err
	}
	return StatusReady, true, nil
}

// PropagateCompletion re-evaluates readiness for every task that depends on
// taskID. Each dependent's readiness is a function of its direct dependencies
// only, so one hop suffices. Idempotent: a second call finds the dependents
// already out of PENDING and changes nothing. Returns the IDs of tasks whose
// status changed.
func (g *DepGraph) PropagateCompletion(taskID string) ([]string, error) {
	var changed []string
	for _, depID := range g.Dependents(taskID) {
		if !g.reg.Has(depID) {
			// Reverse edge registered before the dependent itself; it will be
			// evaluated when it arrives.
			continue
		}
		if _, moved, err := g.RecomputeReadiness(depID); err != nil {
			return changed, err
		} else if moved {
			changed = append(changed, depID)
		}
	}
	return changed, nil
}
