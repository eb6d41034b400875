package scheduler

import (
	"time"

	"github.com/castellan/foreman/internal/events"
)

// Verdict classifies overall project completion into bands.
type Verdict string

const (
	VerdictFullyCompleted  Verdict = "fully_completed"
	VerdictMostlyCompleted Verdict = "mostly_completed"
	VerdictPartial         Verdict = "partially_completed"
	VerdictMinimal         Verdict = "minimal_completion"
	VerdictNoTasks         Verdict = "no_tasks"
)

// VerdictThresholds are the lower bounds of the completion-ratio bands.
type VerdictThresholds struct {
	Fully     float64 `json:"fully"`
	Mostly    float64 `json:"mostly"`
	Partially float64 `json:"partially"`
}

// DefaultVerdictThresholds returns the default band boundaries: a project is
// fully completed at ratio 1.0, mostly at 0.8, partially at 0.5.
func DefaultVerdictThresholds() VerdictThresholds {
	return VerdictThresholds{Fully: 1.0, Mostly: 0.8, Partially: 0.5}
}

// Classify maps a completion ratio to its verdict band.
func (t VerdictThresholds) Classify(ratio float64) Verdict {
	switch {
	case ratio >= t.Fully:
		return VerdictFullyCompleted
	case ratio >= t.Mostly:
		return VerdictMostlyCompleted
	case ratio >= t.Partially:
		return VerdictPartial
	default:
		return VerdictMinimal
	}
}

// AgentUtilization reports one agent's load in a summary snapshot.
type AgentUtilization struct {
	Name   string
	State  AgentState
	Active int
	Max    int
	Ratio  float64
}

// Summary is a consistent snapshot of project progress, derived from the
// task and agent registries. It is a read-side projection: nothing in it is
// stored independently.
type Summary struct {
	Total      int
	Pending    int
	Ready      int
	InProgress int
	Blocked    int
	Completed  int
	Failed     int
	Cancelled  int

	Progress float64 // completed / total, 0 when no tasks
	Verdict  Verdict

	Agents      []AgentUtilization
	LastUpdated time.Time
}

// Summary computes the current project snapshot under the scheduler lock, so
// it never observes a half-applied transition.
func (s *Scheduler) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

// CompletionVerdict classifies overall completion using the configured
// threshold bands. An empty project yields VerdictNoTasks.
func (s *Scheduler) CompletionVerdict() Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tasks.Len() == 0 {
		return VerdictNoTasks
	}
	return s.summaryLocked().Verdict
}

func (s *Scheduler) summaryLocked() Summary {
	counts := s.tasks.CountByStatus()
	total := s.tasks.Len()

	progress := 0.0
	if total > 0 {
		progress = float64(counts[StatusCompleted]) / float64(total)
	}

	sum := Summary{
		Total:       total,
		Pending:     counts[StatusPending],
		Ready:       counts[StatusReady],
		InProgress:  counts[StatusInProgress],
		Blocked:     counts[StatusBlocked],
		Completed:   counts[StatusCompleted],
		Failed:      counts[StatusFailed],
		Cancelled:   counts[StatusCancelled],
		Progress:    progress,
		Verdict:     s.thresholds.Classify(progress),
		LastUpdated: s.tasks.LastUpdated(),
	}
	if total == 0 {
		sum.Verdict = VerdictNoTasks
	}

	for _, agent := range s.agents.All() {
		sum.Agents = append(sum.Agents, AgentUtilization{
			Name:   agent.Name,
			State:  agent.State,
			Active: len(agent.ActiveTasks),
			Max:    agent.MaxConcurrent,
			Ratio:  agent.Utilization(),
		})
	}
	return sum
}

// progressLocked builds the progress event matching the current snapshot.
func (s *Scheduler) progressLocked() events.Event {
	sum := s.summaryLocked()
	return events.ProgressEvent{
		Total:     sum.Total,
		Completed: sum.Completed,
		Failed:    sum.Failed,
		Running:   sum.InProgress,
		Ready:     sum.Ready,
		Pending:   sum.Pending,
		Blocked:   sum.Blocked,
		Progress:  sum.Progress,
		Verdict:   string(sum.Verdict),
		Timestamp: s.now(),
	}
}
