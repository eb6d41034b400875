package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/castellan/foreman/internal/events"
)

// taskEntry tracks one task's display state as events arrive.
type taskEntry struct {
	ID        string
	Title     string
	AgentName string
	Status    string // "ready", "running", "completed", "failed", "blocked", "cancelled"
	Output    []string
	StartTime time.Time
	Duration  time.Duration
}

// TaskPaneModel shows the task list alongside a scrollable output viewport
// for the selected task.
type TaskPaneModel struct {
	tasks       map[string]*taskEntry
	taskOrder   []string // insertion order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing viewport refreshes
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	vp := viewport.New(0, 0)
	return TaskPaneModel{
		tasks:    make(map[string]*taskEntry),
		viewport: vp,
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskReadyEvent:
		m.ensureEntry(msg.ID, msg.Title).Status = "ready"

	case events.TaskAssignedEvent:
		entry := m.ensureEntry(msg.ID, msg.Title)
		entry.Status = "running"
		entry.AgentName = msg.AgentName
		entry.StartTime = msg.Timestamp

	case events.TaskOutputEvent:
		if entry, exists := m.tasks[msg.ID]; exists {
			entry.Output = append(entry.Output, msg.Line)
			if m.selectedTaskID() == msg.ID {
				m.updateTag++
				tag := m.updateTag
				return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
					return tickMsg{tag: tag}
				})
			}
		}

	case events.TaskCompletedEvent:
		if entry, exists := m.tasks[msg.ID]; exists {
			entry.Status = "completed"
			entry.Duration = msg.Duration
			entry.Output = append(entry.Output, fmt.Sprintf("\n[Completed in %v]", msg.Duration))
			if m.selectedTaskID() == msg.ID {
				m.updateViewportContent()
			}
		}

	case events.TaskFailedEvent:
		if entry, exists := m.tasks[msg.ID]; exists {
			if msg.WillRetry {
				entry.Status = "ready"
				entry.Output = append(entry.Output, fmt.Sprintf("\n[Failed, retrying: %s]", msg.Reason))
			} else {
				entry.Status = "failed"
				entry.Output = append(entry.Output, fmt.Sprintf("\n[Failed: %s]", msg.Reason))
			}
			if m.selectedTaskID() == msg.ID {
				m.updateViewportContent()
			}
		}

	case events.TaskBlockedEvent:
		if entry, exists := m.tasks[msg.ID]; exists {
			entry.Status = "blocked"
			entry.Output = append(entry.Output, fmt.Sprintf("\n[Blocked on %s]", msg.BlockedOn))
		}

	case events.TaskCancelledEvent:
		if entry, exists := m.tasks[msg.ID]; exists {
			entry.Status = "cancelled"
		}

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// ensureEntry returns the entry for a task, creating it on first sight.
func (m *TaskPaneModel) ensureEntry(id, title string) *taskEntry {
	if entry, exists := m.tasks[id]; exists {
		if title != "" {
			entry.Title = title
		}
		return entry
	}
	entry := &taskEntry{ID: id, Title: title, Status: "ready"}
	m.tasks[id] = entry
	m.taskOrder = append(m.taskOrder, id)
	if len(m.taskOrder) == 1 {
		m.selectedIdx = 0
		m.updateViewportContent()
	}
	return entry
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 28
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	} else {
		for i, id := range m.taskOrder {
			entry := m.tasks[id]
			name := entry.Title
			if name == "" {
				name = entry.ID
			}
			if len(name) > width-6 {
				name = name[:width-9] + "..."
			}

			line := fmt.Sprintf("%s %s", m.StatusIcon(entry.Status), name)
			if i == m.selectedIdx {
				line = lipgloss.NewStyle().
					Background(lipgloss.Color("62")).
					Foreground(lipgloss.Color("0")).
					Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func (m TaskPaneModel) StatusIcon(status string) string {
	switch status {
	case "running":
		return StyleStatusRunning.Render("●")
	case "completed":
		return StyleStatusComplete.Render("✓")
	case "failed":
		return StyleStatusFailed.Render("✗")
	case "blocked", "cancelled":
		return StyleStatusBlocked.Render("■")
	default:
		return StyleStatusPending.Render("○")
	}
}

func (m TaskPaneModel) selectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

// updateViewportContent refreshes the viewport with the selected task's output.
func (m *TaskPaneModel) updateViewportContent() {
	id := m.selectedTaskID()
	entry, exists := m.tasks[id]
	if id == "" || !exists {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	var header string
	if entry.AgentName != "" {
		header = fmt.Sprintf("%s (agent: %s)\n\n", entry.Title, entry.AgentName)
	} else {
		header = entry.Title + "\n\n"
	}
	m.viewport.SetContent(header + strings.Join(entry.Output, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	listWidth := 28
	viewportWidth := m.width - listWidth - 4
	viewportHeight := m.height - 4

	if viewportWidth < 10 {
		viewportWidth = 10
	}
	if viewportHeight < 5 {
		viewportHeight = 5
	}
	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
