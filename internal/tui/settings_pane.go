package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/castellan/foreman/internal/config"
)

// SettingsPaneModel manages the settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.ForemanConfig
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget         string
	maxRetries         string
	pollIntervalMS     string
	fullyThreshold     string
	mostlyThreshold    string
	partiallyThreshold string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.ForemanConfig, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
		visible:     false,
		saved:       false,

		// Initialize form field values from config
		saveTarget:         "global",
		maxRetries:         strconv.Itoa(cfg.Scheduler.MaxRetries),
		pollIntervalMS:     strconv.Itoa(cfg.Workers.PollIntervalMS),
		fullyThreshold:     formatThreshold(cfg.Scheduler.FullyThreshold),
		mostlyThreshold:    formatThreshold(cfg.Scheduler.MostlyThreshold),
		partiallyThreshold: formatThreshold(cfg.Scheduler.PartiallyThreshold),
	}

	m.buildForm()
	return m
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func validateInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a whole number")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateRatio(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("must be between 0 and 1")
	}
	return nil
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.foreman/config.json)", "global"),
					huh.NewOption("Project (.foreman/config.json)", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("maxRetries").
				Title("Max Task Retries").
				Value(&m.maxRetries).
				Placeholder("3").
				Validate(validateInt),

			huh.NewInput().
				Key("pollIntervalMS").
				Title("Worker Poll Interval (ms)").
				Value(&m.pollIntervalMS).
				Placeholder("250").
				Validate(validateInt),
		).Title("Scheduling"),

		huh.NewGroup(
			huh.NewInput().
				Key("fullyThreshold").
				Title("Fully Completed Threshold").
				Value(&m.fullyThreshold).
				Placeholder("1.0").
				Validate(validateRatio),

			huh.NewInput().
				Key("mostlyThreshold").
				Title("Mostly Completed Threshold").
				Value(&m.mostlyThreshold).
				Placeholder("0.8").
				Validate(validateRatio),

			huh.NewInput().
				Key("partiallyThreshold").
				Title("Partially Completed Threshold").
				Value(&m.partiallyThreshold).
				Placeholder("0.5").
				Validate(validateRatio),
		).Title("Verdict Thresholds"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			// Cancel without saving
			m.visible = false
			m.saved = false
			return m, nil
		}
	}

	// Delegate to form
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	// Check if form is completed
	if m.form.State == huh.StateCompleted {
		// Copy form values back to config
		m.applyFormToConfig()

		// Determine save path
		targetPath := m.globalPath
		if m.saveTarget == "project" {
			targetPath = m.projectPath
		}

		// Save config
		if err := config.Save(m.config, targetPath); err != nil {
			m.err = err
			m.saved = false
		} else {
			m.saved = true
			m.err = nil
		}

		// Hide form after successful save
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// applyFormToConfig copies form field values back to the config struct.
// Fields were validated by the form, so parse errors leave the old value.
func (m *SettingsPaneModel) applyFormToConfig() {
	if n, err := strconv.Atoi(m.maxRetries); err == nil {
		m.config.Scheduler.MaxRetries = n
	}
	if n, err := strconv.Atoi(m.pollIntervalMS); err == nil {
		m.config.Workers.PollIntervalMS = n
	}
	if f, err := strconv.ParseFloat(m.fullyThreshold, 64); err == nil {
		m.config.Scheduler.FullyThreshold = f
	}
	if f, err := strconv.ParseFloat(m.mostlyThreshold, 64); err == nil {
		m.config.Scheduler.MostlyThreshold = f
	}
	if f, err := strconv.ParseFloat(m.partiallyThreshold, 64); err == nil {
		m.config.Scheduler.PartiallyThreshold = f
	}
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string

	// Show saved message if just saved
	if m.saved && m.form.State == huh.StateCompleted {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true).
			Render("✓ Settings saved successfully!")
	} else if m.err != nil {
		// Show error if save failed
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		// Render form
		content = m.form.View()
	}

	// Wrap in styled border
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	body := style.Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	// Reset form state when showing
	if v && m.form != nil {
		// Rebuild form to reset state
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}
