// Package tui is the interactive status view for `wattach run --ui`.
//
// The Model is fed from outside the bubbletea loop through Program.Send:
// StateMsg for coordinator transitions, CycleMsg for attach cycles and
// LineMsg for status log lines (see LineWriter).
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const defaultMaxLines = 200

// StateMsg reports a coordinator transition
type StateMsg struct {
	State   string
	Attempt int
	Reason  string
}

// CycleMsg reports a new attach cycle
type CycleMsg struct {
	Session     int
	PID         int
	PreviousPID int
}

// LineMsg is one status log line
type LineMsg string

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	borderStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Model is the bubbletea model
type Model struct {
	configuration string
	program       string

	spinner spinner.Model
	state   string
	attempt int
	reason  string

	session     int
	pid         int
	previousPID int

	lines    []string
	maxLines int
	width    int
	height   int
	quitting bool
}

// New creates the status model
func New(configuration, program string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = warnStyle
	return Model{
		configuration: configuration,
		program:       program,
		spinner:       s,
		state:         "idle",
		maxLines:      defaultMaxLines,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "c":
			m.lines = nil
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case StateMsg:
		m.state, m.attempt, m.reason = msg.State, msg.Attempt, msg.Reason
		return m, nil

	case CycleMsg:
		m.session, m.pid, m.previousPID = msg.Session, msg.PID, msg.PreviousPID
		return m, nil

	case LineMsg:
		m.lines = append(m.lines, string(msg))
		if len(m.lines) > m.maxLines {
			m.lines = m.lines[len(m.lines)-m.maxLines:]
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) stateView() string {
	switch m.state {
	case "attempting":
		return fmt.Sprintf("%s attaching (attempt %d)", m.spinner.View(), m.attempt)
	case "armed", "attached":
		return okStyle.Render("● attached")
	case "given_up":
		return errStyle.Render("✗ gave up") + labelStyle.Render(" (waiting for restart)")
	default:
		return labelStyle.Render("○ " + m.state)
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Watch Attach") + labelStyle.Render(" · "+m.configuration) + "\n\n")

	header := []string{
		labelStyle.Render("program  ") + m.program,
		labelStyle.Render("state    ") + m.stateView(),
	}
	if m.session > 0 {
		cycle := fmt.Sprintf("#%d (PID %d)", m.session, m.pid)
		if m.previousPID > 0 {
			cycle += warnStyle.Render(fmt.Sprintf(" relaunched from %d", m.previousPID))
		}
		header = append(header, labelStyle.Render("session  ")+cycle)
	}
	b.WriteString(borderStyle.Render(strings.Join(header, "\n")) + "\n\n")

	for _, l := range m.visibleLines() {
		b.WriteString(l + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("q quit · c clear"))
	return b.String()
}

// visibleLines returns the tail of the log that fits the window
func (m Model) visibleLines() []string {
	room := len(m.lines)
	if m.height > 0 {
		// title, box and help take about ten rows
		room = max(m.height-10, 1)
	}
	if room >= len(m.lines) {
		return m.lines
	}
	return m.lines[len(m.lines)-room:]
}
