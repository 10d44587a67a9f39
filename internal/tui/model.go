package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/seantiz/courier/internal/foreground"
	"github.com/seantiz/courier/internal/invocation"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	targetStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5B8DEF"))
	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4CAF50"))
	failureStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B"))
	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA")).
			PaddingLeft(2)
	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxBodyLines caps how much of a response body the view shows.
const maxBodyLines = 10

// model renders one session. Handlers and cell watchers mutate the session
// from inside Update, so the model itself only carries the spinner.
type model struct {
	s       *session
	spinner spinner.Model
}

func newModel(s *session) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return model{s: s, spinner: sp}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if foreground.HandleMsg(msg) {
		if m.s.finished {
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.s.running && m.s.cancel != nil {
				m.s.cancelled = m.s.cancel()
			}
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.s.name))
	b.WriteString("\n")
	b.WriteString(targetStyle.Render("GET " + m.s.target))
	b.WriteString("\n\n")

	if m.s.running {
		fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), m.s.message)
		b.WriteString(hintStyle.Render("q: cancel and quit"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(Summary(m.s.result()))
	return b.String()
}

// Summary renders a settled probe result.
func Summary(r *Result) string {
	var b strings.Builder

	switch r.State {
	case invocation.Succeeded:
		b.WriteString(successStyle.Render(fmt.Sprintf("%s %d", r.State, r.StatusCode)))
	case invocation.Failed:
		head := r.State.String()
		if r.StatusCode != 0 {
			head = fmt.Sprintf("%s %d", head, r.StatusCode)
		}
		b.WriteString(failureStyle.Render(head))
	default:
		b.WriteString(targetStyle.Render(r.State.String()))
	}
	if r.Outcome != "" {
		b.WriteString(targetStyle.Render(" " + r.Outcome))
	}
	if r.Cancelled {
		b.WriteString(targetStyle.Render(" (cancelled)"))
	}
	b.WriteString("\n")

	if r.Detail != "" {
		b.WriteString(detailStyle.Render(r.Detail))
		b.WriteString("\n")
	}
	if body := truncateLines(r.Body, maxBodyLines); body != "" {
		b.WriteString(detailStyle.Render(body))
		b.WriteString("\n")
	}
	return b.String()
}

func truncateLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n... %d more lines", len(lines)-n)
}
