package cli

import (
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/ytchat/internal/service"
)

const pollInterval = 250 * time.Millisecond

// Theme holds the color scheme for terminal output.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
	Accent  lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"),
	Success: lipgloss.Color("#00D787"),
	Error:   lipgloss.Color("#FF005F"),
	Hint:    lipgloss.Color("#6C6C6C"),
	Accent:  lipgloss.Color("#D7AF5F"),
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) accentStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
}

type tickMsg time.Time

// jobProgressModel polls an in-process ingestion job until it finishes.
// Ingestion reports no fine-grained progress, so the bar tracks the job
// state and elapsed time.
type jobProgressModel struct {
	job      *service.Job
	snap     service.JobSnapshot
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
}

func newJobProgressModel(job *service.Job, theme Theme) jobProgressModel {
	return jobProgressModel{
		job:  job,
		snap: job.Snapshot(),
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(40),
		),
		theme: theme,
	}
}

func (m jobProgressModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.progress.Init())
}

func (m jobProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		m.snap = m.job.Snapshot()
		switch m.snap.Status {
		case service.JobStatusCompleted, service.JobStatusFailed:
			m.done = true
			return m, tea.Quit
		}
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m jobProgressModel) View() tea.View {
	return tea.NewView(m.render())
}

func (m jobProgressModel) render() string {
	if m.done || m.quitting {
		return ""
	}
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.snap.Status))
	elapsed := time.Since(m.snap.StartedAt).Round(100 * time.Millisecond)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop waiting")
	return fmt.Sprintf("%s %s %s\n%s\n", status, m.progress.ViewAs(stageFraction(m.snap.Status, elapsed)), elapsed, hint)
}

// stageFraction approaches but never reaches 1 while the job runs.
func stageFraction(status service.JobStatus, elapsed time.Duration) float64 {
	switch status {
	case service.JobStatusPending:
		return 0.05
	case service.JobStatusRunning:
		secs := elapsed.Seconds()
		return 0.1 + 0.85*secs/(secs+10)
	default:
		return 1
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitWithProgress shows the progress UI until job finishes. It returns
// the final snapshot and whether the user stopped waiting early.
func waitWithProgress(job *service.Job, theme Theme) (service.JobSnapshot, bool, error) {
	p := tea.NewProgram(newJobProgressModel(job, theme))
	final, err := p.Run()
	if err != nil {
		return job.Snapshot(), false, fmt.Errorf("progress UI error: %w", err)
	}
	m, ok := final.(jobProgressModel)
	if !ok {
		return job.Snapshot(), false, nil
	}
	return job.Snapshot(), m.quitting, nil
}
