package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/uubinn0/Challengobi-sub000/internal/tui/theme"
)

type taskDoneMsg struct{ err error }

// Task shows a spinner while run executes in the background. ctrl+c
// cancels the context passed to run and quits without waiting for it.
type Task struct {
	label   string
	run     func(context.Context) error
	ctx     context.Context
	cancel  context.CancelFunc
	spinner spinner.Model

	done bool
	err  error
}

// NewTask prepares a task; run starts when the program initializes.
func NewTask(ctx context.Context, label string, run func(context.Context) error) Task {
	ctx, cancel := context.WithCancel(ctx)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	return Task{
		label:   label,
		run:     run,
		ctx:     ctx,
		cancel:  cancel,
		spinner: sp,
	}
}

// Err returns run's error, or context.Canceled when the user aborted.
func (m Task) Err() error { return m.err }

// Done reports whether run returned before the program quit.
func (m Task) Done() bool { return m.done }

// Init implements tea.Model.
func (m Task) Init() tea.Cmd {
	run, ctx := m.run, m.ctx
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return taskDoneMsg{err: run(ctx)}
	})
}

// Update implements tea.Model.
func (m Task) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case taskDoneMsg:
		m.done = true
		m.err = msg.err
		m.cancel()
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancel()
			m.err = context.Canceled
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Task) View() string {
	if m.done {
		return ""
	}
	t := theme.Active
	var b strings.Builder
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(lipgloss.NewStyle().Foreground(t.TextMuted).Render(m.label))
	b.WriteString("\n")
	return b.String()
}
