package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/uubinn0/Challengobi-sub000/internal/tui/components"
	"github.com/uubinn0/Challengobi-sub000/internal/tui/theme"
	"github.com/uubinn0/Challengobi-sub000/internal/verify"
)

// Attest asks the user to type the no-spend sentence. The sentence is
// shown above the input with each character marked as typed correctly,
// mistyped, or not yet typed.
type Attest struct {
	sentence string
	input    textinput.Model
	mismatch bool
	width    int
	outcome  Outcome
}

// NewAttest returns the prompt for sentence.
func NewAttest(sentence string) Attest {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = len(sentence) * 2
	ti.Width = 40
	ti.Focus()

	return Attest{sentence: sentence, input: ti, width: defaultWidth}
}

// Outcome reports whether the sentence was confirmed.
func (m Attest) Outcome() Outcome { return m.outcome }

// Text returns what the user typed.
func (m Attest) Text() string { return m.input.Value() }

// Init implements tea.Model.
func (m Attest) Init() tea.Cmd { return textinput.Blink }

// Update implements tea.Model.
func (m Attest) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.outcome = OutcomeCancelled
			return m, tea.Quit
		case "enter":
			if verify.MatchAttestation(m.sentence, m.input.Value()) {
				m.outcome = OutcomeConfirmed
				return m, tea.Quit
			}
			m.mismatch = true
			return m, nil
		}
		m.mismatch = false
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Attest) View() string {
	t := theme.Active
	titleStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	errStyle := lipgloss.NewStyle().Foreground(t.Red)

	var b strings.Builder
	b.WriteString(titleStyle.Render("◈ 무지출 인증"))
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("아래 문장을 그대로 입력하세요."))
	b.WriteString("\n\n  ")
	b.WriteString(RenderAttestation(m.sentence, m.input.Value()))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.mismatch {
		b.WriteString(errStyle.Render("문장이 일치하지 않습니다."))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(components.RenderStatusBar(m.width, []components.KeyHint{
		{Key: "enter", Action: "인증"},
		{Key: "esc", Action: "취소"},
	}, ""))
	return b.String()
}

// RenderAttestation overlays text on the sentence: typed positions show
// what was typed, green when it matches and red when it does not, and the
// rest of the sentence stays visible as a dim guide.
func RenderAttestation(sentence, text string) string {
	t := theme.Active
	okStyle := lipgloss.NewStyle().Foreground(t.Green)
	badStyle := lipgloss.NewStyle().Foreground(t.Red).Underline(true)
	guideStyle := lipgloss.NewStyle().Foreground(t.TextDim)

	typed := []rune(text)
	progress := verify.AttestationProgress(sentence, text)

	var b strings.Builder
	i := 0
	for _, r := range sentence {
		switch {
		case progress[i]:
			b.WriteString(okStyle.Render(string(r)))
		case i < len(typed):
			b.WriteString(badStyle.Render(string(typed[i])))
		default:
			b.WriteString(guideStyle.Render(string(r)))
		}
		i++
	}
	for ; i < len(typed); i++ {
		b.WriteString(badStyle.Render(string(typed[i])))
	}
	return b.String()
}
