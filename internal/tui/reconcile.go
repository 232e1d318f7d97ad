// Package tui provides the interactive Bubble Tea screens of the
// verification flow.
package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/uubinn0/Challengobi-sub000/internal/cli"
	"github.com/uubinn0/Challengobi-sub000/internal/model"
	"github.com/uubinn0/Challengobi-sub000/internal/tui/components"
	"github.com/uubinn0/Challengobi-sub000/internal/tui/theme"
	"github.com/uubinn0/Challengobi-sub000/internal/verify"
)

// Outcome is how the user left a screen.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeConfirmed
	OutcomeCancelled
)

const (
	defaultWidth  = 80
	merchantWidth = 22
	timeWidth     = 5
)

// DraftEditor is the part of the verification editor the reconcile
// screen drives.
type DraftEditor interface {
	Session(challengeID string) (verify.Session, error)
	ToggleSelect(challengeID string, localID int) (model.ExpenseDraft, error)
	SetSelected(challengeID string, localID int, selected bool) (model.ExpenseDraft, error)
	EditAmount(challengeID string, localID int, amount int64) (model.ExpenseDraft, error)
	ResetAmount(challengeID string, localID int) (model.ExpenseDraft, error)
	RemainingAfterSubmit(challengeID string) (int64, error)
}

// Reconcile is the screen where recognized drafts are selected and
// corrected before submission. Every change goes through the editor, so
// the session in the store always matches what is on screen.
type Reconcile struct {
	editor      DraftEditor
	challengeID string
	budget      int64
	budgetKnown bool

	sess    verify.Session
	cursor  int
	editing bool
	input   textinput.Model
	err     error

	width   int
	outcome Outcome
}

// NewReconcile opens the challenge's Ready session for editing. budget
// is the challenge's total budget when the ledger has been read.
func NewReconcile(editor DraftEditor, challengeID string, budget int64, budgetKnown bool) (Reconcile, error) {
	sess, err := editor.Session(challengeID)
	if err != nil {
		return Reconcile{}, err
	}

	ti := textinput.New()
	ti.CharLimit = 24
	ti.Width = 16
	ti.Prompt = "₩ "

	return Reconcile{
		editor:      editor,
		challengeID: challengeID,
		budget:      budget,
		budgetKnown: budgetKnown,
		sess:        sess,
		input:       ti,
		width:       defaultWidth,
	}, nil
}

// Outcome reports whether the user confirmed or cancelled.
func (m Reconcile) Outcome() Outcome { return m.outcome }

// Session returns the session as last read from the editor.
func (m Reconcile) Session() verify.Session { return m.sess }

// Init implements tea.Model.
func (m Reconcile) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Reconcile) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.outcome = OutcomeCancelled
			return m, tea.Quit
		}
		if m.editing {
			return m.updateEditing(msg)
		}
		return m.updateBrowsing(msg)
	}

	if m.editing {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Reconcile) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	switch msg.String() {
	case "q", "esc":
		m.outcome = OutcomeCancelled
		return m, tea.Quit
	case "enter":
		m.outcome = OutcomeConfirmed
		return m, tea.Quit
	case "j", "down":
		if m.cursor < len(m.sess.Drafts)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case " ", "x":
		if d, ok := m.current(); ok {
			_, m.err = m.editor.ToggleSelect(m.challengeID, d.LocalID)
		}
	case "a":
		m.setAll(true)
	case "n":
		m.setAll(false)
	case "r":
		if d, ok := m.current(); ok {
			_, m.err = m.editor.ResetAmount(m.challengeID, d.LocalID)
		}
	case "e":
		d, ok := m.current()
		if !ok {
			return m, nil
		}
		m.editing = true
		m.input.Placeholder = cli.FormatNumber(d.OriginalAmount)
		m.input.SetValue(strconv.FormatInt(d.Amount, 10))
		m.input.CursorEnd()
		cmd := m.input.Focus()
		return m, cmd
	default:
		return m, nil
	}
	m.refresh()
	return m, nil
}

func (m Reconcile) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editing = false
		m.err = nil
		m.input.Blur()
		return m, nil
	case "enter":
		d, ok := m.current()
		if !ok {
			m.editing = false
			return m, nil
		}
		amount, err := verify.ParseAmountInput(m.input.Value())
		if err != nil {
			m.err = err
			return m, nil
		}
		if _, err := m.editor.EditAmount(m.challengeID, d.LocalID, amount); err != nil {
			m.err = err
			return m, nil
		}
		m.editing = false
		m.err = nil
		m.input.Blur()
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Reconcile) setAll(selected bool) {
	for _, d := range m.sess.Drafts {
		if _, err := m.editor.SetSelected(m.challengeID, d.LocalID, selected); err != nil {
			m.err = err
			return
		}
	}
}

func (m Reconcile) current() (model.ExpenseDraft, bool) {
	if m.cursor < 0 || m.cursor >= len(m.sess.Drafts) {
		return model.ExpenseDraft{}, false
	}
	return m.sess.Drafts[m.cursor], true
}

// refresh rereads the session so the view reflects the store.
func (m *Reconcile) refresh() {
	sess, err := m.editor.Session(m.challengeID)
	if err != nil {
		m.err = err
		return
	}
	m.sess = sess
	if m.cursor >= len(sess.Drafts) {
		m.cursor = len(sess.Drafts) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// View implements tea.Model.
func (m Reconcile) View() string {
	t := theme.Active
	w := m.width
	if w > 100 {
		w = 100
	}

	titleStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	errStyle := lipgloss.NewStyle().Foreground(t.Red)

	var b strings.Builder
	b.WriteString(titleStyle.Render("◈ 영수증 확인"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %d건 인식", len(m.sess.Drafts))))
	b.WriteString("\n\n")

	b.WriteString(components.ContentCard("내역", m.renderDrafts(components.CardInnerWidth(w)), w, !m.editing))
	b.WriteString("\n")
	b.WriteString(components.MetricRow(m.metrics(), w))
	b.WriteString("\n")

	if m.budgetKnown {
		if after, err := m.editor.RemainingAfterSubmit(m.challengeID); err == nil {
			b.WriteString(components.BudgetBar("예산", m.budget-after, m.budget, 6, w-14))
			b.WriteString("\n")
		}
	}

	if m.editing {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("금액 수정: "))
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errStyle.Render(describeError(m.err)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(components.RenderStatusBar(w, m.hints(), fmt.Sprintf("%d/%d 선택", m.sess.SelectedCount(), len(m.sess.Drafts))))
	return b.String()
}

func (m Reconcile) renderDrafts(width int) string {
	t := theme.Active
	if len(m.sess.Drafts) == 0 {
		return lipgloss.NewStyle().Foreground(t.TextDim).Render("인식된 내역이 없습니다. 제출하면 0원으로 기록됩니다.")
	}

	rowStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim)
	selStyle := lipgloss.NewStyle().Foreground(t.Green).Bold(true)
	editedStyle := lipgloss.NewStyle().Foreground(t.Orange)
	cursorStyle := lipgloss.NewStyle().Background(t.SurfaceHover)

	amountW := width - merchantWidth - timeWidth - 9
	if amountW < 10 {
		amountW = 10
	}

	lines := make([]string, 0, len(m.sess.Drafts))
	for i, d := range m.sess.Drafts {
		mark := dimStyle.Render("[ ]")
		if d.Selected {
			mark = selStyle.Render("[✓]")
		}

		nameStyle := dimStyle
		if d.Selected {
			nameStyle = rowStyle
		}
		name := nameStyle.Width(merchantWidth).Render(truncStr(d.Merchant, merchantWidth))
		at := dimStyle.Width(timeWidth).Render(truncStr(d.OccurredAt, timeWidth))

		amount := cli.FormatWon(d.Amount)
		if d.Edited() {
			amount = editedStyle.Render(amount + "*")
		}
		amount = lipgloss.PlaceHorizontal(amountW, lipgloss.Right, amount)

		line := " " + mark + " " + name + " " + at + " " + amount
		if i == m.cursor {
			line = cursorStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Reconcile) metrics() []components.Metric {
	t := theme.Active
	total := m.sess.RunningTotal()
	out := []components.Metric{
		{Label: "합계", Value: cli.FormatWon(total), Note: cli.FormatKoreanUnits(total)},
	}

	after, err := m.editor.RemainingAfterSubmit(m.challengeID)
	switch {
	case errors.Is(err, verify.ErrLedgerUnknown):
		out = append(out, components.Metric{Label: "제출 후 잔액", Value: "-", Note: "예산 정보 없음", Tone: t.TextDim})
	case err != nil:
	default:
		tone := t.Green
		note := cli.FormatKoreanUnits(after)
		if after < 0 {
			tone = t.Red
			note = "예산 초과"
		}
		out = append(out, components.Metric{Label: "제출 후 잔액", Value: cli.FormatRemaining(after), Note: note, Tone: tone})
	}
	return out
}

func (m Reconcile) hints() []components.KeyHint {
	if m.editing {
		return []components.KeyHint{{Key: "enter", Action: "적용"}, {Key: "esc", Action: "취소"}}
	}
	return []components.KeyHint{
		{Key: "space", Action: "선택"},
		{Key: "e", Action: "수정"},
		{Key: "r", Action: "되돌리기"},
		{Key: "a/n", Action: "전체"},
		{Key: "enter", Action: "제출"},
		{Key: "q", Action: "취소"},
	}
}

func describeError(err error) string {
	switch {
	case errors.Is(err, verify.ErrInvalidAmount):
		return "숫자만 입력할 수 있습니다."
	case errors.Is(err, verify.ErrNoSession):
		return "진행 중인 인증이 없습니다."
	default:
		return err.Error()
	}
}

func truncStr(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= limit {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > limit {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
