package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/uubinn0/Challengobi-sub000/internal/tui/theme"
)

// KeyHint is one "[key]action" entry in the status bar.
type KeyHint struct {
	Key    string
	Action string
}

// RenderStatusBar renders the bottom bar: key hints on the left and info
// right-aligned. Hints that do not fit are dropped from the end.
func RenderStatusBar(width int, hints []KeyHint, info string) string {
	t := theme.Active

	keyStyle := lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
	actionStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	infoStyle := lipgloss.NewStyle().Foreground(t.TextDim)

	right := ""
	if info != "" {
		right = infoStyle.Render(info + " ")
	}
	budget := width - lipgloss.Width(right) - 1

	var left strings.Builder
	left.WriteString(" ")
	for _, h := range hints {
		entry := keyStyle.Render("["+h.Key+"]") + actionStyle.Render(h.Action) + "  "
		if lipgloss.Width(left.String())+lipgloss.Width(entry) > budget {
			break
		}
		left.WriteString(entry)
	}

	padding := width - lipgloss.Width(left.String()) - lipgloss.Width(right)
	if padding < 0 {
		padding = 0
	}
	return left.String() + strings.Repeat(" ", padding) + right
}
