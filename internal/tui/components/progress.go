package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/uubinn0/Challengobi-sub000/internal/tui/theme"
)

// ColorForPct returns green/yellow/orange/red based on budget use.
func ColorForPct(pct float64) string {
	t := theme.Active
	switch {
	case pct >= 1:
		return string(t.Red)
	case pct >= 0.8:
		return string(t.Orange)
	case pct >= 0.5:
		return string(t.Yellow)
	default:
		return string(t.Green)
	}
}

// BudgetUse is the share of total consumed once spent is committed.
// A non-positive total with any spending counts as fully used.
func BudgetUse(spent, total int64) float64 {
	if total <= 0 {
		if spent > 0 {
			return 1
		}
		return 0
	}
	pct := float64(spent) / float64(total)
	if pct < 0 {
		return 0
	}
	return pct
}

// BudgetBar renders a labeled gauge of spent against total. The bar is
// clamped full on overspend while the percentage keeps the real figure.
func BudgetBar(label string, spent, total int64, labelW, barWidth int) string {
	t := theme.Active

	pct := BudgetUse(spent, total)
	fill := pct
	if fill > 1 {
		fill = 1
	}

	bar := progress.New(
		progress.WithSolidFill(ColorForPct(pct)),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.TextDim)

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	pctStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorForPct(pct))).Bold(true)

	return labelStyle.Render(fmt.Sprintf("%-*s", labelW, label)) +
		" " +
		bar.ViewAs(fill) +
		" " +
		pctStyle.Render(fmt.Sprintf("%3.0f%%", pct*100))
}
