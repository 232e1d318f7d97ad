package cli

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestRenderTable_AlignsWideRunes(t *testing.T) {
	out := RenderTable(Table{
		Headers: []string{"Store", "Amount"},
		Rows: [][]string{
			{"GS25 한밭대점", FormatWon(2400)},
			{"Mart B", FormatWon(12000)},
		},
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 6 { // top, header, separator, 2 rows, bottom
		t.Fatalf("got %d lines, want 6:\n%s", len(lines), out)
	}
	want := lipgloss.Width(lines[0])
	for i, line := range lines {
		if w := lipgloss.Width(line); w != want {
			t.Errorf("line %d width = %d, want %d: %q", i, w, want, line)
		}
	}
}

func TestRenderTable_Empty(t *testing.T) {
	if got := RenderTable(Table{}); got != "" {
		t.Errorf("RenderTable(empty) = %q, want \"\"", got)
	}
}

func TestRenderWarningAndOKUseOneIndent(t *testing.T) {
	tests := []struct {
		name   string
		render func(string) string
	}{
		{"warning", RenderWarning},
		{"ok", RenderOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, msg := range []string{"Budget exceeded.", "  Budget exceeded."} {
				got := tt.render(msg)
				if !strings.HasPrefix(got, "  ") || strings.HasPrefix(got, "   ") {
					t.Errorf("render(%q) = %q, want exactly two leading spaces", msg, got)
				}
				if !strings.Contains(got, "Budget exceeded.") {
					t.Errorf("render(%q) = %q, missing message", msg, got)
				}
			}
		})
	}
}
