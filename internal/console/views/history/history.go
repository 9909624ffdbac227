// Package history renders the tracked undo and redo stacks.
package history

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/waapi-kit/waapi-kit/internal/console/theme"
	"github.com/waapi-kit/waapi-kit/internal/undo"
)

const maxShown = 8

type Model struct {
	History undo.History
	Width   int
}

func (m Model) View() string {
	width := m.Width
	if width < 30 {
		width = 30
	}
	colW := (width - 6) / 2

	undoCol := column("UNDO", m.History.Undo, colW)
	redoCol := column("REDO", m.History.Redo, colW)
	body := lipgloss.JoinHorizontal(lipgloss.Top, undoCol, "  ", redoCol)

	return theme.StyleBorder.Width(width - 2).Render(body)
}

// column lists labels most recent first.
func column(title string, labels []string, width int) string {
	lines := []string{theme.StyleHeader.Render(fmt.Sprintf("%s (%d)", title, len(labels)))}
	if len(labels) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  empty"))
	}
	for i := len(labels) - 1; i >= 0 && len(labels)-i <= maxShown; i-- {
		prefix := "  "
		style := theme.StyleDimmed
		if i == len(labels)-1 {
			prefix = "> "
			style = theme.StyleSelected
		}
		lines = append(lines, style.Render(prefix+truncate(labels[i], width-2)))
	}
	if extra := len(labels) - maxShown; extra > 0 {
		lines = append(lines, theme.StyleDimmed.Render(fmt.Sprintf("  ... %d more", extra)))
	}
	return lipgloss.NewStyle().Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// truncate cuts s to n terminal cells.
func truncate(s string, n int) string {
	if n < 4 {
		return s
	}
	return ansi.Truncate(s, n, "...")
}
