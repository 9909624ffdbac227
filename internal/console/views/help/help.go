// Package help renders the key reference overlay as markdown.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/waapi-kit/waapi-kit/internal/console/theme"
)

const intro = `# waapictl console

Operations issued from this console are grouped into labelled undo steps.
The history panel shows those labels. It is cleared whenever the project
changes outside this console, since the authoring tool's own history can no
longer be matched.
`

// Markdown builds the help text for bindings.
func Markdown(bindings []key.Binding) string {
	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n## Keys\n\n| Key | Action |\n|---|---|\n")
	for _, kb := range bindings {
		h := kb.Help()
		if h.Key == "" {
			continue
		}
		fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
	}
	return b.String()
}

// View renders the help overlay. Rendering falls back to the raw markdown if
// glamour fails.
func View(bindings []key.Binding, width int) string {
	if width < 40 {
		width = 40
	}
	md := Markdown(bindings)

	out := md
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width-8),
	)
	if err == nil {
		if rendered, err := r.Render(md); err == nil {
			out = rendered
		}
	}

	return lipgloss.NewStyle().
		Width(width-4).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(strings.TrimRight(out, "\n") + "\n" + theme.StyleDimmed.Render("esc:close"))
}
