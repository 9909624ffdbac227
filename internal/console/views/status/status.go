package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/waapi-kit/waapi-kit/internal/console/theme"
	"github.com/waapi-kit/waapi-kit/internal/waapi"
)

// Model holds the status bar state.
type Model struct {
	State waapi.State
	Width int
	// Hint is shown after a failed connect, e.g. whether Wwise is running.
	Hint string
}

func New(host string, port int) Model {
	return Model{State: waapi.State{Status: waapi.StatusDisconnected, Host: host, Port: port}}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	s := m.State
	connStr := lipgloss.NewStyle().Foreground(theme.StatusColor(s.Status)).
		Render(theme.StatusGlyph(s.Status) + " " + label(s.Status))

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + fmt.Sprintf("%s:%d", s.Host, s.Port)

	if s.Project != nil {
		content += sep + theme.StyleHeader.Render(s.Project.Name)
	}
	if s.Error != "" {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorError).Render(s.Error)
	}
	if m.Hint != "" {
		content += sep + theme.StyleDimmed.Render(m.Hint)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func label(s waapi.Status) string {
	switch s {
	case waapi.StatusConnected:
		return "Connected"
	case waapi.StatusConnecting:
		return "Connecting..."
	case waapi.StatusError:
		return "Error"
	default:
		return "Disconnected"
	}
}
