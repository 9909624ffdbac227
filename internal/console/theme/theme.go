// Package theme provides the Lip Gloss palette and reusable styles for the
// console. It is a leaf package with no internal imports besides the session
// status type.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/waapi-kit/waapi-kit/internal/waapi"
)

// Status colors.
var (
	ColorConnected    = lipgloss.Color("#22c55e")
	ColorConnecting   = lipgloss.Color("#d97706")
	ColorDisconnected = lipgloss.Color("#6b7280")
	ColorError        = lipgloss.Color("#dc2626")
)

// Event log kind colors.
var (
	ColorEvent     = lipgloss.Color("#2563eb")
	ColorSelection = lipgloss.Color("#7c3aed")
	ColorUndo      = lipgloss.Color("#06b6d4")
	ColorConn      = lipgloss.Color("#16a34a")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// StatusColor returns the color used for a session status.
func StatusColor(s waapi.Status) lipgloss.Color {
	switch s {
	case waapi.StatusConnected:
		return ColorConnected
	case waapi.StatusConnecting:
		return ColorConnecting
	case waapi.StatusError:
		return ColorError
	default:
		return ColorDisconnected
	}
}

// StatusGlyph returns a glyph for a session status.
func StatusGlyph(s waapi.Status) string {
	switch s {
	case waapi.StatusConnected:
		return "●"
	case waapi.StatusConnecting:
		return "◌"
	case waapi.StatusError:
		return "✗"
	default:
		return "○"
	}
}

// KindColor returns the color for an event log kind.
func KindColor(kind string) lipgloss.Color {
	switch kind {
	case "evt":
		return ColorEvent
	case "sel":
		return ColorSelection
	case "undo":
		return ColorUndo
	case "conn":
		return ColorConn
	case "err":
		return ColorError
	default:
		return ColorDefault
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)
)
