// Package console is the interactive terminal front end: session status,
// tracked undo history, the current selection and a live event log.
package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/waapi-kit/waapi-kit/internal/console/theme"
	"github.com/waapi-kit/waapi-kit/internal/console/views/eventlog"
	"github.com/waapi-kit/waapi-kit/internal/console/views/help"
	"github.com/waapi-kit/waapi-kit/internal/console/views/history"
	"github.com/waapi-kit/waapi-kit/internal/console/views/status"
	"github.com/waapi-kit/waapi-kit/internal/probe"
	"github.com/waapi-kit/waapi-kit/internal/undo"
	"github.com/waapi-kit/waapi-kit/internal/waapi"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayEventLog
	OverlayHelp
	OverlayRename
)

const tailLines = 6

type Options struct {
	Host        string
	Port        int
	AutoConnect bool
	// Topics overrides the change topics the tracker listens on.
	Topics []string
	Logger zerolog.Logger
	// FindWwise replaces the process probe used to explain failed connects.
	FindWwise func(context.Context) ([]probe.Process, error)
}

// Model is the root Bubble Tea model.
type Model struct {
	bridge *bridge
	opts   Options

	keys   KeyMap
	width  int
	height int

	overlay   Overlay
	statusBar status.Model
	history   history.Model
	events    eventlog.Model
	selection []waapi.Object

	// renaming is the object the rename prompt applies to.
	renaming waapi.Object
	input    textinput.Model
}

// New creates the root model. The model owns neither client nor tracker but
// observes both until it quits.
func New(client *waapi.Client, tracker *undo.Tracker, opts Options) Model {
	m := Model{
		bridge:    newBridge(client, tracker, opts),
		opts:      opts,
		keys:      DefaultKeyMap(),
		statusBar: status.New(opts.Host, opts.Port),
		history:   history.Model{History: tracker.History()},
		events:    eventlog.New(),
		input:     newNameInput(),
	}
	if s := client.State(); s.Host != "" {
		m.statusBar.State = s
	}
	return m
}

// Init starts listening for session updates and optionally connects.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.bridge.wait()}
	if m.opts.AutoConnect {
		cmds = append(cmds, m.bridge.connect(m.opts.Host, m.opts.Port))
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.history.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case stateMsg:
		s := waapi.State(msg)
		prev := m.statusBar.State.Status
		m.statusBar.State = s
		var cmd tea.Cmd
		if s.Status != prev {
			m.events.Add("conn", describeState(s))
		}
		if s.IsConnected() {
			m.statusBar.Hint = ""
			cmd = m.bridge.watch()
		} else {
			m.bridge.unwatch()
			m.selection = nil
		}
		return m, tea.Batch(m.bridge.wait(), cmd)

	case historyMsg:
		m.history.History = undo.History(msg)
		return m, m.bridge.wait()

	case eventMsg:
		m.events.Add(msg.Kind, msg.Message)
		return m, m.bridge.wait()

	case connectMsg:
		if !msg.OK {
			m.statusBar.Hint = connectHint(msg)
		}
		return m, nil

	case selectionMsg:
		if msg.Err != nil {
			m.events.Add("err", "selection: "+msg.Err.Error())
			return m, nil
		}
		m.selection = msg.Objects
		m.events.Add("sel", fmt.Sprintf("%d objects selected", len(msg.Objects)))
		return m, nil

	case actionMsg:
		var cmd tea.Cmd
		if msg.Action == "rename" && msg.Err == nil {
			cmd = m.bridge.selection()
		}
		switch {
		case msg.Err != nil && isNothingTo(msg.Err):
			m.events.Add("undo", msg.Err.Error())
		case msg.Err != nil:
			m.events.Add("err", msg.Action+": "+msg.Err.Error())
		case msg.Info != "":
			kind := "undo"
			if msg.Action == "watch" {
				kind = "conn"
			}
			m.events.Add(kind, msg.Info)
		}
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.overlay == OverlayRename {
		return m.handleRenameKey(msg)
	}
	if key.Matches(msg, m.keys.Quit) {
		m.bridge.close()
		return m, tea.Quit
	}

	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
		case m.overlay == OverlayEventLog && key.Matches(msg, m.keys.EventLog):
			m.overlay = OverlayNone
		case m.overlay == OverlayHelp && key.Matches(msg, m.keys.Help):
			m.overlay = OverlayNone
		case m.overlay == OverlayEventLog && key.Matches(msg, m.keys.Up):
			m.events.ScrollUp(1)
		case m.overlay == OverlayEventLog && key.Matches(msg, m.keys.Down):
			m.events.ScrollDown(1)
		}
		return m, nil
	}

	st := m.statusBar.State.Status
	switch {
	case key.Matches(msg, m.keys.Connect):
		if st == waapi.StatusConnected || st == waapi.StatusConnecting {
			return m, nil
		}
		m.statusBar.Hint = ""
		return m, m.bridge.connect(m.opts.Host, m.opts.Port)

	case key.Matches(msg, m.keys.Disconnect):
		return m, m.bridge.disconnect()

	case key.Matches(msg, m.keys.Undo):
		return m, m.bridge.undo()

	case key.Matches(msg, m.keys.Redo):
		return m, m.bridge.redo()

	case key.Matches(msg, m.keys.Selection):
		return m, m.bridge.selection()

	case key.Matches(msg, m.keys.Rename):
		if st != waapi.StatusConnected || len(m.selection) == 0 {
			m.events.Add("err", "rename: nothing selected, press s to refresh the selection")
			return m, nil
		}
		m.renaming = m.selection[0]
		m.overlay = OverlayRename
		m.input.SetValue(m.renaming.Name)
		m.input.CursorEnd()
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.EventLog):
		m.overlay = OverlayEventLog
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		return m, nil
	}

	return m, nil
}

// handleRenameKey routes keys to the name prompt until it is applied or
// dismissed.
func (m Model) handleRenameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.overlay = OverlayNone
		m.input.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		m.overlay = OverlayNone
		m.input.Blur()
		name := strings.TrimSpace(m.input.Value())
		if name == "" || name == m.renaming.Name {
			return m, nil
		}
		return m, m.bridge.rename(m.renaming, name)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func newNameInput() textinput.Model {
	in := textinput.New()
	in.Prompt = "> "
	in.Placeholder = "new name"
	in.CharLimit = 256
	return in
}

// View renders the full console.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	switch m.overlay {
	case OverlayEventLog:
		return m.events.View(m.width, m.height)
	case OverlayHelp:
		return help.View(m.keys.Bindings(), m.width)
	case OverlayRename:
		return m.renderRename()
	}

	sections := []string{
		m.statusBar.View(),
		m.history.View(),
		m.renderSelection(),
		theme.StyleHeader.Render("EVENTS"),
		m.events.Tail(tailLines, m.width),
		theme.StyleDimmed.Render("  c:connect  x:disconnect  u:undo  r:redo  s:selection  n:rename  d:events  ?:help  q:quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderSelection() string {
	lines := []string{theme.StyleHeader.Render(fmt.Sprintf("SELECTION (%d)", len(m.selection)))}
	if len(m.selection) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  nothing selected, press s to refresh"))
	}
	for i, o := range m.selection {
		if i == 5 {
			lines = append(lines, theme.StyleDimmed.Render(fmt.Sprintf("  ... %d more", len(m.selection)-i)))
			break
		}
		lines = append(lines, "  "+o.Name+" "+theme.StyleDimmed.Render(o.Type+"  "+o.Path))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderRename() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		theme.StyleHeader.Render("RENAME "+m.renaming.Name),
		theme.StyleDimmed.Render("  "+m.renaming.Path),
		"  "+m.input.View(),
		theme.StyleDimmed.Render("  enter:apply  esc:cancel"),
	)
}

func describeState(s waapi.State) string {
	var b strings.Builder
	b.WriteString(string(s.Status))
	if s.Host != "" {
		fmt.Fprintf(&b, " %s:%d", s.Host, s.Port)
	}
	if s.Project != nil {
		b.WriteString(" project " + s.Project.Name)
	}
	if s.Error != "" {
		b.WriteString(": " + s.Error)
	}
	return b.String()
}
