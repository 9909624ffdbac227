package console

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waapi-kit/waapi-kit/internal/console/views/help"
	"github.com/waapi-kit/waapi-kit/internal/mockwaapi"
	"github.com/waapi-kit/waapi-kit/internal/probe"
	"github.com/waapi-kit/waapi-kit/internal/undo"
	"github.com/waapi-kit/waapi-kit/internal/waapi"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newModel(t *testing.T, opts Options) (Model, *waapi.Client) {
	t.Helper()
	cfg := waapi.DefaultConfig()
	cfg.ConnectTimeout = 2 * time.Second
	client := waapi.New(cfg)
	m := New(client, undo.New(undo.WithGraceWindow(50*time.Millisecond)), opts)
	t.Cleanup(m.bridge.close)
	return m, client
}

func startMock(t *testing.T) (*mockwaapi.Server, string, int) {
	t.Helper()
	srv := mockwaapi.NewServer(mockwaapi.Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	addr := ts.Listener.Addr().(*net.TCPAddr)
	return srv, addr.IP.String(), addr.Port
}

// closedPort returns a local port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

// next feeds channel messages to the model until match accepts one.
func next(t *testing.T, m Model, match func(tea.Msg) bool) Model {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		got := make(chan tea.Msg, 1)
		go func() { got <- m.bridge.wait()() }()
		select {
		case msg := <-got:
			updated, _ := m.Update(msg)
			m = updated.(Model)
			if match(msg) {
				return m
			}
		case <-deadline:
			t.Fatal("timed out waiting for update")
		}
	}
}

func sized(m Model) Model {
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(Model)
}

func TestViewInitializing(t *testing.T) {
	m, _ := newModel(t, Options{Host: "127.0.0.1", Port: 8080})
	assert.Equal(t, "Initializing...", m.View())

	m = sized(m)
	v := m.View()
	assert.Contains(t, v, "Disconnected")
	assert.Contains(t, v, "127.0.0.1:8080")
	assert.Contains(t, v, "No events yet")
}

func TestOverlayKeys(t *testing.T) {
	m, _ := newModel(t, Options{Host: "127.0.0.1", Port: 8080})
	m = sized(m)

	tests := []struct {
		key  tea.KeyMsg
		want Overlay
	}{
		{runes("d"), OverlayEventLog},
		{tea.KeyMsg{Type: tea.KeyEsc}, OverlayNone},
		{runes("?"), OverlayHelp},
		{runes("u"), OverlayHelp}, // ignored while an overlay is open
		{runes("?"), OverlayNone},
		{runes("d"), OverlayEventLog},
		{runes("d"), OverlayNone},
	}
	for i, tt := range tests {
		updated, _ := m.Update(tt.key)
		m = updated.(Model)
		assert.Equal(t, tt.want, m.overlay, "step %d (%s)", i, tt.key)
	}
}

func TestHelpOverlayListsKeys(t *testing.T) {
	md := help.Markdown(DefaultKeyMap().Bindings())
	for _, want := range []string{"connect", "disconnect", "undo", "redo", "refresh selection", "rename selected object", "event log", "quit"} {
		assert.Contains(t, md, want)
	}

	m, _ := newModel(t, Options{})
	m = sized(m)
	updated, _ := m.Update(runes("?"))
	assert.Contains(t, updated.(Model).View(), "esc:close")
}

func TestConnectWatchesSession(t *testing.T) {
	srv, host, port := startMock(t)
	m, client := newModel(t, Options{Host: host, Port: port})
	m = sized(m)

	updated, cmd := m.Update(runes("c"))
	m = updated.(Model)
	require.NotNil(t, cmd)
	msg := cmd()
	require.Equal(t, connectMsg{OK: true}, msg)

	m = next(t, m, func(msg tea.Msg) bool {
		s, ok := msg.(stateMsg)
		return ok && s.Status == waapi.StatusConnected
	})
	assert.Contains(t, m.View(), "Connected")

	watched := m.bridge.watch()()
	require.IsType(t, actionMsg{}, watched)
	require.NoError(t, watched.(actionMsg).Err)
	assert.Nil(t, m.bridge.watch()(), "second watch is a no-op")

	obj, err := client.CreateObject(context.Background(), waapi.CreateArgs{
		Parent: mockwaapi.DefaultWorkUnit,
		Type:   "Sound",
		Name:   "Door_Open",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, obj.ID)

	m = next(t, m, func(msg tea.Msg) bool {
		ev, ok := msg.(eventMsg)
		return ok && strings.Contains(ev.Message, "Door_Open")
	})
	assert.NotZero(t, srv.Broker().SubscriberCount(waapi.TopicObjectCreated))

	updated, cmd = m.Update(runes("x"))
	m = updated.(Model)
	assert.Nil(t, cmd())
	m = next(t, m, func(msg tea.Msg) bool {
		s, ok := msg.(stateMsg)
		return ok && s.Status == waapi.StatusDisconnected
	})
	assert.Contains(t, m.View(), "Disconnected")
	assert.Eventually(t, func() bool {
		return srv.Broker().SubscriberCount(waapi.TopicObjectCreated) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRenameIsTrackedAndUndoable(t *testing.T) {
	srv, host, port := startMock(t)
	m, client := newModel(t, Options{Host: host, Port: port})
	m = sized(m)
	ctx := context.Background()

	_, cmd := m.Update(runes("c"))
	require.Equal(t, connectMsg{OK: true}, cmd())
	m = next(t, m, func(msg tea.Msg) bool {
		s, ok := msg.(stateMsg)
		return ok && s.Status == waapi.StatusConnected
	})
	require.IsType(t, actionMsg{}, m.bridge.watch()())

	obj, err := client.CreateObject(ctx, waapi.CreateArgs{Parent: mockwaapi.DefaultWorkUnit, Type: "Sound", Name: "Door_Open"})
	require.NoError(t, err)
	require.NoError(t, client.ExecuteCommand(ctx, "FindInProjectExplorerSyncGroup1", obj.ID))
	time.Sleep(100 * time.Millisecond)

	_, cmd = m.Update(runes("s"))
	updated, _ := m.Update(cmd())
	m = updated.(Model)
	require.Len(t, m.selection, 1)

	updated, _ = m.Update(runes("n"))
	m = updated.(Model)
	require.Equal(t, OverlayRename, m.overlay)
	assert.Contains(t, m.View(), "RENAME Door_Open")

	m.input.SetValue("Door_Close")
	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	assert.Equal(t, OverlayNone, m.overlay)
	require.NotNil(t, cmd)
	done := cmd()
	require.IsType(t, actionMsg{}, done)
	require.NoError(t, done.(actionMsg).Err)
	updated, refresh := m.Update(done)
	m = updated.(Model)
	assert.NotNil(t, refresh, "a rename refreshes the selection")

	m = next(t, m, func(msg tea.Msg) bool {
		h, ok := msg.(historyMsg)
		return ok && len(h.Undo) == 1
	})
	v := m.View()
	assert.Contains(t, v, "UNDO (1)")
	assert.Contains(t, v, "Rename Objects")
	got, ok := srv.Store().Get(obj.ID)
	require.True(t, ok)
	assert.Equal(t, "Door_Close", got["name"])

	_, cmd = m.Update(runes("u"))
	undone := cmd().(actionMsg)
	require.NoError(t, undone.Err)
	assert.Equal(t, "undid Rename Objects", undone.Info)
	got, _ = srv.Store().Get(obj.ID)
	assert.Equal(t, "Door_Open", got["name"])
}

func TestRenameNeedsSelection(t *testing.T) {
	m, _ := newModel(t, Options{})
	m = sized(m)

	updated, cmd := m.Update(runes("n"))
	m = updated.(Model)
	assert.Nil(t, cmd)
	assert.Equal(t, OverlayNone, m.overlay)
	last := m.events.Entries[len(m.events.Entries)-1]
	assert.Contains(t, last.Message, "nothing selected")
}

func TestRenamePromptTakesTypedKeys(t *testing.T) {
	m, _ := newModel(t, Options{})
	m = sized(m)
	m.statusBar.State = waapi.State{Status: waapi.StatusConnected}
	m.selection = []waapi.Object{{ID: "{1}", Name: "Step"}}

	updated, _ := m.Update(runes("n"))
	m = updated.(Model)
	for _, k := range []string{"_", "q", "x"} {
		updated, _ = m.Update(runes(k))
		m = updated.(Model)
	}
	assert.Equal(t, OverlayRename, m.overlay, "q types into the prompt instead of quitting")
	assert.Equal(t, "Step_qx", m.input.Value())

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	assert.Nil(t, cmd)
	assert.Equal(t, OverlayNone, m.overlay)
}

func TestFailedConnectHint(t *testing.T) {
	tests := []struct {
		name  string
		procs []probe.Process
		err   error
		want  string
	}{
		{"not running", nil, nil, "does not appear to be running"},
		{"running", []probe.Process{{PID: 42, Name: "Wwise.exe"}}, nil, "Wwise.exe is running (pid 42)"},
		{"probe failed", nil, errors.New("permission denied"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newModel(t, Options{
				Host: "127.0.0.1",
				Port: closedPort(t),
				FindWwise: func(context.Context) ([]probe.Process, error) {
					return tt.procs, tt.err
				},
			})
			m = sized(m)

			_, cmd := m.Update(runes("c"))
			msg := cmd()
			cm, ok := msg.(connectMsg)
			require.True(t, ok)
			assert.False(t, cm.OK)
			assert.NotEmpty(t, cm.Error)

			updated, _ := m.Update(msg)
			m = updated.(Model)
			if tt.want == "" {
				assert.Empty(t, m.statusBar.Hint)
			} else {
				assert.Contains(t, m.statusBar.Hint, tt.want)
			}
		})
	}
}

func TestUndoWithEmptyHistory(t *testing.T) {
	m, _ := newModel(t, Options{})
	m = sized(m)

	_, cmd := m.Update(runes("u"))
	msg := cmd()
	am, ok := msg.(actionMsg)
	require.True(t, ok)
	assert.ErrorIs(t, am.Err, undo.ErrNothingToUndo)

	updated, _ := m.Update(msg)
	m = updated.(Model)
	require.NotEmpty(t, m.events.Entries)
	last := m.events.Entries[len(m.events.Entries)-1]
	assert.Equal(t, "undo", last.Kind)
	assert.Contains(t, last.Message, "nothing to undo")
}

func TestHistoryRendered(t *testing.T) {
	m, _ := newModel(t, Options{})
	m = sized(m)

	updated, _ := m.Update(historyMsg{Undo: []string{"Create Sound", "Rename Objects"}, Redo: []string{"Delete Objects"}})
	v := updated.(Model).View()
	assert.Contains(t, v, "UNDO (2)")
	assert.Contains(t, v, "Rename Objects")
	assert.Contains(t, v, "REDO (1)")
	assert.Contains(t, v, "Delete Objects")
}

func TestSelectionNotConnected(t *testing.T) {
	m, _ := newModel(t, Options{})
	_, cmd := m.Update(runes("s"))
	msg := cmd().(selectionMsg)
	assert.ErrorIs(t, msg.Err, waapi.ErrNotConnected)
}

func TestDescribe(t *testing.T) {
	raw := func(v any) json.RawMessage {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return b
	}

	tests := []struct {
		name string
		ev   waapi.Event
		want string
	}{
		{
			name: "rename",
			ev: waapi.Event{Topic: waapi.TopicNameChanged, Kwargs: raw(map[string]any{
				"object": map[string]string{"id": "1", "name": "B"}, "oldName": "A", "newName": "B",
			})},
			want: `nameChanged "A" -> "B"`,
		},
		{
			name: "child added",
			ev: waapi.Event{Topic: waapi.TopicChildAdded, Kwargs: raw(map[string]any{
				"parent": map[string]string{"name": "Default Work Unit"}, "child": map[string]string{"name": "Step"},
			})},
			want: "childAdded Step under Default Work Unit",
		},
		{
			name: "property",
			ev: waapi.Event{Topic: waapi.TopicPropertyChanged, Kwargs: raw(map[string]any{
				"object": map[string]string{"name": "Step"}, "property": "Volume",
			})},
			want: "propertyChanged Step.Volume",
		},
		{
			name: "selection",
			ev: waapi.Event{Topic: waapi.TopicSelectionChanged, Kwargs: raw(map[string]any{
				"objects": []map[string]string{{"name": "A"}, {"name": "B"}},
			})},
			want: "selectionChanged [A, B]",
		},
		{
			name: "no payload",
			ev:   waapi.Event{Topic: waapi.TopicObjectCreated},
			want: "created",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe(tt.ev))
		})
	}
}
