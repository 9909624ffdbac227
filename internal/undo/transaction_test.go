package undo

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waapi-kit/waapi-kit/internal/mockwaapi"
	"github.com/waapi-kit/waapi-kit/internal/waapi"
)

// fakeGrouper records the group calls it receives.
type fakeGrouper struct {
	mu        sync.Mutex
	calls     []string
	beginErr  error
	endErr    error
	cancelErr error
	undoErr   error
}

func (f *fakeGrouper) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeGrouper) BeginUndoGroup(context.Context) error {
	f.record("begin")
	return f.beginErr
}

func (f *fakeGrouper) EndUndoGroup(_ context.Context, label string) error {
	f.record("end:" + label)
	return f.endErr
}

func (f *fakeGrouper) CancelUndoGroup(context.Context) error {
	f.record("cancel")
	return f.cancelErr
}

func (f *fakeGrouper) Undo(context.Context) error {
	f.record("undo")
	return f.undoErr
}

func (f *fakeGrouper) Redo(context.Context) error {
	f.record("redo")
	return nil
}

func (f *fakeGrouper) got() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestTransaction_Commits(t *testing.T) {
	tr := New(WithGraceWindow(time.Hour))
	g := &fakeGrouper{}

	err := tr.Transaction(context.Background(), g, "Rename Objects", func(context.Context) error {
		assert.Equal(t, 1, tr.Depth())
		g.record("mutate")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"begin", "mutate", "end:Rename Objects"}, g.got())
	assert.Equal(t, []string{"Rename Objects"}, tr.History().Undo)
}

func TestTransaction_CancelsOnError(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		g         *fakeGrouper
		fnErr     error
		wantCalls []string
		wantIs    []error
	}{
		{
			name:      "body fails",
			g:         &fakeGrouper{},
			fnErr:     boom,
			wantCalls: []string{"begin", "cancel"},
			wantIs:    []error{boom},
		},
		{
			name:      "end fails",
			g:         &fakeGrouper{endErr: boom},
			wantCalls: []string{"begin", "end:Op", "cancel"},
			wantIs:    []error{boom},
		},
		{
			name:      "cancel fails too",
			g:         &fakeGrouper{cancelErr: waapi.ErrConnectionClosed},
			fnErr:     boom,
			wantCalls: []string{"begin", "cancel"},
			wantIs:    []error{boom, waapi.ErrConnectionClosed},
		},
		{
			name:      "begin fails",
			g:         &fakeGrouper{beginErr: boom},
			wantCalls: []string{"begin"},
			wantIs:    []error{boom},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(WithGraceWindow(time.Millisecond))
			tr.Push("Earlier")

			err := tr.Transaction(context.Background(), tt.g, "Op", func(context.Context) error { return tt.fnErr })
			require.Error(t, err)
			for _, target := range tt.wantIs {
				assert.ErrorIs(t, err, target)
			}
			assert.Equal(t, tt.wantCalls, tt.g.got())
			assert.Equal(t, []string{"Earlier"}, tr.History().Undo)
		})
	}
}

func TestUndoRedo_EmptyStacks(t *testing.T) {
	tr := New()
	g := &fakeGrouper{}

	assert.ErrorIs(t, tr.Undo(context.Background(), g), ErrNothingToUndo)
	assert.ErrorIs(t, tr.Redo(context.Background(), g), ErrNothingToRedo)
	assert.Empty(t, g.got())
}

func TestUndo_FailureKeepsStacks(t *testing.T) {
	tr := New(WithGraceWindow(time.Millisecond))
	g := &fakeGrouper{undoErr: waapi.ErrNotConnected}
	tr.Push("A")

	err := tr.Undo(context.Background(), g)
	assert.ErrorIs(t, err, waapi.ErrNotConnected)
	assert.Equal(t, []string{"A"}, tr.History().Undo)
	assert.Empty(t, tr.History().Redo)
}

func TestClearOnDisconnect(t *testing.T) {
	env := startMock(t)
	c := waapi.New(clientConfig())
	tr := New()
	remove := tr.ClearOnDisconnect(c)
	defer remove()

	require.True(t, c.Connect(context.Background(), env.host, env.port))
	tr.Push("A")
	c.Disconnect()

	assert.Empty(t, tr.History().Undo)
}

type mockEnv struct {
	srv  *mockwaapi.Server
	host string
	port int
}

func startMock(t *testing.T) mockEnv {
	t.Helper()
	srv := mockwaapi.NewServer(mockwaapi.Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	addr := ts.Listener.Addr().(*net.TCPAddr)
	return mockEnv{srv: srv, host: addr.IP.String(), port: addr.Port}
}

func clientConfig() waapi.Config {
	cfg := waapi.DefaultConfig()
	cfg.ConnectTimeout = 2 * time.Second
	return cfg
}

// externalRename renames obj on the server side and publishes the
// resulting notifications, as another client would.
func externalRename(t *testing.T, srv *mockwaapi.Server, obj, name string) {
	t.Helper()
	changes, err := srv.Store().Rename(obj, name)
	require.NoError(t, err)
	for _, ch := range changes {
		srv.Publish(ch.Topic, ch.Payload)
	}
}

func TestTracker_AgainstMock(t *testing.T) {
	env := startMock(t)
	ctx := context.Background()

	c := waapi.New(clientConfig())
	require.True(t, c.Connect(ctx, env.host, env.port), "connect: %s", c.State().Error)
	defer c.Disconnect()

	const grace = 150 * time.Millisecond
	tr := New(WithGraceWindow(grace))
	detach, err := tr.Attach(ctx, c)
	require.NoError(t, err)
	defer detach(ctx)

	obj, err := c.CreateObject(ctx, waapi.CreateArgs{
		Parent: mockwaapi.DefaultWorkUnit,
		Type:   "Sound",
		Name:   "Footstep",
	})
	require.NoError(t, err)
	time.Sleep(2 * grace)

	for _, name := range []string{"Footstep_Grass", "Footstep_Gravel"} {
		err := tr.Transaction(ctx, c, "Rename Objects", func(ctx context.Context) error {
			return c.RenameObject(ctx, obj.ID, name)
		})
		require.NoError(t, err)
	}

	// Our own nameChanged events land inside the grace window.
	time.Sleep(2 * grace)
	assert.Equal(t, []string{"Rename Objects", "Rename Objects"}, tr.History().Undo)
	assert.Empty(t, tr.History().Redo)

	require.NoError(t, tr.Undo(ctx, c))
	time.Sleep(2 * grace)
	assert.Equal(t, []string{"Rename Objects"}, tr.History().Undo)
	assert.Equal(t, []string{"Rename Objects"}, tr.History().Redo)

	got, ok := env.srv.Store().Get(obj.ID)
	require.True(t, ok)
	assert.Equal(t, "Footstep_Grass", got["name"])

	externalRename(t, env.srv, obj.ID, "Footstep_Wood")
	assert.Eventually(t, func() bool {
		h := tr.History()
		return !h.CanUndo() && !h.CanRedo()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTracker_ExternalPropertyChangeClears(t *testing.T) {
	env := startMock(t)
	ctx := context.Background()

	c := waapi.New(clientConfig())
	require.True(t, c.Connect(ctx, env.host, env.port), "connect: %s", c.State().Error)
	defer c.Disconnect()
	other := waapi.New(clientConfig())
	require.True(t, other.Connect(ctx, env.host, env.port), "connect: %s", other.State().Error)
	defer other.Disconnect()

	const grace = 50 * time.Millisecond
	tr := New(WithGraceWindow(grace))
	detach, err := tr.Attach(ctx, c)
	require.NoError(t, err)
	defer detach(ctx)

	obj, err := other.CreateObject(ctx, waapi.CreateArgs{Parent: mockwaapi.DefaultWorkUnit, Type: "Sound", Name: "Rain"})
	require.NoError(t, err)
	time.Sleep(4 * grace)

	tr.Push("Rename Objects")
	require.NoError(t, other.SetProperty(ctx, obj.ID, "Volume", -6, ""))
	assert.Eventually(t, func() bool {
		return !tr.History().CanUndo()
	}, 2*time.Second, 10*time.Millisecond, "history after external Volume edit: %+v", tr.History())
}

// recordingSubscriber captures Subscribe calls without a session.
type recordingSubscriber struct {
	topics  []string
	options []map[string]any
}

func (r *recordingSubscriber) Subscribe(_ context.Context, topic string, _ waapi.Handler, options map[string]any) (*waapi.Subscription, error) {
	r.topics = append(r.topics, topic)
	r.options = append(r.options, options)
	return &waapi.Subscription{}, nil
}

func TestAttach_PropertyTopicPerWatchedProperty(t *testing.T) {
	tests := []struct {
		name  string
		props []string
		want  []map[string]any
	}{
		{"filtered", []string{"Volume", "Pitch"}, []map[string]any{{"property": "Volume"}, {"property": "Pitch"}}},
		{"unfiltered", nil, []map[string]any{nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &recordingSubscriber{}
			tr := New(WithWatchedProperties(tt.props...))
			_, err := tr.Attach(context.Background(), s, waapi.TopicNameChanged, waapi.TopicPropertyChanged)
			require.NoError(t, err)

			require.Equal(t, waapi.TopicNameChanged, s.topics[0])
			assert.Nil(t, s.options[0])
			assert.Equal(t, tt.want, s.options[1:])
			for _, topic := range s.topics[1:] {
				assert.Equal(t, waapi.TopicPropertyChanged, topic)
			}
		})
	}
}

func TestAttach_DefaultsIncludePropertyChanges(t *testing.T) {
	s := &recordingSubscriber{}
	_, err := New().Attach(context.Background(), s)
	require.NoError(t, err)
	assert.Contains(t, s.topics, waapi.TopicPropertyChanged)
	assert.Contains(t, s.options, waapi.PropertyOptions("Volume"))
}

func TestAttach_DetachStopsClearing(t *testing.T) {
	env := startMock(t)
	ctx := context.Background()

	c := waapi.New(clientConfig())
	require.True(t, c.Connect(ctx, env.host, env.port))
	defer c.Disconnect()

	obj, err := c.CreateObject(ctx, waapi.CreateArgs{Parent: mockwaapi.DefaultWorkUnit, Type: "Sound", Name: "Ambience"})
	require.NoError(t, err)

	tr := New(WithGraceWindow(10 * time.Millisecond))
	detach, err := tr.Attach(ctx, c, waapi.TopicNameChanged)
	require.NoError(t, err)
	require.NoError(t, detach(ctx))
	assert.Zero(t, env.srv.Broker().SubscriberCount(waapi.TopicNameChanged))

	tr.Push("A")
	externalRename(t, env.srv, obj.ID, "Ambience_Night")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"A"}, tr.History().Undo)
}

func TestAttach_NotConnected(t *testing.T) {
	tr := New()
	_, err := tr.Attach(context.Background(), waapi.New(waapi.DefaultConfig()))
	assert.ErrorIs(t, err, waapi.ErrNotConnected)
}
