package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/waapi-kit/waapi-kit/internal/probe"
	"github.com/waapi-kit/waapi-kit/internal/undo"
	"github.com/waapi-kit/waapi-kit/internal/waapi"
)

const (
	updateBuffer = 128
	callTimeout  = 5 * time.Second

	// labelRename matches the label Wwise gives its own rename step.
	labelRename = "Rename Objects"
)

// Messages delivered through the update channel. Each one re-arms wait.
type (
	stateMsg   waapi.State
	historyMsg undo.History
	eventMsg   struct {
		Kind    string
		Message string
	}
)

// Messages returned directly by commands.
type (
	connectMsg struct {
		OK       bool
		Error    string
		Wwise    []probe.Process
		ProbeErr error
	}
	selectionMsg struct {
		Objects []waapi.Object
		Err     error
	}
	actionMsg struct {
		Action string
		Info   string
		Err    error
	}
)

// bridge turns client and tracker callbacks into tea messages and runs the
// blocking calls behind key presses.
type bridge struct {
	ctx     context.Context
	cancel  context.CancelFunc
	client  *waapi.Client
	tracker *undo.Tracker
	log     zerolog.Logger
	topics  []string
	find    func(context.Context) ([]probe.Process, error)
	updates chan tea.Msg

	mu       sync.Mutex
	watching bool
	subs     []func(context.Context) error
	removes  []func()
}

func newBridge(client *waapi.Client, tracker *undo.Tracker, opts Options) *bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &bridge{
		ctx:     ctx,
		cancel:  cancel,
		client:  client,
		tracker: tracker,
		log:     opts.Logger,
		topics:  opts.Topics,
		find:    opts.FindWwise,
		updates: make(chan tea.Msg, updateBuffer),
	}
	if b.find == nil {
		b.find = probe.FindWwise
	}
	b.removes = []func(){
		client.OnStateChange(func(s waapi.State) { b.send(stateMsg(s)) }),
		tracker.OnChange(func(h undo.History) { b.send(historyMsg(h)) }),
		tracker.ClearOnDisconnect(client),
	}
	return b
}

func (b *bridge) send(msg tea.Msg) {
	select {
	case b.updates <- msg:
	case <-b.ctx.Done():
	}
}

// wait delivers the next callback message to the program.
func (b *bridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.updates:
			return msg
		case <-b.ctx.Done():
			return nil
		}
	}
}

func (b *bridge) close() {
	b.mu.Lock()
	removes := b.removes
	b.removes = nil
	b.mu.Unlock()
	for _, remove := range removes {
		remove()
	}
	b.cancel()
	b.client.Disconnect()
}

func (b *bridge) connect(host string, port int) tea.Cmd {
	return func() tea.Msg {
		if b.client.Connect(b.ctx, host, port) {
			return connectMsg{OK: true}
		}
		msg := connectMsg{Error: b.client.State().Error}
		ctx, cancel := context.WithTimeout(b.ctx, 2*time.Second)
		defer cancel()
		msg.Wwise, msg.ProbeErr = b.find(ctx)
		return msg
	}
}

// disconnect releases the subscriptions cleanly before closing the session.
func (b *bridge) disconnect() tea.Cmd {
	return func() tea.Msg {
		b.mu.Lock()
		subs := b.subs
		b.subs = nil
		b.watching = false
		b.mu.Unlock()

		ctx, cancel := context.WithTimeout(b.ctx, callTimeout)
		defer cancel()
		for _, release := range subs {
			if err := release(ctx); err != nil && !errors.Is(err, waapi.ErrNotConnected) {
				b.log.Debug().Err(err).Msg("unsubscribe before disconnect failed")
			}
		}
		b.client.Disconnect()
		return nil
	}
}

// watch attaches the tracker and the event log to the new session. It is a
// no-op while a previous watch is still in place.
func (b *bridge) watch() tea.Cmd {
	return func() tea.Msg {
		b.mu.Lock()
		if b.watching {
			b.mu.Unlock()
			return nil
		}
		b.watching = true
		b.mu.Unlock()

		ctx, cancel := context.WithTimeout(b.ctx, callTimeout)
		defer cancel()

		detach, err := b.tracker.Attach(ctx, b.client, b.topics...)
		if err != nil {
			b.unwatch()
			return actionMsg{Action: "watch", Err: err}
		}
		subs := []func(context.Context) error{detach}

		logTopics := append(waapi.ChangeTopics(), waapi.TopicSelectionChanged)
		for _, topic := range logTopics {
			sub, err := b.client.Subscribe(ctx, topic, b.logEvent, nil)
			if err != nil {
				b.log.Warn().Err(err).Str("topic", topic).Msg("event log subscribe failed")
				continue
			}
			subs = append(subs, sub.Unsubscribe)
		}

		b.mu.Lock()
		b.subs = append(b.subs, subs...)
		b.mu.Unlock()
		return actionMsg{Action: "watch", Info: fmt.Sprintf("watching %d topics", len(logTopics))}
	}
}

// unwatch forgets the subscriptions of a session that has gone away.
func (b *bridge) unwatch() {
	b.mu.Lock()
	b.watching = false
	b.subs = nil
	b.mu.Unlock()
}

func (b *bridge) logEvent(ev waapi.Event) {
	kind := "evt"
	if ev.Topic == waapi.TopicSelectionChanged {
		kind = "sel"
	}
	b.send(eventMsg{Kind: kind, Message: describe(ev)})
}

func (b *bridge) undo() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(b.ctx, callTimeout)
		defer cancel()
		top := last(b.tracker.History().Undo)
		if err := b.tracker.Undo(ctx, b.client); err != nil {
			return actionMsg{Action: "undo", Err: err}
		}
		return actionMsg{Action: "undo", Info: "undid " + top}
	}
}

func (b *bridge) redo() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(b.ctx, callTimeout)
		defer cancel()
		top := last(b.tracker.History().Redo)
		if err := b.tracker.Redo(ctx, b.client); err != nil {
			return actionMsg{Action: "redo", Err: err}
		}
		return actionMsg{Action: "redo", Info: "redid " + top}
	}
}

// rename renames obj as one tracked undo step.
func (b *bridge) rename(obj waapi.Object, name string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(b.ctx, callTimeout)
		defer cancel()
		err := b.tracker.Transaction(ctx, b.client, labelRename, func(ctx context.Context) error {
			return b.client.RenameObject(ctx, obj.ID, name)
		})
		if err != nil {
			return actionMsg{Action: "rename", Err: err}
		}
		return actionMsg{Action: "rename", Info: fmt.Sprintf("renamed %s to %s", obj.Name, name)}
	}
}

func (b *bridge) selection() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(b.ctx, callTimeout)
		defer cancel()
		objs, err := b.client.GetSelectedObjects(ctx, "id", "name", "type", "path")
		return selectionMsg{Objects: objs, Err: err}
	}
}

func last(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	return labels[len(labels)-1]
}

// describe summarises a notification for the event log.
func describe(ev waapi.Event) string {
	short := ev.Topic[strings.LastIndex(ev.Topic, ".")+1:]

	if ev.Topic == waapi.TopicSelectionChanged {
		var sel waapi.SelectionEvent
		if err := ev.Decode(&sel); err != nil {
			return short
		}
		names := make([]string, 0, len(sel.Objects))
		for _, o := range sel.Objects {
			names = append(names, o.Name)
		}
		return fmt.Sprintf("%s [%s]", short, strings.Join(names, ", "))
	}

	var oe waapi.ObjectEvent
	if err := ev.Decode(&oe); err != nil {
		return short
	}
	switch {
	case oe.OldName != "" || oe.NewName != "":
		return fmt.Sprintf("%s %q -> %q", short, oe.OldName, oe.NewName)
	case oe.Child != nil && oe.Parent != nil:
		return fmt.Sprintf("%s %s under %s", short, oe.Child.Name, oe.Parent.Name)
	case oe.Property != "":
		return fmt.Sprintf("%s %s.%s", short, oe.Object.Name, oe.Property)
	case oe.Object.Name != "":
		return fmt.Sprintf("%s %s", short, oe.Object.Name)
	}
	return short
}

// connectHint explains a failed connect using the process probe.
func connectHint(msg connectMsg) string {
	switch {
	case msg.ProbeErr != nil:
		return ""
	case len(msg.Wwise) == 0:
		return "Wwise does not appear to be running"
	default:
		p := msg.Wwise[0]
		return fmt.Sprintf("%s is running (pid %d); check that WAAPI is enabled", p.Name, p.PID)
	}
}

func isNothingTo(err error) bool {
	return errors.Is(err, undo.ErrNothingToUndo) || errors.Is(err, undo.ErrNothingToRedo)
}
