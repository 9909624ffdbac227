package undo

import (
	"context"
	"errors"

	"github.com/waapi-kit/waapi-kit/internal/waapi"
)

var (
	ErrNothingToUndo = errors.New("undo: nothing to undo")
	ErrNothingToRedo = errors.New("undo: nothing to redo")
)

// Grouper brackets remote mutations into one labelled undo step.
type Grouper interface {
	BeginUndoGroup(ctx context.Context) error
	EndUndoGroup(ctx context.Context, label string) error
	CancelUndoGroup(ctx context.Context) error
}

// NativeUndoer runs the authoring tool's own undo and redo commands.
type NativeUndoer interface {
	Undo(ctx context.Context) error
	Redo(ctx context.Context) error
}

// Subscriber registers topic handlers. *waapi.Client satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler waapi.Handler, options map[string]any) (*waapi.Subscription, error)
}

// StateSource reports session state changes. *waapi.Client satisfies it.
type StateSource interface {
	OnStateChange(fn func(waapi.State)) (remove func())
}

// Transaction runs fn inside a remote undo group labelled label and records
// the label once the group is committed. If fn or closing the group fails,
// the group is cancelled so no unlabelled partial step is left behind, and
// the original error is returned (joined with the cancel error if that
// failed too).
func (t *Tracker) Transaction(ctx context.Context, g Grouper, label string, fn func(ctx context.Context) error) error {
	t.BeginInternalOp()
	defer t.EndInternalOp()

	if err := g.BeginUndoGroup(ctx); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return t.abort(ctx, g, label, err)
	}
	if err := g.EndUndoGroup(ctx, label); err != nil {
		return t.abort(ctx, g, label, err)
	}
	t.Push(label)
	return nil
}

func (t *Tracker) abort(ctx context.Context, g Grouper, label string, cause error) error {
	if err := g.CancelUndoGroup(ctx); err != nil {
		t.log.Warn().Err(err).Str("label", label).Msg("cancel undo group failed")
		return errors.Join(cause, err)
	}
	return cause
}

// Undo runs the native undo command and moves the top label to redo.
func (t *Tracker) Undo(ctx context.Context, n NativeUndoer) error {
	if !t.History().CanUndo() {
		return ErrNothingToUndo
	}
	t.BeginInternalOp()
	defer t.EndInternalOp()
	if err := n.Undo(ctx); err != nil {
		return err
	}
	t.DidUndo()
	return nil
}

// Redo runs the native redo command and moves the top label back to undo.
func (t *Tracker) Redo(ctx context.Context, n NativeUndoer) error {
	if !t.History().CanRedo() {
		return ErrNothingToRedo
	}
	t.BeginInternalOp()
	defer t.EndInternalOp()
	if err := n.Redo(ctx); err != nil {
		return err
	}
	t.DidRedo()
	return nil
}

// Attach subscribes to topics (waapi.ChangeTopics when empty) and feeds every
// event to OnExternalChange. The property change topic is subscribed once per
// watched property. The subscriptions are owned by the tracker; the
// returned detach func releases them.
func (t *Tracker) Attach(ctx context.Context, s Subscriber, topics ...string) (detach func(context.Context) error, err error) {
	if len(topics) == 0 {
		topics = waapi.ChangeTopics()
	}
	handler := func(waapi.Event) { t.OnExternalChange() }

	subs := make([]*waapi.Subscription, 0, len(topics))
	release := func(ctx context.Context) error {
		var errs []error
		for _, sub := range subs {
			if err := sub.Unsubscribe(ctx); err != nil && !errors.Is(err, waapi.ErrNotConnected) {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	for _, topic := range topics {
		options := []map[string]any{nil}
		if topic == waapi.TopicPropertyChanged && len(t.properties) > 0 {
			options = options[:0]
			for _, prop := range t.properties {
				options = append(options, waapi.PropertyOptions(prop))
			}
		}
		for _, opts := range options {
			sub, err := s.Subscribe(ctx, topic, handler, opts)
			if err != nil {
				_ = release(ctx)
				return nil, err
			}
			subs = append(subs, sub)
		}
	}
	t.log.Debug().Strs("topics", topics).Msg("attached to change notifications")
	return release, nil
}

// ClearOnDisconnect empties the history whenever the session leaves the
// connected state. The returned func stops following src.
func (t *Tracker) ClearOnDisconnect(src StateSource) (remove func()) {
	return src.OnStateChange(func(s waapi.State) {
		if !s.IsConnected() {
			t.Clear()
		}
	})
}
