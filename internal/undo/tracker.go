// Package undo approximates the authoring tool's undo history. The server
// does not expose that history, so the tracker records the labels of the
// operations this process committed and clears them whenever a change
// notification arrives that it cannot attribute to itself.
//
// Attribution is a heuristic. Every local operation is bracketed by
// BeginInternalOp and EndInternalOp, and the bracket stays open for a grace
// window after it ends so trailing notifications of that operation are
// absorbed. A change made by someone else inside that window is absorbed too
// and the displayed history goes stale; that is accepted in exchange for a
// history that does not flicker during multi-call operations.
package undo

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/waapi-kit/waapi-kit/internal/metrics"
	"github.com/waapi-kit/waapi-kit/internal/waapi"
)

// DefaultGraceWindow is how long an ended operation keeps absorbing changes.
const DefaultGraceWindow = 600 * time.Millisecond

// History is a snapshot of both stacks, most recent label last.
type History struct {
	Undo []string
	Redo []string
}

// CanUndo reports whether there is a label to undo.
func (h History) CanUndo() bool { return len(h.Undo) > 0 }

// CanRedo reports whether there is a label to redo.
func (h History) CanRedo() bool { return len(h.Redo) > 0 }

type Option func(*Tracker)

func WithGraceWindow(d time.Duration) Option {
	return func(t *Tracker) { t.grace = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.log = l.With().Str("component", "undo").Logger() }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithWatchedProperties sets the properties Attach follows on the property
// change topic, one subscription each. An empty list subscribes to the topic
// once without a property filter.
func WithWatchedProperties(props ...string) Option {
	return func(t *Tracker) { t.properties = props }
}

// Tracker holds the undo and redo label stacks. It is safe for concurrent use;
// event handlers call OnExternalChange from their own goroutines.
type Tracker struct {
	grace      time.Duration
	log        zerolog.Logger
	metrics    *metrics.Metrics
	properties []string

	mu    sync.Mutex
	undo  []string
	redo  []string
	depth int

	// pending counts ended operations whose decrement waits on the timer.
	pending int
	gen     uint64
	timer   *time.Timer

	observers    map[int]func(History)
	nextObserver int
}

func New(opts ...Option) *Tracker {
	t := &Tracker{
		grace:      DefaultGraceWindow,
		log:        zerolog.Nop(),
		properties: waapi.WatchedProperties(),
		observers: make(map[int]func(History)),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.grace < 0 {
		t.grace = 0
	}
	return t
}

// Push records a committed local operation and discards the redo stack.
func (t *Tracker) Push(label string) {
	t.mu.Lock()
	t.undo = append(t.undo, label)
	t.redo = nil
	h, fns := t.changedLocked()
	t.mu.Unlock()
	notify(h, fns)
}

// BeginInternalOp marks the start of a local operation. Decrements still
// waiting on a previous operation's grace window are applied now, since the
// new operation covers any notification they were waiting for.
func (t *Tracker) BeginInternalOp() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settleLocked()
	t.depth++
}

// EndInternalOp marks the end of a local operation. The depth drops once the
// grace window passes without another EndInternalOp.
func (t *Tracker) EndInternalOp() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.depth-t.pending <= 0 {
		t.log.Warn().Msg("EndInternalOp without matching BeginInternalOp")
		return
	}
	t.pending++
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.grace, func() { t.release(gen) })
}

func (t *Tracker) release(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	t.depth -= t.pending
	t.pending = 0
	t.timer = nil
}

// settleLocked applies pending decrements immediately and stops the timer.
func (t *Tracker) settleLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.depth -= t.pending
	t.pending = 0
}

// OnExternalChange handles a change notification. While a local operation
// is open or inside its grace window the change is ours and ignored;
// otherwise the tracked history can no longer be trusted and is cleared.
func (t *Tracker) OnExternalChange() {
	t.mu.Lock()
	if t.depth > 0 {
		t.mu.Unlock()
		return
	}
	if len(t.undo) == 0 && len(t.redo) == 0 {
		t.mu.Unlock()
		return
	}
	t.log.Debug().Int("undo", len(t.undo)).Int("redo", len(t.redo)).Msg("external change, clearing history")
	t.undo, t.redo = nil, nil
	h, fns := t.changedLocked()
	t.mu.Unlock()
	notify(h, fns)
}

// DidUndo moves the top undo label to the redo stack after this process
// issued a native undo.
func (t *Tracker) DidUndo() {
	t.mu.Lock()
	if len(t.undo) == 0 {
		t.mu.Unlock()
		return
	}
	top := t.undo[len(t.undo)-1]
	t.undo = t.undo[:len(t.undo)-1]
	t.redo = append(t.redo, top)
	h, fns := t.changedLocked()
	t.mu.Unlock()
	notify(h, fns)
}

// DidRedo is the inverse of DidUndo.
func (t *Tracker) DidRedo() {
	t.mu.Lock()
	if len(t.redo) == 0 {
		t.mu.Unlock()
		return
	}
	top := t.redo[len(t.redo)-1]
	t.redo = t.redo[:len(t.redo)-1]
	t.undo = append(t.undo, top)
	h, fns := t.changedLocked()
	t.mu.Unlock()
	notify(h, fns)
}

// Clear empties both stacks.
func (t *Tracker) Clear() {
	t.mu.Lock()
	if len(t.undo) == 0 && len(t.redo) == 0 {
		t.mu.Unlock()
		return
	}
	t.undo, t.redo = nil, nil
	h, fns := t.changedLocked()
	t.mu.Unlock()
	notify(h, fns)
}

func (t *Tracker) History() History {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Depth returns the number of operations still counted as in flight,
// including those inside their grace window.
func (t *Tracker) Depth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.depth
}

// OnChange registers fn to run after every history change, outside the
// tracker lock. The returned func removes it.
func (t *Tracker) OnChange(fn func(History)) (remove func()) {
	t.mu.Lock()
	id := t.nextObserver
	t.nextObserver++
	t.observers[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.observers, id)
		t.mu.Unlock()
	}
}

func (t *Tracker) snapshotLocked() History {
	return History{
		Undo: append([]string{}, t.undo...),
		Redo: append([]string{}, t.redo...),
	}
}

func (t *Tracker) changedLocked() (History, []func(History)) {
	t.metrics.SetHistory(len(t.undo), len(t.redo))
	fns := make([]func(History), 0, len(t.observers))
	for _, fn := range t.observers {
		fns = append(fns, fn)
	}
	return t.snapshotLocked(), fns
}

func notify(h History, fns []func(History)) {
	for _, fn := range fns {
		fn(h)
	}
}
