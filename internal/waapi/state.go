package waapi

// Status is the lifecycle stage of the session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Code returns the numeric form exported as a metric.
func (s Status) Code() int {
	switch s {
	case StatusConnecting:
		return 1
	case StatusConnected:
		return 2
	case StatusError:
		return 3
	default:
		return 0
	}
}

// Project describes the authoring application the session is attached to.
type Project struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// State is a snapshot of the session as seen by observers.
type State struct {
	Status  Status
	Host    string
	Port    int
	Error   string
	Project *Project
}

// IsConnected reports whether calls can be issued.
func (s State) IsConnected() bool {
	return s.Status == StatusConnected
}

// OnStateChange registers fn to be called after every status or descriptor
// change. Callbacks run on the goroutine that made the change, outside the
// client lock, one change at a time and in order; a change superseded before
// it could be delivered is skipped. The returned func removes the observer.
func (c *Client) OnStateChange(fn func(State)) (remove func()) {
	c.mu.Lock()
	id := c.nextObserver
	c.nextObserver++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// State returns the current session snapshot.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Client) snapshotLocked() State {
	s := c.state
	if s.Project != nil {
		p := *s.Project
		s.Project = &p
	}
	return s
}

// stateChange is a published state with the observers registered at the
// time it was set. seq orders changes across goroutines.
type stateChange struct {
	seq   uint64
	state State
	fns   []func(State)
}

// setStateLocked replaces the state and returns the change to publish once
// the lock is released.
func (c *Client) setStateLocked(s State) stateChange {
	c.state = s
	c.stateSeq++
	c.metrics.SetStatus(s.Status.Code())
	fns := make([]func(State), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	return stateChange{seq: c.stateSeq, state: c.snapshotLocked(), fns: fns}
}

// notify delivers ch unless a newer change has already been delivered, so
// observers never see an older snapshot after a newer one. Deliveries are
// serialised; observers must not call Connect or Disconnect synchronously.
func (c *Client) notify(ch stateChange) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if ch.seq <= c.notified {
		return
	}
	c.notified = ch.seq
	for _, fn := range ch.fns {
		fn(ch.state)
	}
}
