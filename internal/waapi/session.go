package waapi

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/waapi-kit/waapi-kit/internal/wamp"
)

// session is one open WAMP session. It is discarded, never reused, once the
// connection closes.
type session struct {
	client *Client
	conn   *websocket.Conn
	id     wamp.ID
	log    zerolog.Logger

	writeMu sync.Mutex // serialises all conn writes
	nextReq atomic.Uint64

	mu       sync.Mutex
	pending  map[wamp.ID]*request
	subs     map[wamp.ID]*topicSubs
	orphans  map[wamp.ID]string // abandoned SUBSCRIBE request -> topic
	closed   bool
	closing  bool   // closed locally by Disconnect
	goodbye  string // reason of a GOODBYE or ABORT from the router
	stopPing chan struct{}
}

// request is an outstanding CALL, SUBSCRIBE or UNSUBSCRIBE. reply receives
// exactly one message, or is closed when the session dies first.
type request struct {
	uri   string
	reply chan wamp.Message
	sub   *Subscription
}

// topicSubs holds the local subscribers sharing one router subscription.
type topicSubs struct {
	topic   string
	members map[*Subscription]struct{}
}

func newSession(c *Client, conn *websocket.Conn, id wamp.ID) *session {
	return &session{
		client:   c,
		conn:     conn,
		id:       id,
		log:      c.log.With().Uint64("session", uint64(id)).Logger(),
		pending:  make(map[wamp.ID]*request),
		subs:     make(map[wamp.ID]*topicSubs),
		orphans:  make(map[wamp.ID]string),
		stopPing: make(chan struct{}),
	}
}

func (s *session) send(m wamp.Message) error {
	data, err := wamp.Encode(m)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.client.cfg.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return nil
}

// roundTrip sends the message built for a fresh request id and waits for the
// router's answer. If ctx ends first the request is forgotten; a reply that
// has already been matched is still returned.
func (s *session) roundTrip(ctx context.Context, uri string, build func(wamp.ID) wamp.Message, sub *Subscription) (wamp.Message, error) {
	id := wamp.ID(s.nextReq.Add(1))
	r := &request{uri: uri, reply: make(chan wamp.Message, 1), sub: sub}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	s.pending[id] = r
	s.mu.Unlock()

	if err := s.send(build(id)); err != nil {
		s.forget(id)
		return nil, err
	}

	select {
	case m, ok := <-r.reply:
		if !ok {
			return nil, ErrConnectionClosed
		}
		return m, nil
	case <-ctx.Done():
		if s.abandon(id) {
			return nil, ctx.Err()
		}
		m, ok := <-r.reply
		if !ok {
			return nil, ErrConnectionClosed
		}
		return m, nil
	}
}

// forget drops a pending request and reports whether it was still pending.
func (s *session) forget(id wamp.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

// abandon is forget for a caller that stopped waiting. An abandoned
// SUBSCRIBE is remembered so its subscription can be released if the router
// still grants it.
func (s *session) abandon(id wamp.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.pending[id]
	if !ok {
		return false
	}
	delete(s.pending, id)
	if r.sub != nil {
		s.orphans[id] = r.sub.topic
	}
	return true
}

func (s *session) take(id wamp.ID) *request {
	r, ok := s.pending[id]
	if !ok {
		return nil
	}
	delete(s.pending, id)
	return r
}

func (s *session) resolve(id wamp.ID, m wamp.Message) {
	s.mu.Lock()
	r := s.take(id)
	s.mu.Unlock()
	if r == nil {
		s.log.Debug().Uint64("request", uint64(id)).Str("type", m.Type().String()).Msg("reply for unknown request")
		return
	}
	r.reply <- m
}

// resolveSubscribed registers the handler before waking the caller so no
// event published right after SUBSCRIBED is missed.
func (s *session) resolveSubscribed(m *wamp.Subscribed) {
	s.mu.Lock()
	r := s.take(m.Request)
	if r != nil && r.sub != nil {
		r.sub.id = m.Subscription
		ts, ok := s.subs[m.Subscription]
		if !ok {
			ts = &topicSubs{topic: r.sub.topic, members: make(map[*Subscription]struct{})}
			s.subs[m.Subscription] = ts
		}
		ts.members[r.sub] = struct{}{}
	}
	var orphaned bool
	if r == nil {
		orphaned = s.orphanedLocked(m)
	}
	s.mu.Unlock()
	if orphaned {
		go s.releaseOrphan(m.Subscription)
		return
	}
	if r == nil {
		s.log.Debug().Uint64("request", uint64(m.Request)).Msg("SUBSCRIBED for unknown request")
		return
	}
	r.reply <- m
}

// orphanedLocked reports whether m answers an abandoned SUBSCRIBE whose
// router subscription nobody local holds or is still waiting for.
func (s *session) orphanedLocked(m *wamp.Subscribed) bool {
	topic, ok := s.orphans[m.Request]
	if !ok {
		return false
	}
	delete(s.orphans, m.Request)
	if ts := s.subs[m.Subscription]; ts != nil && len(ts.members) > 0 {
		return false
	}
	for _, r := range s.pending {
		if r.sub != nil && r.sub.topic == topic {
			return false
		}
	}
	return true
}

// releaseOrphan unsubscribes a router subscription left behind by a
// Subscribe whose caller gave up.
func (s *session) releaseOrphan(id wamp.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.cfg.WriteTimeout)
	defer cancel()
	reply, err := s.roundTrip(ctx, "", func(req wamp.ID) wamp.Message {
		return &wamp.Unsubscribe{Request: req, Subscription: id}
	}, nil)
	if err == nil {
		if e, ok := reply.(*wamp.Error); ok {
			err = fmt.Errorf("unsubscribe rejected: %s", e.Error)
		}
	}
	if err != nil {
		s.log.Debug().Err(err).Uint64("subscription", uint64(id)).Msg("release abandoned subscription")
		return
	}
	s.log.Debug().Uint64("subscription", uint64(id)).Msg("released abandoned subscription")
}

// dispatch hands an event to every local subscriber, each on its own goroutine.
func (s *session) dispatch(m *wamp.Event) {
	s.mu.Lock()
	ts := s.subs[m.Subscription]
	var handlers []Handler
	var topic string
	if ts != nil {
		topic = ts.topic
		for sub := range ts.members {
			handlers = append(handlers, sub.handler)
		}
	}
	s.mu.Unlock()

	if ts == nil {
		s.log.Debug().Uint64("subscription", uint64(m.Subscription)).Msg("event for unknown subscription")
		return
	}
	s.client.metrics.ObserveEvent(topic)

	ev := Event{
		Topic:       topic,
		Publication: m.Publication,
		Details:     m.Details,
		Args:        m.Args,
		Kwargs:      m.Kwargs,
	}
	for _, h := range handlers {
		go h(ev)
	}
}

// peerClosed handles GOODBYE or ABORT from the router.
func (s *session) peerClosed(reason string) {
	s.mu.Lock()
	s.goodbye = reason
	closing := s.closing
	s.mu.Unlock()

	if !closing {
		_ = s.send(&wamp.Goodbye{Reason: wamp.CloseGoodbyeAndOut})
	}
	s.conn.Close()
}

func (s *session) cleanClose(cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return true
	}
	if s.goodbye != "" {
		return wamp.IsCleanClose(s.goodbye)
	}
	return websocket.IsCloseError(cause, websocket.CloseNormalClosure)
}

func (s *session) closeReason(cause error) string {
	s.mu.Lock()
	reason := s.goodbye
	s.mu.Unlock()
	if reason != "" {
		return reason
	}
	return cause.Error()
}

// close ends the session from our side: GOODBYE, close frame, teardown.
func (s *session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.mu.Unlock()

	_ = s.send(&wamp.Goodbye{Reason: wamp.CloseNormal})
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	s.shutdown()
}

// shutdown fails every pending request and releases the connection. Safe to
// call more than once.
func (s *session) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.pending
	s.pending = make(map[wamp.ID]*request)
	s.subs = make(map[wamp.ID]*topicSubs)
	s.orphans = make(map[wamp.ID]string)
	s.mu.Unlock()

	close(s.stopPing)
	for _, r := range pending {
		close(r.reply)
	}
	s.conn.Close()
}

// pingLoop sends periodic pings until the session shuts down.
func (s *session) pingLoop(interval, writeTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopPing:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
