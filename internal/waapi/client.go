// Package waapi is a client for the Wwise Authoring API. A Client owns one
// WAMP session over a WebSocket and exposes Call and Subscribe plus typed
// wrappers for the procedures and topics the toolkit uses.
package waapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/waapi-kit/waapi-kit/internal/metrics"
	"github.com/waapi-kit/waapi-kit/internal/wamp"
)

// errCleanClose marks a handshake that ended in an orderly close rather than a failure.
var errCleanClose = errors.New("waapi: closed before session opened")

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for lifecycle and protocol messages.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l.With().Str("component", "waapi").Logger() }
}

// WithMetrics records call, event and status metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client manages the session with the Wwise authoring server. The zero value
// is not usable; create one with New.
type Client struct {
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu           sync.Mutex
	state        State
	sess         *session
	attempt      *attempt
	observers    map[int]func(State)
	nextObserver int
	stateSeq     uint64

	notifyMu sync.Mutex
	notified uint64
}

// attempt is one in-flight Connect. Concurrent Connect calls wait on done.
type attempt struct {
	done   chan struct{}
	ok     bool
	cancel context.CancelFunc
}

func (a *attempt) finish(ok bool) {
	a.ok = ok
	close(a.done)
}

func (a *attempt) wait(ctx context.Context) bool {
	select {
	case <-a.done:
		return a.ok
	case <-ctx.Done():
		return false
	}
}

// New creates a disconnected client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg.withDefaults(),
		log:       zerolog.Nop(),
		state:     State{Status: StatusDisconnected},
		observers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens a session with the server at host:port and reports whether it
// succeeded. It returns true at once when already connected. While another
// Connect is in progress it starts nothing new and returns that attempt's
// outcome. Failures are recorded in State().Error.
func (c *Client) Connect(ctx context.Context, host string, port int) bool {
	c.mu.Lock()
	switch c.state.Status {
	case StatusConnected:
		c.mu.Unlock()
		return true
	case StatusConnecting:
		a := c.attempt
		c.mu.Unlock()
		return a.wait(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	a := &attempt{done: make(chan struct{}), cancel: cancel}
	c.attempt = a
	change := c.setStateLocked(State{Status: StatusConnecting, Host: host, Port: port})
	c.mu.Unlock()
	c.notify(change)

	log := c.log.With().Str("host", host).Int("port", port).Logger()
	log.Info().Msg("connecting")

	sess, err := c.open(attemptCtx, host, port)

	c.mu.Lock()
	if c.attempt != a {
		// Disconnect ran while we were opening and already published its state.
		c.mu.Unlock()
		if sess != nil {
			sess.close()
		}
		log.Info().Msg("connect abandoned by disconnect")
		c.metrics.ObserveConnect(false)
		a.finish(false)
		return false
	}
	c.attempt = nil

	next := State{Host: host, Port: port}
	switch {
	case errors.Is(err, errCleanClose):
		next.Status = StatusDisconnected
	case err != nil:
		next.Status = StatusError
		next.Error = c.describeFailure(attemptCtx, err)
	default:
		next.Status = StatusConnected
		c.sess = sess
		go c.readLoop(sess)
	}
	change = c.setStateLocked(next)
	c.mu.Unlock()
	c.notify(change)

	if err != nil {
		log.Warn().Err(err).Str("status", string(next.Status)).Msg("connect failed")
		c.metrics.ObserveConnect(false)
		a.finish(false)
		return false
	}

	log.Info().Uint64("session", uint64(sess.id)).Msg("connected")
	c.metrics.ObserveConnect(true)
	c.fetchProject(ctx, sess)
	a.finish(true)
	return true
}

// Disconnect closes the session, or abandons a connect in progress. It is
// safe to call in any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if a := c.attempt; a != nil {
		c.attempt = nil
		a.cancel()
	}
	sess := c.sess
	c.sess = nil

	changed := c.state.Status != StatusDisconnected || c.state.Error != "" || c.state.Project != nil
	var change stateChange
	if changed {
		change = c.setStateLocked(State{Status: StatusDisconnected, Host: c.state.Host, Port: c.state.Port})
	}
	c.mu.Unlock()

	if sess != nil {
		sess.close()
		c.log.Info().Uint64("session", uint64(sess.id)).Msg("disconnected")
	}
	if changed {
		c.notify(change)
	}
}

func (c *Client) session() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// URL returns the WebSocket address used for host and port.
func (c *Client) URL(host string, port int) string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + c.cfg.Endpoint,
	}
	return u.String()
}

// open dials, negotiates the subprotocol and runs the HELLO/WELCOME exchange.
// Cancelling ctx aborts any of those steps.
func (c *Client) open(ctx context.Context, host string, port int) (*session, error) {
	target := c.URL(host, port)
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.ConnectTimeout,
		Subprotocols:     []string{wamp.SubprotocolJSON},
	}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	if conn.Subprotocol() != wamp.SubprotocolJSON {
		conn.Close()
		return nil, fmt.Errorf("%w: server did not accept subprotocol %s", ErrProtocol, wamp.SubprotocolJSON)
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	welcome, err := c.handshake(conn)
	if !stop() {
		conn.Close()
		return nil, ctx.Err()
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return newSession(c, conn, welcome.Session), nil
}

func (c *Client) handshake(conn *websocket.Conn) (*wamp.Welcome, error) {
	hello, err := wamp.Encode(&wamp.Hello{
		Realm: c.cfg.Realm,
		Details: wamp.Dict{
			"agent": "waapi-kit",
			"roles": map[string]any{
				"caller":     map[string]any{},
				"subscriber": map[string]any{},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		return nil, fmt.Errorf("send hello: %w", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return nil, errCleanClose
		}
		return nil, fmt.Errorf("await welcome: %w", err)
	}
	msg, err := wamp.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("await welcome: %w", err)
	}

	switch m := msg.(type) {
	case *wamp.Welcome:
		return m, nil
	case *wamp.Abort:
		if wamp.IsCleanClose(m.Reason) {
			return nil, errCleanClose
		}
		if detail, ok := m.Details["message"].(string); ok && detail != "" {
			return nil, fmt.Errorf("session aborted: %s: %s", m.Reason, detail)
		}
		return nil, fmt.Errorf("session aborted: %s", m.Reason)
	default:
		return nil, fmt.Errorf("%w: expected WELCOME, got %s", ErrProtocol, msg.Type())
	}
}

func (c *Client) describeFailure(ctx context.Context, err error) string {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("connection timeout after %s", c.cfg.ConnectTimeout)
	case ctx.Err() != nil:
		return "connect cancelled"
	default:
		return err.Error()
	}
}

// fetchProject resolves the project descriptor. Failure leaves the session up.
func (c *Client) fetchProject(ctx context.Context, sess *session) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	info, err := c.GetProjectInfo(ctx)
	if err != nil {
		c.log.Debug().Err(err).Msg("project info unavailable")
		return
	}

	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return
	}
	next := c.state
	next.Project = &Project{Name: info.Name, Path: info.Path}
	change := c.setStateLocked(next)
	c.mu.Unlock()
	c.notify(change)
}

// readLoop owns all reads on the session's connection until it fails.
func (c *Client) readLoop(s *session) {
	conn := s.conn
	if c.cfg.PingInterval > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		})
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		go s.pingLoop(c.cfg.PingInterval, c.cfg.WriteTimeout)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(s, err)
			return
		}

		msg, err := wamp.Decode(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping undecodable message")
			continue
		}

		switch m := msg.(type) {
		case *wamp.Result:
			s.resolve(m.Request, m)
		case *wamp.Error:
			s.resolve(m.Request, m)
		case *wamp.Subscribed:
			s.resolveSubscribed(m)
		case *wamp.Unsubscribed:
			s.resolve(m.Request, m)
		case *wamp.Event:
			s.dispatch(m)
		case *wamp.Goodbye:
			s.peerClosed(m.Reason)
		case *wamp.Abort:
			s.peerClosed(m.Reason)
		default:
			s.log.Debug().Str("type", msg.Type().String()).Msg("ignoring unexpected message")
		}
	}
}

// handleClose runs when the read side fails. It is the only path that flips
// a live session to error or disconnected without a Disconnect call.
func (c *Client) handleClose(s *session, cause error) {
	clean := s.cleanClose(cause)
	s.shutdown()

	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	next := State{Status: StatusDisconnected, Host: c.state.Host, Port: c.state.Port}
	if !clean {
		next.Status = StatusError
		next.Error = "connection lost: " + s.closeReason(cause)
	}
	change := c.setStateLocked(next)
	c.mu.Unlock()

	if clean {
		c.log.Info().Uint64("session", uint64(s.id)).Msg("session closed")
	} else {
		c.log.Warn().Err(cause).Uint64("session", uint64(s.id)).Msg("session lost")
	}
	c.notify(change)
}
