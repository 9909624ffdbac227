// Package mockwaapi is an in-process WAMP router that imitates the Wwise
// Authoring API closely enough to develop and test against: an object tree
// with undo groups, change notifications and a handful of UI procedures.
package mockwaapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/waapi-kit/waapi-kit/internal/wamp"
)

// Options tune the router. The zero value serves realm1 with no delays.
type Options struct {
	Realm   string
	Logger  zerolog.Logger
	Project ProjectInfo

	// HandshakeDelay holds WELCOME back this long after HELLO.
	HandshakeDelay time.Duration
	// DropHello never answers HELLO, leaving clients stuck mid-handshake.
	DropHello bool
	// SubscribeDelay holds SUBSCRIBED back this long. The subscription is
	// live on the router as soon as SUBSCRIBE arrives.
	SubscribeDelay time.Duration
}

// ProjectInfo is what ak.wwise.core.getProjectInfo reports.
type ProjectInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Invocation is one CALL as seen by a procedure.
type Invocation struct {
	Session wamp.ID
	Options wamp.Dict
	Kwargs  json.RawMessage
}

// Bind decodes the keyword arguments into v. Missing arguments leave v untouched.
func (inv Invocation) Bind(v any) error {
	if len(inv.Kwargs) == 0 {
		return nil
	}
	if err := json.Unmarshal(inv.Kwargs, v); err != nil {
		return invalidArgs("invalid arguments: %v", err)
	}
	return nil
}

// ReturnFields reads the "return" option.
func (inv Invocation) ReturnFields() []string {
	raw, ok := inv.Options["return"].([]any)
	if !ok {
		return nil
	}
	fields := make([]string, 0, len(raw))
	for _, f := range raw {
		if s, ok := f.(string); ok {
			fields = append(fields, s)
		}
	}
	return fields
}

// Procedure implements one URI. A *Fault error is sent to the caller as a
// WAAPI error; any other error becomes wamp.error.runtime_error.
type Procedure func(inv Invocation) (any, error)

const errRuntime = "wamp.error.runtime_error"

type Server struct {
	opts   Options
	log    zerolog.Logger
	store  *Store
	broker *Broker

	mu        sync.Mutex
	procs     map[string]Procedure
	peers     map[*peer]bool
	closed    bool
	done      chan struct{}
	transport transports

	nextSession atomic.Uint64
}

// NewServer creates a router with the default procedure set registered.
func NewServer(opts Options) *Server {
	if opts.Realm == "" {
		opts.Realm = "realm1"
	}
	if opts.Project.Name == "" {
		opts.Project = ProjectInfo{Name: "WAAPIMock", Path: "/projects/WAAPIMock/WAAPIMock.wproj"}
	}
	s := &Server{
		opts:      opts,
		log:       opts.Logger.With().Str("component", "mockwaapi").Logger(),
		store:     NewStore(),
		procs:     make(map[string]Procedure),
		peers:     make(map[*peer]bool),
		done:      make(chan struct{}),
		transport: transports{byID: make(map[int]*transportState)},
	}
	s.broker = newBroker(s.log, s.removePeer)
	s.registerDefaults()
	return s
}

func (s *Server) Store() *Store   { return s.store }
func (s *Server) Broker() *Broker { return s.broker }

// Register installs or replaces the procedure for uri.
func (s *Server) Register(uri string, p Procedure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs[uri] = p
}

// Publish sends an event to every subscriber of topic.
func (s *Server) Publish(topic string, payload any) {
	s.broker.Publish(topic, payload)
}

func (s *Server) procedures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	uris := make([]string, 0, len(s.procs))
	for uri := range s.procs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

// PeerCount returns the number of connected clients.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/waapi", s.handleWS)
}

// Handler returns a mux serving the WAMP endpoint at /waapi.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	offered := false
	for _, proto := range websocket.Subprotocols(r) {
		if proto == wamp.SubprotocolJSON {
			offered = true
		}
	}
	if !offered {
		http.Error(w, "subprotocol "+wamp.SubprotocolJSON+" required", http.StatusBadRequest)
		return
	}

	upgrader := websocket.Upgrader{
		Subprotocols: []string{wamp.SubprotocolJSON},
		CheckOrigin:  func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade error")
		return
	}

	p := newPeer(conn, s.log.With().Str("remote", r.RemoteAddr).Logger())
	if !s.addPeer(p) {
		p.kill()
		return
	}
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("client connected")

	go func() {
		defer func() {
			s.removePeer(p)
			s.log.Debug().Str("remote", r.RemoteAddr).Msg("client disconnected")
		}()
		s.serve(p)
	}()
}

func (s *Server) addPeer(p *peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.peers[p] = true
	return true
}

func (s *Server) removePeer(p *peer) {
	s.mu.Lock()
	_, ok := s.peers[p]
	delete(s.peers, p)
	s.mu.Unlock()
	if ok {
		s.broker.removePeer(p)
		p.close()
	}
}

func (s *Server) snapshotPeers() []*peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	return peers
}

func (s *Server) read(p *peer) (wamp.Message, error) {
	_, data, err := p.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return wamp.Decode(data)
}

// serve runs the session protocol for one peer until it goes away.
func (s *Server) serve(p *peer) {
	msg, err := s.read(p)
	if err != nil {
		return
	}
	hello, ok := msg.(*wamp.Hello)
	if !ok {
		p.write(&wamp.Abort{Details: wamp.Dict{"message": "expected HELLO"}, Reason: wamp.ErrProtocolViolation})
		return
	}
	if hello.Realm != s.opts.Realm {
		p.write(&wamp.Abort{
			Details: wamp.Dict{"message": fmt.Sprintf("no realm %q", hello.Realm)},
			Reason:  wamp.ErrNoSuchRealm,
		})
		return
	}
	if s.opts.DropHello {
		for {
			if _, _, err := p.conn.ReadMessage(); err != nil {
				return
			}
		}
	}
	if d := s.opts.HandshakeDelay; d > 0 {
		select {
		case <-time.After(d):
		case <-s.done:
			return
		}
	}

	p.session = wamp.ID(s.nextSession.Add(1))
	p.log = p.log.With().Uint64("session", uint64(p.session)).Logger()
	p.write(&wamp.Welcome{Session: p.session, Details: wamp.Dict{
		"authrole": "user",
		"roles":    map[string]any{"broker": map[string]any{}, "dealer": map[string]any{}},
	}})

	for {
		msg, err := s.read(p)
		if err != nil {
			if errors.Is(err, wamp.ErrMalformed) || errors.Is(err, wamp.ErrUnsupported) {
				p.log.Warn().Err(err).Msg("dropping message")
				continue
			}
			return
		}

		switch m := msg.(type) {
		case *wamp.Call:
			go s.invoke(p, m)
		case *wamp.Subscribe:
			id := s.broker.subscribe(p, m.Topic)
			reply := &wamp.Subscribed{Request: m.Request, Subscription: id}
			if d := s.opts.SubscribeDelay; d > 0 {
				time.AfterFunc(d, func() { p.write(reply) })
			} else {
				p.write(reply)
			}
		case *wamp.Unsubscribe:
			if s.broker.unsubscribe(p, m.Subscription) {
				p.write(&wamp.Unsubscribed{Request: m.Request})
			} else {
				p.write(&wamp.Error{
					RequestType: wamp.TypeUnsubscribe,
					Request:     m.Request,
					Error:       wamp.ErrNoSuchSubscription,
				})
			}
		case *wamp.Goodbye:
			p.write(&wamp.Goodbye{Reason: wamp.CloseGoodbyeAndOut})
			return
		default:
			p.log.Debug().Str("type", msg.Type().String()).Msg("ignoring message")
		}
	}
}

func (s *Server) invoke(p *peer, m *wamp.Call) {
	s.mu.Lock()
	proc, ok := s.procs[m.Procedure]
	s.mu.Unlock()

	if !ok {
		args, _ := wamp.Raw("no such procedure: " + m.Procedure)
		p.write(&wamp.Error{
			RequestType: wamp.TypeCall,
			Request:     m.Request,
			Error:       wamp.ErrNoSuchProcedure,
			Args:        []json.RawMessage{args},
		})
		return
	}

	res, err := proc(Invocation{Session: p.session, Options: m.Options, Kwargs: m.Kwargs})
	if err != nil {
		p.write(callError(m.Request, err))
		return
	}
	kwargs, err := wamp.Raw(res)
	if err != nil {
		p.write(callError(m.Request, err))
		return
	}
	if kwargs == nil {
		kwargs = json.RawMessage(`{}`)
	}
	p.write(&wamp.Result{Request: m.Request, Kwargs: kwargs})
}

func callError(req wamp.ID, err error) *wamp.Error {
	var f *Fault
	if errors.As(err, &f) {
		kwargs, _ := wamp.Raw(map[string]any{"message": f.Message})
		return &wamp.Error{RequestType: wamp.TypeCall, Request: req, Error: f.URI, Kwargs: kwargs}
	}
	args, _ := wamp.Raw(err.Error())
	return &wamp.Error{RequestType: wamp.TypeCall, Request: req, Error: errRuntime, Args: []json.RawMessage{args}}
}

// Goodbye ends every session with a GOODBYE carrying reason.
func (s *Server) Goodbye(reason string) {
	for _, p := range s.snapshotPeers() {
		p.write(&wamp.Goodbye{Reason: reason})
		s.removePeer(p)
	}
}

// CloseAll drops every connection without a closing handshake.
func (s *Server) CloseAll() {
	for _, p := range s.snapshotPeers() {
		p.kill()
		s.removePeer(p)
	}
}

// Close stops accepting sessions and drops the connected ones.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	s.CloseAll()
}

// ListenAndServe serves the router on host:port until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Msg("mock WAAPI listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
