package waapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/waapi-kit/waapi-kit/internal/metrics"
	"github.com/waapi-kit/waapi-kit/internal/wamp"
)

// Call invokes the procedure at uri with args as its keyword payload and
// options as the WAMP options dict. A keyword result is returned as is; a
// positional result of one element is unwrapped. The call is not retried and
// cancelling ctx only stops waiting, the server keeps running the procedure.
func (c *Client) Call(ctx context.Context, uri string, args any, options map[string]any) (json.RawMessage, error) {
	start := time.Now()
	res, outcome, err := c.call(ctx, uri, args, options)
	c.metrics.ObserveCall(uri, outcome, time.Since(start))
	if err != nil {
		c.log.Debug().Err(err).Str("uri", uri).Msg("call failed")
	}
	return res, err
}

func (c *Client) call(ctx context.Context, uri string, args any, options map[string]any) (json.RawMessage, string, error) {
	sess := c.session()
	if sess == nil {
		return nil, metrics.OutcomeNotConnected, localError(uri, ErrNotConnected)
	}
	kwargs, err := wamp.Raw(args)
	if err != nil {
		return nil, metrics.OutcomeTransport, localError(uri, fmt.Errorf("encode arguments: %w", err))
	}
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	reply, err := sess.roundTrip(ctx, uri, func(id wamp.ID) wamp.Message {
		return &wamp.Call{Request: id, Options: options, Procedure: uri, Kwargs: kwargs}
	}, nil)
	if err != nil {
		return nil, outcomeOf(err), localError(uri, err)
	}

	switch m := reply.(type) {
	case *wamp.Result:
		return unwrapResult(m), metrics.OutcomeOK, nil
	case *wamp.Error:
		return nil, metrics.OutcomeRemoteError, remoteError(uri, m)
	default:
		return nil, metrics.OutcomeTransport, localError(uri, fmt.Errorf("%w: unexpected %s", ErrProtocol, reply.Type()))
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrNotConnected):
		return metrics.OutcomeNotConnected
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeAbandoned
	default:
		return metrics.OutcomeTransport
	}
}

func unwrapResult(m *wamp.Result) json.RawMessage {
	switch {
	case len(m.Kwargs) > 0:
		return m.Kwargs
	case len(m.Args) == 1:
		return m.Args[0]
	case len(m.Args) > 1:
		data, _ := json.Marshal(m.Args)
		return data
	default:
		return nil
	}
}

// callInto runs Call and decodes a non-empty result into out.
func (c *Client) callInto(ctx context.Context, uri string, args any, options map[string]any, out any) error {
	res, err := c.Call(ctx, uri, args, options)
	if err != nil {
		return err
	}
	if out == nil || len(res) == 0 {
		return nil
	}
	if err := json.Unmarshal(res, out); err != nil {
		return &CallError{URI: uri, Message: "decode result: " + err.Error(), Err: err}
	}
	return nil
}

// Handler receives events for a subscription. Each event runs on its own
// goroutine, so handlers must be safe for concurrent use.
type Handler func(Event)

// Event is one publication delivered to a subscription.
type Event struct {
	Topic       string
	Publication wamp.ID
	Details     wamp.Dict
	Args        []json.RawMessage
	Kwargs      json.RawMessage
}

// Decode unmarshals the event's keyword payload, or its first positional
// argument when there is no keyword payload.
func (e Event) Decode(v any) error {
	switch {
	case len(e.Kwargs) > 0:
		return json.Unmarshal(e.Kwargs, v)
	case len(e.Args) > 0:
		return json.Unmarshal(e.Args[0], v)
	default:
		return fmt.Errorf("waapi: event on %s has no payload", e.Topic)
	}
}

// Subscription is a live registration for one topic. It belongs to the
// caller that created it.
type Subscription struct {
	topic   string
	id      wamp.ID // set by the read loop on SUBSCRIBED
	sess    *session
	handler Handler
}

// Topic returns the subscribed topic URI.
func (s *Subscription) Topic() string { return s.topic }

// Subscribe registers handler for events published on topic.
func (c *Client) Subscribe(ctx context.Context, topic string, handler Handler, options map[string]any) (*Subscription, error) {
	if handler == nil {
		return nil, &CallError{URI: topic, Message: "nil handler", Err: errors.New("waapi: nil handler")}
	}
	sess := c.session()
	if sess == nil {
		return nil, localError(topic, ErrNotConnected)
	}

	sub := &Subscription{topic: topic, sess: sess, handler: handler}
	reply, err := sess.roundTrip(ctx, topic, func(id wamp.ID) wamp.Message {
		return &wamp.Subscribe{Request: id, Options: options, Topic: topic}
	}, sub)
	if err != nil {
		return nil, localError(topic, err)
	}

	switch m := reply.(type) {
	case *wamp.Subscribed:
		c.log.Debug().Str("topic", topic).Uint64("subscription", uint64(m.Subscription)).Msg("subscribed")
		return sub, nil
	case *wamp.Error:
		return nil, remoteError(topic, m)
	default:
		return nil, localError(topic, fmt.Errorf("%w: unexpected %s", ErrProtocol, reply.Type()))
	}
}

// Unsubscribe stops delivery to this subscription. It fails with
// ErrNotConnected once the session it was made on has closed, and is a no-op
// when already unsubscribed.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	sess := s.sess
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return localError(s.topic, ErrNotConnected)
	}
	ts, ok := sess.subs[s.id]
	if !ok {
		sess.mu.Unlock()
		return nil
	}
	if _, member := ts.members[s]; !member {
		sess.mu.Unlock()
		return nil
	}
	delete(ts.members, s)
	last := len(ts.members) == 0
	if last {
		delete(sess.subs, s.id)
	}
	sess.mu.Unlock()

	if !last {
		return nil
	}

	reply, err := sess.roundTrip(ctx, s.topic, func(id wamp.ID) wamp.Message {
		return &wamp.Unsubscribe{Request: id, Subscription: s.id}
	}, nil)
	if err != nil {
		return localError(s.topic, err)
	}
	if m, ok := reply.(*wamp.Error); ok {
		return remoteError(s.topic, m)
	}
	return nil
}
