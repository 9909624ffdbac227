package wamp

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed   = errors.New("wamp: malformed message")
	ErrUnsupported = errors.New("wamp: unsupported message type")
)

// Encode serializes m as a JSON array. Trailing Arguments and ArgumentsKw are
// omitted when empty; a non-nil Kwargs forces an (empty) Arguments list ahead of it.
func Encode(m Message) ([]byte, error) {
	var fields []any
	switch m := m.(type) {
	case *Hello:
		fields = []any{TypeHello, m.Realm, dict(m.Details)}
	case *Welcome:
		fields = []any{TypeWelcome, m.Session, dict(m.Details)}
	case *Abort:
		fields = []any{TypeAbort, dict(m.Details), m.Reason}
	case *Goodbye:
		fields = []any{TypeGoodbye, dict(m.Details), m.Reason}
	case *Error:
		fields = appendPayload([]any{TypeError, m.RequestType, m.Request, dict(m.Details), m.Error}, m.Args, m.Kwargs)
	case *Call:
		fields = appendPayload([]any{TypeCall, m.Request, dict(m.Options), m.Procedure}, m.Args, m.Kwargs)
	case *Result:
		fields = appendPayload([]any{TypeResult, m.Request, dict(m.Details)}, m.Args, m.Kwargs)
	case *Subscribe:
		fields = []any{TypeSubscribe, m.Request, dict(m.Options), m.Topic}
	case *Subscribed:
		fields = []any{TypeSubscribed, m.Request, m.Subscription}
	case *Unsubscribe:
		fields = []any{TypeUnsubscribe, m.Request, m.Subscription}
	case *Unsubscribed:
		fields = []any{TypeUnsubscribed, m.Request}
	case *Event:
		fields = appendPayload([]any{TypeEvent, m.Subscription, m.Publication, dict(m.Details)}, m.Args, m.Kwargs)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, m)
	}
	return json.Marshal(fields)
}

// Decode parses one JSON-framed WAMP message.
func Decode(data []byte) (Message, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrMalformed)
	}
	var code MessageType
	if err := json.Unmarshal(raw[0], &code); err != nil {
		return nil, fmt.Errorf("%w: message type: %v", ErrMalformed, err)
	}

	d := decoder{raw: raw, typ: code}
	var m Message
	switch code {
	case TypeHello:
		h := &Hello{}
		d.need(3)
		d.field(1, &h.Realm)
		d.field(2, &h.Details)
		m = h
	case TypeWelcome:
		w := &Welcome{}
		d.need(3)
		d.field(1, &w.Session)
		d.field(2, &w.Details)
		m = w
	case TypeAbort:
		a := &Abort{}
		d.need(3)
		d.field(1, &a.Details)
		d.field(2, &a.Reason)
		m = a
	case TypeGoodbye:
		g := &Goodbye{}
		d.need(3)
		d.field(1, &g.Details)
		d.field(2, &g.Reason)
		m = g
	case TypeError:
		e := &Error{}
		d.need(5)
		d.field(1, &e.RequestType)
		d.field(2, &e.Request)
		d.field(3, &e.Details)
		d.field(4, &e.Error)
		e.Args, e.Kwargs = d.payload(5)
		m = e
	case TypeCall:
		c := &Call{}
		d.need(4)
		d.field(1, &c.Request)
		d.field(2, &c.Options)
		d.field(3, &c.Procedure)
		c.Args, c.Kwargs = d.payload(4)
		m = c
	case TypeResult:
		r := &Result{}
		d.need(3)
		d.field(1, &r.Request)
		d.field(2, &r.Details)
		r.Args, r.Kwargs = d.payload(3)
		m = r
	case TypeSubscribe:
		s := &Subscribe{}
		d.need(4)
		d.field(1, &s.Request)
		d.field(2, &s.Options)
		d.field(3, &s.Topic)
		m = s
	case TypeSubscribed:
		s := &Subscribed{}
		d.need(3)
		d.field(1, &s.Request)
		d.field(2, &s.Subscription)
		m = s
	case TypeUnsubscribe:
		u := &Unsubscribe{}
		d.need(3)
		d.field(1, &u.Request)
		d.field(2, &u.Subscription)
		m = u
	case TypeUnsubscribed:
		u := &Unsubscribed{}
		d.need(2)
		d.field(1, &u.Request)
		m = u
	case TypeEvent:
		e := &Event{}
		d.need(4)
		d.field(1, &e.Subscription)
		d.field(2, &e.Publication)
		d.field(3, &e.Details)
		e.Args, e.Kwargs = d.payload(4)
		m = e
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupported, code)
	}
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}

// Raw marshals v for use as an Arguments element or ArgumentsKw. A nil v
// yields a nil message so the field is left off the wire.
func Raw(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if r, ok := v.(json.RawMessage); ok {
		return r, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return data, nil
}

type decoder struct {
	raw []json.RawMessage
	typ MessageType
	err error
}

func (d *decoder) need(n int) {
	if d.err == nil && len(d.raw) < n {
		d.err = fmt.Errorf("%w: %s has %d fields, want at least %d", ErrMalformed, d.typ, len(d.raw), n)
	}
}

func (d *decoder) field(i int, v any) {
	if d.err != nil {
		return
	}
	if err := json.Unmarshal(d.raw[i], v); err != nil {
		d.err = fmt.Errorf("%w: %s field %d: %v", ErrMalformed, d.typ, i, err)
	}
}

func (d *decoder) payload(i int) ([]json.RawMessage, json.RawMessage) {
	if d.err != nil {
		return nil, nil
	}
	var args []json.RawMessage
	var kwargs json.RawMessage
	if len(d.raw) > i {
		if err := json.Unmarshal(d.raw[i], &args); err != nil {
			d.err = fmt.Errorf("%w: %s arguments: %v", ErrMalformed, d.typ, err)
			return nil, nil
		}
	}
	if len(d.raw) > i+1 && string(d.raw[i+1]) != "null" {
		kwargs = d.raw[i+1]
	}
	return args, kwargs
}

func dict(d Dict) Dict {
	if d == nil {
		return Dict{}
	}
	return d
}

func appendPayload(fields []any, args []json.RawMessage, kwargs json.RawMessage) []any {
	if len(kwargs) > 0 {
		if args == nil {
			args = []json.RawMessage{}
		}
		return append(fields, args, kwargs)
	}
	if len(args) > 0 {
		return append(fields, args)
	}
	return fields
}
