// Package wamp implements the subset of the WAMP v2 basic profile spoken by the
// Wwise authoring API: session open/close, caller and subscriber roles, JSON
// serialization. Messages are plain structs; Encode and Decode convert them to
// and from the JSON array framing used on the wire.
package wamp

import "encoding/json"

// SubprotocolJSON is the WebSocket subprotocol negotiated with the router.
const SubprotocolJSON = "wamp.2.json"

// ID is a WAMP session, request, subscription or publication identifier.
type ID uint64

// MessageType is the leading integer code of every WAMP message.
type MessageType int

const (
	TypeHello        MessageType = 1
	TypeWelcome      MessageType = 2
	TypeAbort        MessageType = 3
	TypeGoodbye      MessageType = 6
	TypeError        MessageType = 8
	TypeSubscribe    MessageType = 32
	TypeSubscribed   MessageType = 33
	TypeUnsubscribe  MessageType = 34
	TypeUnsubscribed MessageType = 35
	TypeEvent        MessageType = 36
	TypeCall         MessageType = 48
	TypeResult       MessageType = 50
)

func (t MessageType) String() string {
	switch t {
	case TypeHello:
		return "HELLO"
	case TypeWelcome:
		return "WELCOME"
	case TypeAbort:
		return "ABORT"
	case TypeGoodbye:
		return "GOODBYE"
	case TypeError:
		return "ERROR"
	case TypeSubscribe:
		return "SUBSCRIBE"
	case TypeSubscribed:
		return "SUBSCRIBED"
	case TypeUnsubscribe:
		return "UNSUBSCRIBE"
	case TypeUnsubscribed:
		return "UNSUBSCRIBED"
	case TypeEvent:
		return "EVENT"
	case TypeCall:
		return "CALL"
	case TypeResult:
		return "RESULT"
	default:
		return "UNKNOWN"
	}
}

// Message is implemented by every WAMP message struct.
type Message interface {
	Type() MessageType
}

// Dict is a WAMP details/options dictionary.
type Dict map[string]any

// Hello opens a session: [HELLO, Realm, Details].
type Hello struct {
	Realm   string
	Details Dict
}

// Welcome acknowledges a session: [WELCOME, Session, Details].
type Welcome struct {
	Session ID
	Details Dict
}

// Abort rejects a session before it opens: [ABORT, Details, Reason].
type Abort struct {
	Details Dict
	Reason  string
}

// Goodbye closes an open session: [GOODBYE, Details, Reason].
type Goodbye struct {
	Details Dict
	Reason  string
}

// Error answers a failed request:
// [ERROR, RequestType, Request, Details, Error, Arguments, ArgumentsKw].
type Error struct {
	RequestType MessageType
	Request     ID
	Details     Dict
	Error       string
	Args        []json.RawMessage
	Kwargs      json.RawMessage
}

// Call invokes a procedure: [CALL, Request, Options, Procedure, Arguments, ArgumentsKw].
type Call struct {
	Request   ID
	Options   Dict
	Procedure string
	Args      []json.RawMessage
	Kwargs    json.RawMessage
}

// Result answers a call: [RESULT, Request, Details, Arguments, ArgumentsKw].
type Result struct {
	Request ID
	Details Dict
	Args    []json.RawMessage
	Kwargs  json.RawMessage
}

// Subscribe registers for a topic: [SUBSCRIBE, Request, Options, Topic].
type Subscribe struct {
	Request ID
	Options Dict
	Topic   string
}

// Subscribed acknowledges a subscription: [SUBSCRIBED, Request, Subscription].
type Subscribed struct {
	Request      ID
	Subscription ID
}

// Unsubscribe drops a subscription: [UNSUBSCRIBE, Request, Subscription].
type Unsubscribe struct {
	Request      ID
	Subscription ID
}

// Unsubscribed acknowledges an unsubscribe: [UNSUBSCRIBED, Request].
type Unsubscribed struct {
	Request ID
}

// Event delivers a publication:
// [EVENT, Subscription, Publication, Details, Arguments, ArgumentsKw].
type Event struct {
	Subscription ID
	Publication  ID
	Details      Dict
	Args         []json.RawMessage
	Kwargs       json.RawMessage
}

func (*Hello) Type() MessageType        { return TypeHello }
func (*Welcome) Type() MessageType      { return TypeWelcome }
func (*Abort) Type() MessageType        { return TypeAbort }
func (*Goodbye) Type() MessageType      { return TypeGoodbye }
func (*Error) Type() MessageType        { return TypeError }
func (*Call) Type() MessageType         { return TypeCall }
func (*Result) Type() MessageType       { return TypeResult }
func (*Subscribe) Type() MessageType    { return TypeSubscribe }
func (*Subscribed) Type() MessageType   { return TypeSubscribed }
func (*Unsubscribe) Type() MessageType  { return TypeUnsubscribe }
func (*Unsubscribed) Type() MessageType { return TypeUnsubscribed }
func (*Event) Type() MessageType        { return TypeEvent }
