package wamp

import (
	"encoding/json"
	"strings"
)

// Close and error reasons from the WAMP basic profile.
const (
	CloseNormal         = "wamp.close.normal"
	CloseGoodbyeAndOut  = "wamp.close.goodbye_and_out"
	CloseSystemShutdown = "wamp.close.system_shutdown"

	ErrNoSuchRealm        = "wamp.error.no_such_realm"
	ErrNoSuchProcedure    = "wamp.error.no_such_procedure"
	ErrNoSuchSubscription = "wamp.error.no_such_subscription"
	ErrInvalidArgument    = "wamp.error.invalid_argument"
	ErrProtocolViolation  = "wamp.error.protocol_violation"
)

// IsCleanClose reports whether a GOODBYE or ABORT reason marks an orderly,
// requested shutdown rather than a failure.
func IsCleanClose(reason string) bool {
	return reason == CloseNormal || reason == CloseGoodbyeAndOut
}

// Message extracts a human-readable description from a remote error. The
// router is not consistent about where it puts one, so the positional
// arguments are tried first, then the keyword "message", the error URI, and a
// "message" entry in the details before giving up.
func (e *Error) Message() string {
	if len(e.Args) > 0 {
		if msg := messageFrom(e.Args[0]); msg != "" {
			return msg
		}
	}
	if msg := messageFrom(e.Kwargs); msg != "" {
		return msg
	}
	if e.Error != "" {
		return e.Error
	}
	if msg, ok := e.Details["message"].(string); ok && strings.TrimSpace(msg) != "" {
		return msg
	}
	return "Unknown error"
}

// messageFrom accepts either a bare JSON string or an object with a string
// "message" member.
func messageFrom(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Message)
	}
	return ""
}
