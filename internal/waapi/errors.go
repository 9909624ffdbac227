package waapi

import (
	"errors"
	"fmt"

	"github.com/waapi-kit/waapi-kit/internal/wamp"
)

var (
	ErrNotConnected     = errors.New("waapi: not connected")
	ErrConnectionClosed = errors.New("waapi: connection closed")
	ErrProtocol         = errors.New("waapi: protocol violation")
)

// CallError is the uniform failure of Call and Subscribe. Remote is set when
// the router answered with an ERROR message; Err is set for local failures
// (no session, transport drop, cancelled wait).
type CallError struct {
	URI     string
	Message string
	Remote  *wamp.Error
	Err     error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("waapi: %s: %s", e.URI, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// ErrorURI returns the remote error URI, or "" for local failures.
func (e *CallError) ErrorURI() string {
	if e.Remote == nil {
		return ""
	}
	return e.Remote.Error
}

func remoteError(uri string, m *wamp.Error) *CallError {
	return &CallError{URI: uri, Message: m.Message(), Remote: m}
}

func localError(uri string, err error) *CallError {
	msg := err.Error()
	switch {
	case errors.Is(err, ErrNotConnected):
		msg = "not connected"
	case errors.Is(err, ErrConnectionClosed):
		msg = "connection closed"
	}
	return &CallError{URI: uri, Message: msg, Err: err}
}
