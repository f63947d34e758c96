package robot

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error the robot reports wraps exactly one of them.
var (
	ErrTransport = errors.New("transport error")
	ErrProtocol  = errors.New("protocol violation")
	// ErrTimeout is a transport failure caused by a deadline.
	ErrTimeout = fmt.Errorf("timeout: %w", ErrTransport)
)

// Error is a failure reported to the host. Its message is host-facing; the
// underlying cause, when there is one, is kept for logs and errors.Is.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newError(kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}
