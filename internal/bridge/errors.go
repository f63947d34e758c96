package bridge

import (
	"errors"
	"fmt"

	"github.com/chaz8081/bluebird-bridge/internal/robot"
)

// Failure kinds surfaced to the host. Every error a Manager method returns
// has already been reported once and matches one of these with errors.Is.
var (
	ErrLookup    = errors.New("lookup error")
	ErrTransport = robot.ErrTransport
	ErrProtocol  = robot.ErrProtocol
	ErrTimeout   = robot.ErrTimeout
)

func lookupError(cause error, format string, args ...any) error {
	return &robot.Error{Kind: ErrLookup, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

func protocolError(cause error, format string, args ...any) error {
	return &robot.Error{Kind: ErrProtocol, Msg: fmt.Sprintf(format, args...), Cause: cause}
}
