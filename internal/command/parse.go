// Package command reads host commands, one per line, and dispatches them.
package command

import (
	"errors"
	"strings"
)

// Kind identifies a host command.
type Kind int

const (
	StartScan Kind = iota
	StopScan
	Connect
	Disconnect
	SendBlob
	Ping
	Quit
)

func (k Kind) String() string {
	switch k {
	case StartScan:
		return "startScan"
	case StopScan:
		return "stopScan"
	case Connect:
		return "connect"
	case Disconnect:
		return "disconnect"
	case SendBlob:
		return "sendBlob"
	case Ping:
		return "ping"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// Command is one parsed input line.
type Command struct {
	Kind    Kind
	Name    string // connect selector, or target robot name
	Payload string // base64 blob for sendBlob
}

var (
	// ErrEmpty is returned for blank lines, which are ignored.
	ErrEmpty     = errors.New("command: empty line")
	ErrMalformed = errors.New("command: malformed")
	ErrUnknown   = errors.New("command: unknown")
)

// ParseError keeps the host-facing message for a rejected line.
type ParseError struct {
	Kind error
	msg  string
}

func (e *ParseError) Error() string { return e.msg }
func (e *ParseError) Unwrap() error { return e.Kind }

func malformed(verb, line string) error {
	return &ParseError{Kind: ErrMalformed, msg: "Malformed " + verb + " command " + line}
}

// Parse splits line on whitespace. Names may contain single spaces: for
// connect and disconnect every token after the verb is the name, and for
// sendBlob every token between the verb and the final payload.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrEmpty
	}
	verb, args := fields[0], fields[1:]

	switch verb {
	case "startScan":
		return Command{Kind: StartScan}, nil
	case "stopScan":
		return Command{Kind: StopScan}, nil
	case "ping":
		return Command{Kind: Ping}, nil
	case "quit":
		return Command{Kind: Quit}, nil
	case "connect":
		if len(args) < 1 {
			return Command{}, malformed(verb, line)
		}
		return Command{Kind: Connect, Name: strings.Join(args, " ")}, nil
	case "disconnect":
		if len(args) < 1 {
			return Command{}, malformed(verb, line)
		}
		return Command{Kind: Disconnect, Name: strings.Join(args, " ")}, nil
	case "sendBlob":
		if len(args) < 2 {
			return Command{}, malformed(verb, line)
		}
		last := len(args) - 1
		return Command{Kind: SendBlob, Name: strings.Join(args[:last], " "), Payload: args[last]}, nil
	default:
		return Command{}, &ParseError{Kind: ErrUnknown, msg: "Unhandled command: " + line}
	}
}
