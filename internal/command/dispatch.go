package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// maxLineBytes bounds one input line; sendBlob payloads are the longest.
const maxLineBytes = 1 << 20

// Handler executes commands. Handlers report their own failures to the
// host; the returned errors are informational.
type Handler interface {
	StartScan() error
	StopScan()
	Connect(selector string) error
	Disconnect(name string) error
	SendBlob(name, payload string) error
	Ping()
}

// ErrorReporter receives parse failures.
type ErrorReporter interface {
	Error(message string)
}

// StopReason says why Run returned.
type StopReason int

const (
	StopQuit      StopReason = iota // quit command
	StopEOF                         // input closed
	StopCancelled                   // context done
)

// Dispatcher runs the sequential command loop.
type Dispatcher struct {
	handler  Handler
	reporter ErrorReporter
}

func NewDispatcher(h Handler, r ErrorReporter) *Dispatcher {
	return &Dispatcher{handler: h, reporter: r}
}

// Dispatch executes one command. It reports whether the command was quit.
func (d *Dispatcher) Dispatch(cmd Command) bool {
	var err error
	switch cmd.Kind {
	case StartScan:
		err = d.handler.StartScan()
	case StopScan:
		d.handler.StopScan()
	case Connect:
		err = d.handler.Connect(cmd.Name)
	case Disconnect:
		err = d.handler.Disconnect(cmd.Name)
	case SendBlob:
		err = d.handler.SendBlob(cmd.Name, cmd.Payload)
	case Ping:
		d.handler.Ping()
	case Quit:
		return true
	}
	if err != nil {
		slog.Debug("[CMD] command failed", "command", cmd.Kind.String(), "error", err)
	}
	return false
}

// HandleLine parses and dispatches one line, reporting parse failures.
func (d *Dispatcher) HandleLine(line string) bool {
	cmd, err := Parse(line)
	if errors.Is(err, ErrEmpty) {
		return false
	}
	if err != nil {
		d.reporter.Error(err.Error())
		return false
	}
	return d.Dispatch(cmd)
}

// Run reads lines from r until quit, end of input, or ctx is done. Lines
// are handled strictly one after another. A line longer than maxLineBytes
// is discarded and reported; reading continues with the next line.
func (d *Dispatcher) Run(ctx context.Context, r io.Reader) (StopReason, error) {
	type result struct {
		line    string
		tooLong bool
	}
	lines := make(chan result)
	readErr := make(chan error, 1)
	go func() {
		br := bufio.NewReader(r)
		for {
			line, tooLong, err := readLine(br, maxLineBytes)
			if line != "" || tooLong {
				select {
				case lines <- result{line, tooLong}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return StopCancelled, nil
		case err := <-readErr:
			if err != nil {
				return StopEOF, fmt.Errorf("command: read input: %w", err)
			}
			return StopEOF, nil
		case res := <-lines:
			if res.tooLong {
				d.reporter.Error(fmt.Sprintf("Malformed command %s... (longer than %d bytes)", head(res.line), maxLineBytes))
				continue
			}
			if d.HandleLine(res.line) {
				return StopQuit, nil
			}
		}
	}
}

// readLine returns the next line without its terminator. Bytes past limit
// are read and dropped, and tooLong is set. err is non-nil only at the end
// of input, possibly together with a final unterminated line.
func readLine(br *bufio.Reader, limit int) (line string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			buf = append(buf, chunk...)
			n := len(bytes.TrimSuffix(buf, []byte{'\n'}))
			if n > limit {
				buf = buf[:limit]
				tooLong = true
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		buf = bytes.TrimSuffix(buf, []byte{'\n'})
		buf = bytes.TrimSuffix(buf, []byte{'\r'})
		return string(buf), tooLong, err
	}
}

// head shortens a discarded line for the error message.
func head(line string) string {
	const n = 32
	if len(line) <= n {
		return line
	}
	return line[:n]
}
