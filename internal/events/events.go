// Package events encodes everything the bridge tells the host process: one
// JSON object per line, tagged by packetType.
package events

import (
	"encoding/json"
	"io"
	"sync"
)

// Packet types.
const (
	TypeDiscovery      = "discovery"
	TypeConnection     = "connection"
	TypeNotification   = "notification"
	TypeBluetoothState = "bluetoothState"
	TypeError          = "ERROR"
	TypeDebug          = "DEBUG"
	TypePing           = "ping"
	TypeQuit           = "quit"
)

// Connection statuses.
const (
	StatusConnected          = "connected"
	StatusUserDisconnected   = "userDisconnected"
	StatusDeviceDisconnected = "deviceDisconnected"
)

// Adapter states.
const (
	AdapterOn          = "on"
	AdapterUnavailable = "unavailable"
)

// Quit reasons.
const (
	QuitCommand     = "quit command"
	QuitInputClosed = "input closed"
	QuitSignal      = "signal"
)

type discoveryPacket struct {
	PacketType string `json:"packetType"`
	Peripheral string `json:"peripheral"`
	RSSI       int    `json:"rssi"`
}

type connectionPacket struct {
	PacketType string `json:"packetType"`
	Status     string `json:"status"`
	Peripheral string `json:"peripheral"`
	HasV2      bool   `json:"hasV2"`
}

type notificationPacket struct {
	PacketType string `json:"packetType"`
	Peripheral string `json:"peripheral"`
	Data       string `json:"data"`
}

type statusPacket struct {
	PacketType string `json:"packetType"`
	Status     string `json:"status"`
}

type messagePacket struct {
	PacketType string `json:"packetType"`
	Message    string `json:"message"`
}

type quitPacket struct {
	PacketType string `json:"packetType"`
	Reason     string `json:"reason"`
}

type bare struct {
	PacketType string `json:"packetType"`
}

// Emitter writes packets to the host. It is safe for concurrent use; each
// packet is written with a single Write call so lines never interleave.
type Emitter struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewEmitter returns an Emitter writing to w.
func NewEmitter(w io.Writer) *Emitter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Emitter{enc: enc}
}

func (e *Emitter) emit(p any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Not logged: the debug log mirror writes through this emitter.
	if err := e.enc.Encode(p); err != nil && e.err == nil {
		e.err = err
	}
}

// Err returns the first write error, if any.
func (e *Emitter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Emitter) Discovery(name string, rssi int) {
	e.emit(discoveryPacket{TypeDiscovery, name, rssi})
}

func (e *Emitter) Connection(status, name string, hasV2 bool) {
	e.emit(connectionPacket{TypeConnection, status, name, hasV2})
}

// Notification reports a telemetry frame. data is already hex formatted.
func (e *Emitter) Notification(name, data string) {
	e.emit(notificationPacket{TypeNotification, name, data})
}

func (e *Emitter) BluetoothState(status string) {
	e.emit(statusPacket{TypeBluetoothState, status})
}

func (e *Emitter) Error(message string) {
	e.emit(messagePacket{TypeError, message})
}

func (e *Emitter) Debug(message string) {
	e.emit(messagePacket{TypeDebug, message})
}

func (e *Emitter) Ping() {
	e.emit(bare{TypePing})
}

func (e *Emitter) Quit(reason string) {
	e.emit(quitPacket{TypeQuit, reason})
}
