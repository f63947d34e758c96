// Package ble abstracts the host Bluetooth Low Energy stack behind the small
// set of capabilities the bridge needs: scanning, connecting, resolving
// services and characteristics, write-without-response, notifications and
// connection-status observation. Concrete backends live alongside.
package ble

import (
	"context"
	"errors"
)

// BlueBird robots expose the Nordic UART service.
const (
	ServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	TXCharUUID  = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	RXCharUUID  = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

// ErrNotScanning is returned by a ScanSession stopped more than once.
var ErrNotScanning = errors.New("ble: not scanning")

// Advertisement is one received advertising report.
type Advertisement struct {
	ID   string // opaque platform identifier (MAC or CoreBluetooth UUID)
	Name string // advertised local name, may be empty
	RSSI int
}

// ConnectionStatus is the platform view of a link.
type ConnectionStatus int

const (
	StatusConnected ConnectionStatus = iota
	StatusDisconnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Observer receives asynchronous device events. Either callback may be nil.
type Observer struct {
	OnStatusChange func(ConnectionStatus)
	OnNameChange   func(name string)
}

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// UUID returns the lower-case dashed characteristic UUID.
	UUID() string
	// Write sends data without waiting for an acknowledgment.
	Write(data []byte) error
	// Subscribe enables notifications and registers the callback for them.
	Subscribe(callback func(data []byte)) error
}

// Service represents a resolved GATT service handle.
type Service interface {
	UUID() string
	// Open requests shared read/write access to the service.
	Open(ctx context.Context) error
	// Characteristics enumerates the characteristics of an opened service.
	Characteristics(ctx context.Context) ([]Characteristic, error)
	// Close releases the service handle.
	Close() error
}

// Device represents a connected peripheral.
type Device interface {
	// Name returns the platform name of the device.
	Name() string
	// Services resolves the services matching serviceUUID.
	Services(ctx context.Context, serviceUUID string) ([]Service, error)
	// Observe registers for status and name changes. The returned func
	// unregisters; calling it more than once is harmless.
	Observe(o Observer) (unregister func())
	// Close disconnects and releases the device handle.
	Close() error
}

// ScanSession is a running discovery session.
type ScanSession interface {
	Stop() error
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan starts discovery. handler is called for every advertisement,
	// on a backend goroutine, until the session is stopped.
	Scan(handler func(Advertisement)) (ScanSession, error)
	// Connect establishes a connection to the device with the given id.
	// It returns when ctx is done even if the platform call has not.
	Connect(ctx context.Context, id string) (Device, error)
}

// Unavailable returns an Adapter whose operations all fail with err. It
// stands in for a host adapter that could not be enabled.
func Unavailable(err error) Adapter {
	return unavailable{err: err}
}

type unavailable struct{ err error }

func (u unavailable) Enable() error { return u.err }

func (u unavailable) Scan(func(Advertisement)) (ScanSession, error) { return nil, u.err }

func (u unavailable) Connect(context.Context, string) (Device, error) { return nil, u.err }
