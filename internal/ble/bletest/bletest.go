// Package bletest provides in-memory fakes of the ble capability interfaces
// for tests in other packages.
package bletest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chaz8081/bluebird-bridge/internal/ble"
)

// Characteristic records writes and allows subscribing.
type Characteristic struct {
	uuid string

	mu           sync.Mutex
	writes       [][]byte
	callback     func([]byte)
	writeErr     error
	subscribeErr error
	written      chan struct{}
}

// NewCharacteristic creates a fake characteristic with the given UUID.
func NewCharacteristic(uuid string) *Characteristic {
	return &Characteristic{uuid: uuid, written: make(chan struct{}, 64)}
}

func (c *Characteristic) UUID() string { return c.uuid }

func (c *Characteristic) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	select {
	case c.written <- struct{}{}:
	default:
	}
	return nil
}

func (c *Characteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.callback = cb
	return nil
}

// FailWrites makes every later Write return err.
func (c *Characteristic) FailWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

// FailSubscribe makes Subscribe return err.
func (c *Characteristic) FailSubscribe(err error) {
	c.mu.Lock()
	c.subscribeErr = err
	c.mu.Unlock()
}

// Subscribed reports whether a notification callback is registered.
func (c *Characteristic) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callback != nil
}

// Writes returns a copy of every payload written so far.
func (c *Characteristic) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// WaitWrites blocks until at least n writes were recorded or ctx is done.
func (c *Characteristic) WaitWrites(ctx context.Context, n int) ([][]byte, error) {
	for {
		if w := c.Writes(); len(w) >= n {
			return w, nil
		}
		select {
		case <-c.written:
		case <-ctx.Done():
			return c.Writes(), fmt.Errorf("bletest: waiting for %d writes: %w", n, ctx.Err())
		}
	}
}

// Notify delivers data to the subscriber, if any.
func (c *Characteristic) Notify(data []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

// Service is a fake GATT service.
type Service struct {
	uuid  string
	chars []ble.Characteristic

	mu       sync.Mutex
	openErr  error
	charsErr error
	closed   bool
}

// NewService creates a fake service holding chars.
func NewService(uuid string, chars ...ble.Characteristic) *Service {
	return &Service{uuid: uuid, chars: chars}
}

func (s *Service) UUID() string { return s.uuid }

func (s *Service) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openErr
}

func (s *Service) Characteristics(ctx context.Context) ([]ble.Characteristic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.charsErr != nil {
		return nil, s.charsErr
	}
	return s.chars, nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// FailOpen makes Open return err.
func (s *Service) FailOpen(err error) {
	s.mu.Lock()
	s.openErr = err
	s.mu.Unlock()
}

// FailCharacteristics makes Characteristics return err.
func (s *Service) FailCharacteristics(err error) {
	s.mu.Lock()
	s.charsErr = err
	s.mu.Unlock()
}

// Closed reports whether Close was called.
func (s *Service) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Device is a fake connected peripheral.
type Device struct {
	name string

	mu          sync.Mutex
	services    []ble.Service
	servicesErr error
	gate        chan struct{}
	observers   map[int]ble.Observer
	nextID      int
	closes      int
}

// NewDevice creates a fake device exposing services.
func NewDevice(name string, services ...ble.Service) *Device {
	return &Device{
		name:      name,
		services:  services,
		observers: make(map[int]ble.Observer),
	}
}

// Robot is a fake robot with the UART service wired up.
type Robot struct {
	*Device
	Service *Service
	TX      *Characteristic
	RX      *Characteristic
}

// NewRobot builds a fake robot exposing tx and rx on the UART service.
func NewRobot(name string) *Robot {
	tx := NewCharacteristic(ble.TXCharUUID)
	rx := NewCharacteristic(ble.RXCharUUID)
	svc := NewService(ble.ServiceUUID, tx, rx)
	return &Robot{Device: NewDevice(name, svc), Service: svc, TX: tx, RX: rx}
}

func (d *Device) Name() string { return d.name }

func (d *Device) Services(ctx context.Context, serviceUUID string) ([]ble.Service, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.servicesErr != nil {
		return nil, d.servicesErr
	}
	var out []ble.Service
	for _, s := range d.services {
		if ble.SameUUID(s.UUID(), serviceUUID) {
			out = append(out, s)
		}
	}
	return out, nil
}

// FailServices makes Services return err.
func (d *Device) FailServices(err error) {
	d.mu.Lock()
	d.servicesErr = err
	d.mu.Unlock()
}

// HoldServices makes Services block until the returned func is called.
func (d *Device) HoldServices() (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (d *Device) Observe(o ble.Observer) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.observers[id] = o
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
	}
}

func (d *Device) observerList() []ble.Observer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ble.Observer, 0, len(d.observers))
	for _, o := range d.observers {
		out = append(out, o)
	}
	return out
}

// Observers returns the number of registered observers.
func (d *Device) Observers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.observers)
}

// SimulateDisconnect reports link loss to every observer.
func (d *Device) SimulateDisconnect() {
	for _, o := range d.observerList() {
		if o.OnStatusChange != nil {
			o.OnStatusChange(ble.StatusDisconnected)
		}
	}
}

// SimulateNameChange reports a platform name change to every observer.
func (d *Device) SimulateNameChange(name string) {
	for _, o := range d.observerList() {
		if o.OnNameChange != nil {
			o.OnNameChange(name)
		}
	}
}

func (d *Device) Close() error {
	d.mu.Lock()
	d.closes++
	d.mu.Unlock()
	return nil
}

// Closes returns how many times Close was called.
func (d *Device) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// ErrUnknownDevice is returned by Adapter.Connect for ids with no device.
var ErrUnknownDevice = errors.New("bletest: unknown device")

// Adapter simulates the BLE adapter.
type Adapter struct {
	mu         sync.Mutex
	enableErr  error
	scanErr    error
	devices    map[string]ble.Device
	handler    func(ble.Advertisement)
	scans      int
	stops      int
	connects   []string
	connectErr error
	hold       chan struct{}
}

// NewAdapter creates an empty fake adapter.
func NewAdapter() *Adapter {
	return &Adapter{devices: make(map[string]ble.Device)}
}

// AddDevice makes id connectable.
func (a *Adapter) AddDevice(id string, d ble.Device) {
	a.mu.Lock()
	a.devices[id] = d
	a.mu.Unlock()
}

// FailEnable makes Enable return err.
func (a *Adapter) FailEnable(err error) {
	a.mu.Lock()
	a.enableErr = err
	a.mu.Unlock()
}

// FailScan makes Scan return err.
func (a *Adapter) FailScan(err error) {
	a.mu.Lock()
	a.scanErr = err
	a.mu.Unlock()
}

// FailConnect makes every Connect return err.
func (a *Adapter) FailConnect(err error) {
	a.mu.Lock()
	a.connectErr = err
	a.mu.Unlock()
}

// HoldConnect makes Connect block until the returned func is called or the
// caller's context ends.
func (a *Adapter) HoldConnect() (release func()) {
	gate := make(chan struct{})
	a.mu.Lock()
	a.hold = gate
	a.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (a *Adapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enableErr
}

func (a *Adapter) Scan(handler func(ble.Advertisement)) (ble.ScanSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scanErr != nil {
		return nil, a.scanErr
	}
	if a.handler != nil {
		return nil, errors.New("bletest: already scanning")
	}
	a.handler = handler
	a.scans++
	return &scanSession{adapter: a}, nil
}

// Advertise delivers adv to the running scan, if any.
func (a *Adapter) Advertise(adv ble.Advertisement) {
	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()
	if h != nil {
		h(adv)
	}
}

// Scanning reports whether a scan session is active.
func (a *Adapter) Scanning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handler != nil
}

// ScanCounts returns how many sessions were started and stopped.
func (a *Adapter) ScanCounts() (started, stopped int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scans, a.stops
}

func (a *Adapter) Connect(ctx context.Context, id string) (ble.Device, error) {
	a.mu.Lock()
	a.connects = append(a.connects, id)
	hold := a.hold
	a.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, fmt.Errorf("bletest: connect to %s: %w", id, ctx.Err())
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connectErr != nil {
		return nil, a.connectErr
	}
	d, ok := a.devices[id]
	if !ok {
		return nil, fmt.Errorf("bletest: connect to %s: %w", id, ErrUnknownDevice)
	}
	return d, nil
}

// Connects returns the ids passed to Connect, in order.
func (a *Adapter) Connects() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.connects))
	copy(out, a.connects)
	return out
}

type scanSession struct {
	adapter *Adapter
	once    sync.Once
}

func (s *scanSession) Stop() error {
	err := ble.ErrNotScanning
	s.once.Do(func() {
		s.adapter.mu.Lock()
		s.adapter.handler = nil
		s.adapter.stops++
		s.adapter.mu.Unlock()
		err = nil
	})
	return err
}
