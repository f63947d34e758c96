// Package robot drives one BlueBird robot from selection to a ready,
// streaming connection and back down again.
//
// A Robot moves through Selected, ServicesResolving, CharacteristicsBinding,
// HandshakePending and Ready. Close, link loss and failures all funnel into
// one teardown that releases every handle the Robot owns and notifies the
// Listener exactly once. Setup steps that find the Robot closing abandon
// without reporting anything.
package robot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/bluebird-bridge/internal/ble"
	"github.com/chaz8081/bluebird-bridge/internal/ble/protocol"
)

// ErrClosed is returned by Connect when the Robot was closed mid-setup.
var ErrClosed = errors.New("robot: closed")

// Options configures a Robot.
type Options struct {
	ServiceUUID    string
	TXUUID         string
	RXUUID         string
	ConnectTimeout time.Duration // bound on the platform connect call
	QueueSize      int           // max pending outbound writes
}

// DefaultOptions returns the UART service layout and the stock timeouts.
func DefaultOptions() Options {
	return Options{
		ServiceUUID:    ble.ServiceUUID,
		TXUUID:         ble.TXCharUUID,
		RXUUID:         ble.RXCharUUID,
		ConnectTimeout: 3 * time.Second,
		QueueSize:      64,
	}
}

// Listener receives lifecycle events. Calls come from backend and robot
// goroutines and must not block.
type Listener interface {
	// OnReady is called once the firmware handshake completes.
	OnReady(r *Robot)
	// OnNotification delivers a telemetry frame received while Ready.
	OnNotification(r *Robot, data []byte)
	// OnError reports a problem that leaves the connection up.
	OnError(r *Robot, err error)
	// OnClosed is called exactly once, after every handle is released.
	OnClosed(r *Robot, c Closure)
}

// Robot is the connection state machine for one device.
type Robot struct {
	id       string
	name     string
	session  string
	family   protocol.Family
	opts     Options
	listener Listener
	log      *slog.Logger

	// ctx is cancelled when teardown starts; every setup step checks it.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     State
	firmware  protocol.FirmwareVersion
	device    ble.Device
	services  []ble.Service
	tx        ble.Characteristic
	rx        ble.Characteristic
	unobserve func()
	queue     [][]byte
	wake      chan struct{}
}

// New creates a Robot in the Selected state for the device with the given
// platform id and advertised name.
func New(id, name string, opts Options, l Listener) *Robot {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultOptions().ConnectTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	session := uuid.NewString()
	family := protocol.FamilyOf(name)
	return &Robot{
		id:       id,
		name:     name,
		session:  session,
		family:   family,
		opts:     opts,
		listener: l,
		log:      slog.With("peripheral", name, "session", session, "family", family.String()),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    StateSelected,
		wake:     make(chan struct{}, 1),
	}
}

func (r *Robot) ID() string      { return r.id }
func (r *Robot) Name() string    { return r.name }
func (r *Robot) Session() string { return r.session }

// Done is closed once teardown has finished.
func (r *Robot) Done() <-chan struct{} { return r.done }

func (r *Robot) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Robot) Firmware() protocol.FirmwareVersion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firmware
}

// HasV2 reports whether the handshake found V2 firmware.
func (r *Robot) HasV2() bool {
	return r.Firmware() == protocol.FirmwareV2
}

// advance moves to next unless teardown has started.
func (r *Robot) advance(next State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.terminating() {
		return false
	}
	r.log.Debug("[BLE] state", "from", r.state.String(), "to", next.String())
	r.state = next
	return true
}

// Connect runs setup up to HandshakePending: connect, resolve the service,
// bind tx and rx, subscribe and send the firmware query. The handshake then
// completes asynchronously when the firmware answers. On failure the Robot
// is torn down and the error returned is the one passed to the Listener.
// If the Robot is closed meanwhile Connect returns ErrClosed.
func (r *Robot) Connect(adapter ble.Adapter) error {
	if !r.advance(StateServicesResolving) {
		return ErrClosed
	}

	r.log.Info("[BLE] connecting", "id", r.id)
	ctx, cancel := context.WithTimeout(r.ctx, r.opts.ConnectTimeout)
	dev, err := adapter.Connect(ctx, r.id)
	deadline := errors.Is(ctx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if r.ctx.Err() != nil {
			return ErrClosed
		}
		kind := ErrTransport
		if deadline {
			kind = ErrTimeout
		}
		return r.fail(newError(kind, err, "Device %s is unreachable.", r.name))
	}
	if !r.attachDevice(dev) {
		return ErrClosed
	}

	svcs, err := dev.Services(r.ctx, r.opts.ServiceUUID)
	if r.ctx.Err() != nil {
		return ErrClosed
	}
	if err != nil || len(svcs) == 0 {
		return r.fail(newError(ErrTransport, err, "Could not get services for device %s.", r.name))
	}
	if !r.attachServices(svcs) {
		return ErrClosed
	}
	if !r.advance(StateCharacteristicsBinding) {
		return ErrClosed
	}

	tx, rx, err := r.bind(svcs[0])
	if r.ctx.Err() != nil {
		return ErrClosed
	}
	if err != nil {
		return r.fail(err)
	}

	r.mu.Lock()
	if r.state.terminating() {
		r.mu.Unlock()
		return ErrClosed
	}
	r.tx, r.rx = tx, rx
	r.state = StateHandshakePending
	r.enqueueLocked(protocol.FirmwareQuery(r.name))
	r.mu.Unlock()

	go r.writeLoop(tx)
	r.log.Info("[BLE] characteristics bound, awaiting firmware version")
	return nil
}

func (r *Robot) attachDevice(dev ble.Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.terminating() {
		// Closed while the platform call was in flight: we still own dev.
		go dev.Close()
		return false
	}
	r.device = dev
	r.unobserve = dev.Observe(ble.Observer{
		OnStatusChange: r.onStatusChange,
		OnNameChange:   r.onNameChange,
	})
	return true
}

func (r *Robot) attachServices(svcs []ble.Service) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.terminating() {
		for _, s := range svcs {
			s.Close()
		}
		return false
	}
	r.services = svcs
	return true
}

// bind opens the service and finds tx and rx. It only succeeds with both
// bound and rx subscribed.
func (r *Robot) bind(svc ble.Service) (tx, rx ble.Characteristic, err error) {
	if err := svc.Open(r.ctx); err != nil {
		return nil, nil, newError(ErrTransport, err, "Error opening service for %s.", r.name)
	}
	chars, err := svc.Characteristics(r.ctx)
	if err != nil {
		return nil, nil, newError(ErrTransport, err, "Failed to get Characteristics for %s.", r.name)
	}
	for _, c := range chars {
		switch {
		case ble.SameUUID(c.UUID(), r.opts.TXUUID):
			tx = c
		case ble.SameUUID(c.UUID(), r.opts.RXUUID):
			if err := c.Subscribe(r.handleNotification); err != nil {
				r.log.Warn("[BLE] subscribe to rx failed", "error", err)
				continue
			}
			rx = c
		}
	}
	if tx == nil || rx == nil {
		return nil, nil, newError(ErrTransport, nil, "Failed to get rx and tx for %s.", r.name)
	}
	return tx, rx, nil
}

// Write queues data for the tx characteristic. Only a Ready robot accepts
// writes; delivery is fire-and-forget.
func (r *Robot) Write(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.state == StateReady:
		cp := make([]byte, len(data))
		copy(cp, data)
		r.enqueueLocked(cp)
		return nil
	case r.state.terminating():
		return newError(ErrTransport, ErrClosed, "Cannot write to %s, connection closed.", r.name)
	case r.tx == nil:
		return newError(ErrProtocol, nil, "Cannot write to %s, tx not set.", r.name)
	default:
		return newError(ErrProtocol, nil, "Cannot write to %s before the firmware handshake completes.", r.name)
	}
}

// enqueueLocked appends to the write queue, dropping the oldest entry when
// full. Caller must hold mu.
func (r *Robot) enqueueLocked(data []byte) {
	if len(r.queue) >= r.opts.QueueSize {
		r.log.Warn("[BLE] write queue full, dropping oldest write")
		r.queue = r.queue[1:]
	}
	r.queue = append(r.queue, data)
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Robot) dequeue() ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil, false
	}
	data := r.queue[0]
	r.queue[0] = nil
	r.queue = r.queue[1:]
	return data, true
}

// writeLoop is the only writer of tx, so writes keep their order.
func (r *Robot) writeLoop(tx ble.Characteristic) {
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.wake:
		}
		for {
			data, ok := r.dequeue()
			if !ok {
				break
			}
			if r.ctx.Err() != nil {
				return
			}
			if err := tx.Write(data); err != nil {
				r.fail(newError(ErrTransport, err, "Failed to write %s", protocol.FormatHex(data)))
				return
			}
		}
	}
}

func (r *Robot) handleNotification(buf []byte) {
	data := make([]byte, len(buf))
	copy(data, buf)

	r.mu.Lock()
	if r.state.terminating() || r.state < StateHandshakePending {
		r.mu.Unlock()
		return
	}

	if protocol.Classify(data) == protocol.FrameFirmware {
		if r.firmware != protocol.FirmwareUnknown {
			r.mu.Unlock()
			r.listener.OnError(r, newError(ErrProtocol, nil, "Cannot set firmware version for %s more than once!", r.name))
			return
		}
		r.firmware = protocol.ParseFirmware(data)
		poll, err := protocol.PollStart(r.firmware)
		if err == nil {
			r.enqueueLocked(poll)
		}
		r.state = StateReady
		fw := r.firmware
		r.mu.Unlock()

		r.log.Info("[BLE] connected", "firmware", fw.String())
		r.listener.OnReady(r)
		return
	}

	ready := r.state == StateReady
	r.mu.Unlock()
	if !ready {
		r.log.Debug("[BLE] dropping telemetry before handshake", "len", len(data))
		return
	}
	r.listener.OnNotification(r, data)
}

func (r *Robot) onStatusChange(s ble.ConnectionStatus) {
	if s != ble.StatusDisconnected {
		return
	}
	r.mu.Lock()
	ready := r.state == StateReady
	r.mu.Unlock()
	if ready {
		r.teardown(CloseDevice, nil)
		return
	}
	r.fail(newError(ErrTransport, nil, "Setup failed for %s. Disconnecting.", r.name))
}

func (r *Robot) onNameChange(name string) {
	if r.State().terminating() {
		return
	}
	r.listener.OnError(r, newError(ErrProtocol, nil, "Name changed to %s??", name))
}

// Close tears the connection down on behalf of the user. Closing an already
// closed Robot is a no-op.
func (r *Robot) Close() {
	r.teardown(CloseUser, nil)
}

func (r *Robot) fail(err error) error {
	r.teardown(CloseFailed, err)
	return err
}

// teardown is the only way out of the lifecycle. It runs once; later calls
// return immediately.
func (r *Robot) teardown(reason CloseReason, err error) {
	r.mu.Lock()
	if r.state.terminating() {
		r.mu.Unlock()
		return
	}
	c := Closure{
		Reason:   reason,
		Err:      err,
		WasReady: r.state == StateReady,
		HasV2:    r.firmware == protocol.FirmwareV2,
	}
	r.state = StateClosing
	r.cancel()
	device, services, unobserve := r.device, r.services, r.unobserve
	r.device, r.services, r.unobserve = nil, nil, nil
	r.tx, r.rx = nil, nil
	r.queue = nil
	r.mu.Unlock()

	if unobserve != nil {
		unobserve()
	}
	for _, s := range services {
		if err := s.Close(); err != nil {
			r.log.Warn("[BLE] close service failed", "error", err)
		}
	}
	if device != nil {
		if err := device.Close(); err != nil {
			r.log.Warn("[BLE] close device failed", "error", err)
		}
	}

	final := StateClosed
	if reason == CloseFailed {
		final = StateFailed
	}
	r.mu.Lock()
	r.state = final
	r.mu.Unlock()

	if err != nil {
		var re *Error
		if errors.As(err, &re) && re.Cause != nil {
			r.log.Warn("[BLE] connection failed", "error", err, "cause", re.Cause)
		} else {
			r.log.Warn("[BLE] connection failed", "error", err)
		}
	} else {
		r.log.Info("[BLE] disconnected", "reason", reason.String())
	}
	close(r.done)
	r.listener.OnClosed(r, c)
}
