package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter wraps tinygo-org/bluetooth. It runs on macOS (CoreBluetooth),
// Windows (WinRT) and Linux (BlueZ over D-Bus). Device ids are whatever
// bluetooth.Address.String() yields on the host: a MAC on Linux and Windows,
// a CoreBluetooth UUID on macOS.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects seen and devices.
	mu      sync.Mutex
	seen    map[string]bluetooth.ScanResult // last advertisement per id
	devices map[string]*tinyGoDevice        // open connections keyed by id
}

// NewTinyGoAdapter creates a new BLE adapter on the default host adapter.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter: bluetooth.DefaultAdapter,
		seen:    make(map[string]bluetooth.ScanResult),
		devices: make(map[string]*tinyGoDevice),
	}
}

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// tinygo/bluetooth reports link loss only through the adapter-level
	// connect handler, so route it to the matching device.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		id := device.Address.String()
		a.mu.Lock()
		d, ok := a.devices[id]
		a.mu.Unlock()
		if !ok {
			return
		}
		if connected {
			d.notifyStatus(StatusConnected)
			return
		}
		d.notifyStatus(StatusDisconnected)
	})

	return nil
}

func (a *TinyGoAdapter) Scan(handler func(Advertisement)) (ScanSession, error) {
	s := &tinyGoScan{adapter: a.adapter, done: make(chan struct{})}

	// Scan blocks until StopScan, so it gets its own goroutine.
	go func() {
		defer close(s.done)
		s.err = a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			id := result.Address.String()
			a.mu.Lock()
			a.seen[id] = result
			a.mu.Unlock()
			handler(Advertisement{
				ID:   id,
				Name: result.LocalName(),
				RSSI: int(result.RSSI),
			})
		})
		if s.err != nil {
			slog.Error("[BLE] scan ended with error", "error", s.err)
		}
	}()

	if err := awaitScanStart(s.done, func() error { return s.err }, scanStartWait); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *TinyGoAdapter) Connect(ctx context.Context, id string) (Device, error) {
	a.mu.Lock()
	result, ok := a.seen[id]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("ble: connect to %s: device was never advertised", id)
	}

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	// We wrap it to also respect our ctx cancellation.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		// The platform call cannot be cancelled. Drop its result when it lands.
		go func() {
			if r := <-ch; r.err == nil {
				r.device.Disconnect()
			}
		}()
		return nil, fmt.Errorf("ble: connect to %s: %w", id, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", id, r.err)
		}
		d := &tinyGoDevice{
			adapter:   a,
			id:        id,
			name:      result.LocalName(),
			device:    r.device,
			observers: make(map[int]Observer),
		}
		a.mu.Lock()
		a.devices[id] = d
		a.mu.Unlock()
		return d, nil
	}
}

func (a *TinyGoAdapter) forget(id string, d *tinyGoDevice) {
	a.mu.Lock()
	if a.devices[id] == d {
		delete(a.devices, id)
	}
	a.mu.Unlock()
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

const stopScanWait = 2 * time.Second

type tinyGoScan struct {
	adapter *bluetooth.Adapter
	done    chan struct{}
	err     error // set before done is closed
	once    sync.Once
}

func (s *tinyGoScan) Stop() error {
	err := ErrNotScanning
	s.once.Do(func() {
		err = s.adapter.StopScan()
		select {
		case <-s.done:
		case <-time.After(stopScanWait):
			slog.Warn("[BLE] scan goroutine did not exit after StopScan")
		}
	})
	return err
}

type tinyGoDevice struct {
	adapter *TinyGoAdapter
	id      string
	name    string
	device  bluetooth.Device

	// mu protects observers and nextID.
	mu        sync.Mutex
	observers map[int]Observer
	nextID    int
	closeOnce sync.Once
}

func (d *tinyGoDevice) Name() string { return d.name }

func (d *tinyGoDevice) Services(ctx context.Context, serviceUUID string) ([]Service, error) {
	uuid, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	svcs, err := d.device.DiscoverServices([]bluetooth.UUID{uuid})
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}
	out := make([]Service, 0, len(svcs))
	for i := range svcs {
		out = append(out, &tinyGoService{svc: svcs[i]})
	}
	return out, nil
}

func (d *tinyGoDevice) Observe(o Observer) func() {
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

func (d *tinyGoDevice) notifyStatus(s ConnectionStatus) {
	d.mu.Lock()
	obs := make([]Observer, 0, len(d.observers))
	for _, o := range d.observers {
		obs = append(obs, o)
	}
	d.mu.Unlock()
	for _, o := range obs {
		if o.OnStatusChange != nil {
			o.OnStatusChange(s)
		}
	}
}

func (d *tinyGoDevice) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.adapter.forget(d.id, d)
		err = d.device.Disconnect()
	})
	return err
}

type tinyGoService struct {
	svc bluetooth.DeviceService
}

func (s *tinyGoService) UUID() string { return s.svc.UUID().String() }

// Open is a no-op: tinygo/bluetooth grants access at discovery time.
func (s *tinyGoService) Open(ctx context.Context) error { return ctx.Err() }

func (s *tinyGoService) Characteristics(ctx context.Context) ([]Characteristic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chars, err := s.svc.DiscoverCharacteristics(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	out := make([]Characteristic, 0, len(chars))
	for i := range chars {
		out = append(out, &tinyGoCharacteristic{char: chars[i]})
	}
	return out, nil
}

func (s *tinyGoService) Close() error { return nil }

type tinyGoCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *tinyGoCharacteristic) UUID() string { return c.char.UUID().String() }

func (c *tinyGoCharacteristic) Write(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}

func (c *tinyGoCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		cb(buf)
	})
}
