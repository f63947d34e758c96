//go:build linux

package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// HCIAdapter drives a local HCI controller directly through go-ble, without
// BlueZ. It needs CAP_NET_ADMIN (or root) and a controller that bluetoothd
// is not holding.
type HCIAdapter struct {
	deviceID int

	mu  sync.Mutex
	dev *linux.Device
}

// NewHCIAdapter creates an adapter bound to /dev/hci<deviceID>.
func NewHCIAdapter(deviceID int) (*HCIAdapter, error) {
	return &HCIAdapter{deviceID: deviceID}, nil
}

func (a *HCIAdapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev != nil {
		return nil
	}
	dev, err := linux.NewDevice(gble.OptDeviceID(a.deviceID))
	if err != nil {
		return fmt.Errorf("ble: open hci%d: %w", a.deviceID, err)
	}
	a.dev = dev
	return nil
}

func (a *HCIAdapter) device() (*linux.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev == nil {
		return nil, errors.New("ble: hci adapter not enabled")
	}
	return a.dev, nil
}

func (a *HCIAdapter) Scan(handler func(Advertisement)) (ScanSession, error) {
	dev, err := a.device()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &hciScan{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		// allowDup so that RSSI keeps flowing for devices already seen.
		err := dev.Scan(ctx, true, func(adv gble.Advertisement) {
			handler(Advertisement{
				ID:   adv.Addr().String(),
				Name: adv.LocalName(),
				RSSI: adv.RSSI(),
			})
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.err = err
		}
	}()

	if err := awaitScanStart(s.done, func() error { return s.err }, scanStartWait); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (a *HCIAdapter) Connect(ctx context.Context, id string) (Device, error) {
	dev, err := a.device()
	if err != nil {
		return nil, err
	}
	cln, err := dev.Dial(ctx, gble.NewAddr(id))
	if err != nil {
		return nil, fmt.Errorf("ble: connect to %s: %w", id, err)
	}
	d := &hciDevice{
		client:    cln,
		observers: make(map[int]Observer),
		closed:    make(chan struct{}),
	}
	go d.watch()
	return d, nil
}

// Compile-time check that HCIAdapter implements Adapter.
var _ Adapter = (*HCIAdapter)(nil)

type hciScan struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	once   sync.Once
}

func (s *hciScan) Stop() error {
	err := ErrNotScanning
	s.once.Do(func() {
		s.cancel()
		<-s.done
		err = s.err
	})
	return err
}

type hciDevice struct {
	client gble.Client

	mu        sync.Mutex
	observers map[int]Observer
	nextID    int

	closeOnce sync.Once
	closed    chan struct{}
}

// watch reports link loss that was not caused by Close.
func (d *hciDevice) watch() {
	select {
	case <-d.client.Disconnected():
	case <-d.closed:
		return
	}
	select {
	case <-d.closed:
		return
	default:
	}
	d.mu.Lock()
	obs := make([]Observer, 0, len(d.observers))
	for _, o := range d.observers {
		obs = append(obs, o)
	}
	d.mu.Unlock()
	for _, o := range obs {
		if o.OnStatusChange != nil {
			o.OnStatusChange(StatusDisconnected)
		}
	}
}

func (d *hciDevice) Name() string { return d.client.Name() }

func (d *hciDevice) Services(ctx context.Context, serviceUUID string) ([]Service, error) {
	want, err := gble.Parse(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	svcs, err := d.client.DiscoverServices([]gble.UUID{want})
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}
	out := make([]Service, 0, len(svcs))
	for _, s := range svcs {
		if !s.UUID.Equal(want) {
			continue
		}
		out = append(out, &hciService{client: d.client, svc: s})
	}
	return out, nil
}

func (d *hciDevice) Observe(o Observer) func() {
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

func (d *hciDevice) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.closed)
		err = d.client.CancelConnection()
	})
	return err
}

type hciService struct {
	client gble.Client
	svc    *gble.Service
}

func (s *hciService) UUID() string { return NormalizeUUID(s.svc.UUID.String()) }

// Open is a no-op: the HCI link has no per-service access model.
func (s *hciService) Open(ctx context.Context) error { return ctx.Err() }

func (s *hciService) Characteristics(ctx context.Context) ([]Characteristic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chars, err := s.client.DiscoverCharacteristics(nil, s.svc)
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	out := make([]Characteristic, 0, len(chars))
	for _, c := range chars {
		// Subscribe needs the CCCD, which only descriptor discovery fills in.
		if _, err := s.client.DiscoverDescriptors(nil, c); err != nil {
			return nil, fmt.Errorf("ble: discover descriptors: %w", err)
		}
		out = append(out, &hciCharacteristic{client: s.client, char: c})
	}
	return out, nil
}

func (s *hciService) Close() error { return nil }

type hciCharacteristic struct {
	client gble.Client
	char   *gble.Characteristic
}

func (c *hciCharacteristic) UUID() string { return NormalizeUUID(c.char.UUID.String()) }

func (c *hciCharacteristic) Write(data []byte) error {
	return c.client.WriteCharacteristic(c.char, data, true)
}

func (c *hciCharacteristic) Subscribe(cb func([]byte)) error {
	return c.client.Subscribe(c.char, false, func(req []byte) {
		cb(req)
	})
}
