// Package bridge ties the registry, scanner and connection table together
// and implements every command the host can send. Each failure is reported
// to the host exactly once, as it happens.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/bluebird-bridge/internal/ble"
	"github.com/chaz8081/bluebird-bridge/internal/ble/protocol"
	"github.com/chaz8081/bluebird-bridge/internal/events"
	"github.com/chaz8081/bluebird-bridge/internal/registry"
	"github.com/chaz8081/bluebird-bridge/internal/robot"
	"github.com/chaz8081/bluebird-bridge/internal/scanner"
)

// Reporter is the outbound side of the host protocol.
type Reporter interface {
	Discovery(name string, rssi int)
	Connection(status, name string, hasV2 bool)
	Notification(name, data string)
	Error(message string)
	Ping()
}

// shutdownParallelism bounds concurrent teardowns on quit.
const shutdownParallelism = 8

// Options configures a Manager.
type Options struct {
	Robot  robot.Options
	Signal scanner.SignalConfig
}

// DefaultOptions returns the stock robot and scan settings.
func DefaultOptions() Options {
	return Options{
		Robot:  robot.DefaultOptions(),
		Signal: scanner.DefaultSignalConfig(),
	}
}

// Manager owns every robot connection of the process.
type Manager struct {
	adapter  ble.Adapter
	reporter Reporter
	opts     Options

	registry *registry.Registry
	scanner  *scanner.Scanner
	table    *Table

	// closed holds names whose connection ended during this process, so a
	// repeated disconnect is silent instead of an error.
	closed mapset.Set[string]

	connecting sync.WaitGroup

	mu       sync.Mutex
	shutdown bool
}

// NewManager creates a Manager on adapter. The adapter must already be
// enabled.
func NewManager(adapter ble.Adapter, reporter Reporter, opts Options, scanOpts ...scanner.Option) *Manager {
	m := &Manager{
		adapter:  adapter,
		reporter: reporter,
		opts:     opts,
		registry: registry.New(),
		table:    NewTable(),
		closed:   mapset.NewSet[string](),
	}
	m.scanner = scanner.New(adapter, m.registry, opts.Signal, reporter.Discovery, scanOpts...)
	return m
}

// Registry exposes the discovered-device registry.
func (m *Manager) Registry() *registry.Registry { return m.registry }

// Table exposes the connection table.
func (m *Manager) Table() *Table { return m.table }

func (m *Manager) report(err error) error {
	m.reporter.Error(err.Error())
	return err
}

// StartScan clears the registry and starts discovery.
func (m *Manager) StartScan() error {
	if err := m.scanner.Start(); err != nil {
		return m.report(&robot.Error{Kind: ErrTransport, Msg: fmt.Sprintf("Could not start scan: %v", err), Cause: err})
	}
	return nil
}

// StopScan stops discovery. It is a no-op when not scanning.
func (m *Manager) StopScan() {
	m.scanner.Stop()
}

// Connect resolves selector against the registry and starts connecting in
// the background. Progress is reported through the Reporter.
func (m *Manager) Connect(selector string) error {
	dev, err := m.registry.Resolve(selector)
	if err != nil {
		return m.report(lookupError(err, "%s", err.Error()))
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return m.report(lookupError(nil, "Cannot connect to %s while shutting down.", dev.Name))
	}
	r := robot.New(dev.ID, dev.Name, m.opts.Robot, m)
	if !m.table.Insert(dev.Name, r) {
		m.mu.Unlock()
		return m.report(lookupError(nil, "%s is already connected.", dev.Name))
	}
	m.closed.Remove(dev.Name)
	m.connecting.Add(1)
	m.mu.Unlock()

	slog.Info("[BRIDGE] connect", "peripheral", dev.Name, "family", protocol.FamilyOf(dev.Name).String(), "session", r.Session())
	go func() {
		defer m.connecting.Done()
		// Failures were already reported through OnClosed.
		if err := r.Connect(m.adapter); err != nil && !errors.Is(err, robot.ErrClosed) {
			slog.Debug("[BRIDGE] connect failed", "peripheral", dev.Name, "error", err)
		}
	}()
	return nil
}

// Disconnect closes the named connection. Disconnecting a name whose
// connection already ended is a no-op.
func (m *Manager) Disconnect(name string) error {
	r, ok := m.table.Remove(name)
	if !ok {
		if m.closed.Contains(name) {
			return nil
		}
		return m.report(lookupError(nil, "Could not find %s to disconnect", name))
	}
	m.closed.Add(name)
	r.Close()
	return nil
}

// SendBlob decodes payload and queues it for the named robot.
func (m *Manager) SendBlob(name, payload string) error {
	r, ok := m.table.Get(name)
	if !ok {
		return m.report(lookupError(nil, "Could not sendBlob to %s. Robot not found.", name))
	}
	data, err := protocol.DecodeBlob(payload)
	if err != nil {
		return m.report(protocolError(err, "Invalid blob for %s.", name))
	}
	if err := r.Write(data); err != nil {
		return m.report(err)
	}
	return nil
}

// Ping answers a host liveness check.
func (m *Manager) Ping() {
	m.reporter.Ping()
}

// Shutdown stops scanning and closes every connection, waiting for teardown
// and for in-flight connects to unwind, or for ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()

	m.scanner.Stop()

	robots := m.table.Drain()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(shutdownParallelism)
	for _, r := range robots {
		r := r
		g.Go(func() error {
			r.Close()
			select {
			case <-r.Done():
				return nil
			case <-gctx.Done():
				return fmt.Errorf("bridge: close %s: %w", r.Name(), gctx.Err())
			}
		})
	}
	g.Go(func() error {
		done := make(chan struct{})
		go func() {
			m.connecting.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-gctx.Done():
			return fmt.Errorf("bridge: wait for connects: %w", gctx.Err())
		}
	})
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("[BRIDGE] shut down", "closed", len(robots))
	return nil
}

func (m *Manager) OnReady(r *robot.Robot) {
	m.reporter.Connection(events.StatusConnected, r.Name(), r.HasV2())
}

func (m *Manager) OnNotification(r *robot.Robot, data []byte) {
	m.reporter.Notification(r.Name(), protocol.FormatHex(data))
}

func (m *Manager) OnError(r *robot.Robot, err error) {
	m.reporter.Error(err.Error())
}

func (m *Manager) OnClosed(r *robot.Robot, c robot.Closure) {
	m.table.RemoveIf(r.Name(), r)
	m.closed.Add(r.Name())

	switch c.Reason {
	case robot.CloseUser:
		m.reporter.Connection(events.StatusUserDisconnected, r.Name(), c.HasV2)
	case robot.CloseDevice:
		m.reporter.Connection(events.StatusDeviceDisconnected, r.Name(), c.HasV2)
	case robot.CloseFailed:
		if c.Err != nil {
			m.reporter.Error(c.Err.Error())
		}
		if c.WasReady {
			m.reporter.Connection(events.StatusDeviceDisconnected, r.Name(), c.HasV2)
		}
	}
}

var _ robot.Listener = (*Manager)(nil)
