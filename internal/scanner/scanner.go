// Package scanner owns the discovery session. Every named advertisement
// feeds the device registry; the ones that pass the signal window are
// reported to the host.
package scanner

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/bluebird-bridge/internal/ble"
	"github.com/chaz8081/bluebird-bridge/internal/registry"
)

// DiscoveryFunc receives each reportable sighting.
type DiscoveryFunc func(name string, rssi int)

// Scanner runs at most one scan session at a time.
type Scanner struct {
	adapter  ble.Adapter
	registry *registry.Registry
	signal   SignalConfig
	onFound  DiscoveryFunc
	now      func() time.Time

	opMu sync.Mutex // serializes Start and Stop

	mu      sync.Mutex
	session ble.ScanSession
	filter  *signalFilter
	gen     uint64
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// New creates a scanner that records into reg and reports through onFound.
func New(adapter ble.Adapter, reg *registry.Registry, signal SignalConfig, onFound DiscoveryFunc, opts ...Option) *Scanner {
	s := &Scanner{
		adapter:  adapter,
		registry: reg,
		signal:   signal,
		onFound:  onFound,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start clears the registry and begins a new session, replacing any
// session already running.
func (s *Scanner) Start() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.Clear()
	s.filter = newSignalFilter(s.signal)
	s.gen++
	gen := s.gen

	// The backend may call the handler before Scan returns; handle takes mu,
	// so it waits until the session is recorded.
	session, err := s.adapter.Scan(func(adv ble.Advertisement) {
		s.handle(gen, adv)
	})
	if err != nil {
		s.filter = nil
		return fmt.Errorf("scanner: start: %w", err)
	}
	s.session = session
	slog.Info("[SCAN] started")
	return nil
}

// Stop ends the running session. Stopping when idle is a no-op.
func (s *Scanner) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.stop()
}

func (s *Scanner) stop() {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.filter = nil
	// Advertisements already in flight are dropped by the generation check.
	s.gen++
	s.mu.Unlock()

	if session == nil {
		return
	}
	// Outside mu: backends wait for their callback goroutine to exit.
	if err := session.Stop(); err != nil {
		slog.Warn("[SCAN] stop failed", "error", err)
		return
	}
	slog.Info("[SCAN] stopped")
}

// Scanning reports whether a session is active.
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

func (s *Scanner) handle(gen uint64, adv ble.Advertisement) {
	if adv.Name == "" {
		return
	}

	s.mu.Lock()
	if gen != s.gen || s.filter == nil {
		s.mu.Unlock()
		return
	}
	s.registry.Observe(registry.Device{ID: adv.ID, Name: adv.Name, RSSI: adv.RSSI})
	report := s.filter.admit(adv.ID, adv.RSSI, s.now())
	s.mu.Unlock()

	if report && s.onFound != nil {
		s.onFound(adv.Name, adv.RSSI)
	}
}
