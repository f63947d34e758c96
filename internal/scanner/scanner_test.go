package scanner

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/bluebird-bridge/internal/ble"
	"github.com/chaz8081/bluebird-bridge/internal/ble/bletest"
	"github.com/chaz8081/bluebird-bridge/internal/registry"
)

type sighting struct {
	name string
	rssi int
}

type recorder struct {
	mu  sync.Mutex
	got []sighting
}

func (r *recorder) found(name string, rssi int) {
	r.mu.Lock()
	r.got = append(r.got, sighting{name, rssi})
	r.mu.Unlock()
}

func (r *recorder) all() []sighting {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sighting(nil), r.got...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestScanner() (*Scanner, *bletest.Adapter, *registry.Registry, *recorder, *fakeClock) {
	a := bletest.NewAdapter()
	reg := registry.New()
	rec := &recorder{}
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := New(a, reg, DefaultSignalConfig(), rec.found, WithClock(clk.Now))
	return s, a, reg, rec, clk
}

func TestStartReportsNamedAdvertisements(t *testing.T) {
	s, a, reg, rec, _ := newTestScanner()
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	a.Advertise(ble.Advertisement{ID: "1", Name: "BB123", RSSI: -50})
	a.Advertise(ble.Advertisement{ID: "2", Name: "", RSSI: -40})

	got := rec.all()
	if len(got) != 1 || got[0] != (sighting{"BB123", -50}) {
		t.Errorf("discoveries = %v, want [{BB123 -50}]", got)
	}
	if reg.Len() != 1 {
		t.Errorf("registry Len() = %d, want 1", reg.Len())
	}
}

func TestWeakDevicesRegisteredButNotReported(t *testing.T) {
	s, a, reg, rec, _ := newTestScanner()
	s.Start()
	a.Advertise(ble.Advertisement{ID: "1", Name: "FN1", RSSI: -85})
	if len(rec.all()) != 0 {
		t.Errorf("discoveries = %v, want none", rec.all())
	}
	if reg.Len() != 1 {
		t.Errorf("registry Len() = %d, want 1", reg.Len())
	}
}

func TestSamplingIntervalThrottlesReports(t *testing.T) {
	s, a, _, rec, clk := newTestScanner()
	s.Start()
	adv := ble.Advertisement{ID: "1", Name: "MB1", RSSI: -60}
	a.Advertise(adv)
	clk.Advance(500 * time.Millisecond)
	a.Advertise(adv)
	clk.Advance(2 * time.Second)
	a.Advertise(adv)
	if n := len(rec.all()); n != 2 {
		t.Errorf("discoveries = %d, want 2", n)
	}
}

func TestStartClearsRegistryAndRestarts(t *testing.T) {
	s, a, reg, _, _ := newTestScanner()
	s.Start()
	a.Advertise(ble.Advertisement{ID: "1", Name: "MB1", RSSI: -60})
	if err := s.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("registry Len() after restart = %d, want 0", reg.Len())
	}
	started, stopped := a.ScanCounts()
	if started != 2 || stopped != 1 {
		t.Errorf("ScanCounts() = (%d, %d), want (2, 1)", started, stopped)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s, a, _, rec, _ := newTestScanner()
	s.Stop() // before any Start
	s.Start()
	s.Stop()
	s.Stop()
	if s.Scanning() {
		t.Error("Scanning() = true after Stop")
	}
	_, stopped := a.ScanCounts()
	if stopped != 1 {
		t.Errorf("stopped sessions = %d, want 1", stopped)
	}
	a.Advertise(ble.Advertisement{ID: "1", Name: "MB1", RSSI: -60})
	if len(rec.all()) != 0 {
		t.Error("advertisement after Stop should be ignored")
	}
}

func TestStartError(t *testing.T) {
	s, a, _, _, _ := newTestScanner()
	a.FailScan(errors.New("radio off"))
	if err := s.Start(); err == nil {
		t.Fatal("Start() should fail when the adapter cannot scan")
	}
	if s.Scanning() {
		t.Error("Scanning() = true after failed Start")
	}
}
