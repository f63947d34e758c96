// Package registry holds devices seen while scanning and resolves the
// selectors the host uses to pick one.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// Device is a discovered, not yet connected peripheral.
type Device struct {
	ID   string
	Name string
	RSSI int
}

// Lookup failure kinds, matched with errors.Is.
var (
	ErrNoMatch    = errors.New("registry: no matching device")
	ErrAmbiguous  = errors.New("registry: ambiguous device name")
	ErrIndexRange = errors.New("registry: device index out of range")
	ErrBadIndex   = errors.New("registry: invalid device index")
)

// LookupError carries the host-facing message for a failed Resolve.
type LookupError struct {
	Selector string
	Kind     error
	msg      string
}

func (e *LookupError) Error() string { return e.msg }
func (e *LookupError) Unwrap() error { return e.Kind }

// Registry deduplicates sightings by id or by name. The first device seen
// under a name keeps it; a second device advertising the same name is
// ignored until the registry is cleared.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device // keyed by id
	ids     mapset.Set[string]
	names   mapset.Set[string]
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		ids:     mapset.NewThreadUnsafeSet[string](),
		names:   mapset.NewThreadUnsafeSet[string](),
	}
}

// Observe records a sighting. It reports whether the device is tracked
// after the call. Nameless sightings are dropped.
func (r *Registry) Observe(d Device) bool {
	if d.Name == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ids.Contains(d.ID) {
		r.devices[d.ID].RSSI = d.RSSI
		return true
	}
	if r.names.Contains(d.Name) {
		return false
	}
	r.ids.Add(d.ID)
	r.names.Add(d.Name)
	cp := d
	r.devices[d.ID] = &cp
	return true
}

// Clear forgets every device.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = make(map[string]*Device)
	r.ids.Clear()
	r.names.Clear()
}

// Len returns the number of tracked devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Devices returns a snapshot sorted by name, then id.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

func (r *Registry) sortedLocked() []Device {
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Resolve picks one device for selector. "#N" selects the N-th device
// (zero-based) of the name-sorted list. Anything else is a case-insensitive
// name prefix that must match exactly one device; when several match, a
// device whose whole name equals the selector wins.
func (r *Registry) Resolve(selector string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.sortedLocked()

	if rest, ok := strings.CutPrefix(selector, "#"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil {
			return Device{}, &LookupError{
				Selector: selector,
				Kind:     ErrBadIndex,
				msg:      fmt.Sprintf("Invalid device number %s", rest),
			}
		}
		if n < 0 || n >= len(list) {
			return Device{}, &LookupError{
				Selector: selector,
				Kind:     ErrIndexRange,
				msg:      fmt.Sprintf("Device number %d is not in device list range", n),
			}
		}
		return list[n], nil
	}

	want := strings.ToLower(selector)
	var matches []Device
	for _, d := range list {
		if strings.HasPrefix(strings.ToLower(d.Name), want) {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 0:
		return Device{}, &LookupError{
			Selector: selector,
			Kind:     ErrNoMatch,
			msg:      fmt.Sprintf("Can't connect to %s.", selector),
		}
	case 1:
		return matches[0], nil
	}
	return Device{}, &LookupError{
		Selector: selector,
		Kind:     ErrAmbiguous,
		msg:      fmt.Sprintf("Found multiple devices with names started from %s. Please provide an exact name.", selector),
	}
}
