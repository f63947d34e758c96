package scanner

import "time"

// SignalConfig is the received-signal-strength window applied to
// advertisements before they are reported.
type SignalConfig struct {
	InRangeRSSI       int           // at or above: device enters range
	OutOfRangeRSSI    int           // at or below: device starts leaving range
	OutOfRangeTimeout time.Duration // how long a weak signal must last to leave range
	SamplingInterval  time.Duration // minimum spacing of reports per device
}

// DefaultSignalConfig returns the thresholds the host application expects.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		InRangeRSSI:       -80,
		OutOfRangeRSSI:    -90,
		OutOfRangeTimeout: 5 * time.Second,
		SamplingInterval:  2 * time.Second,
	}
}

type signalState struct {
	inRange    bool
	weakSince  time.Time
	lastReport time.Time
	reported   bool
}

// signalFilter tracks per-device range state. It is not safe for
// concurrent use.
type signalFilter struct {
	cfg    SignalConfig
	states map[string]*signalState
}

func newSignalFilter(cfg SignalConfig) *signalFilter {
	return &signalFilter{cfg: cfg, states: make(map[string]*signalState)}
}

// admit feeds one sighting and reports whether it should be emitted.
func (f *signalFilter) admit(id string, rssi int, now time.Time) bool {
	st, ok := f.states[id]
	if !ok {
		st = &signalState{}
		f.states[id] = st
	}

	switch {
	case rssi >= f.cfg.InRangeRSSI:
		st.inRange = true
		st.weakSince = time.Time{}
	case rssi <= f.cfg.OutOfRangeRSSI:
		if !st.inRange {
			break
		}
		if st.weakSince.IsZero() {
			st.weakSince = now
		} else if now.Sub(st.weakSince) >= f.cfg.OutOfRangeTimeout {
			st.inRange = false
			st.weakSince = time.Time{}
			st.reported = false
		}
	default:
		// Between the thresholds: hysteresis band, range state holds.
		st.weakSince = time.Time{}
	}

	if !st.inRange {
		return false
	}
	if st.reported && now.Sub(st.lastReport) < f.cfg.SamplingInterval {
		return false
	}
	st.reported = true
	st.lastReport = now
	return true
}
