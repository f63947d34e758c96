//go:build !linux

package ble

import (
	"context"
	"errors"
)

var errHCIUnsupported = errors.New("ble: hci backend is only available on linux")

// HCIAdapter is unavailable off Linux; use the tinygo backend instead.
type HCIAdapter struct{}

// NewHCIAdapter always fails on this platform.
func NewHCIAdapter(deviceID int) (*HCIAdapter, error) {
	return nil, errHCIUnsupported
}

func (a *HCIAdapter) Enable() error { return errHCIUnsupported }

func (a *HCIAdapter) Scan(handler func(Advertisement)) (ScanSession, error) {
	return nil, errHCIUnsupported
}

func (a *HCIAdapter) Connect(ctx context.Context, id string) (Device, error) {
	return nil, errHCIUnsupported
}

var _ Adapter = (*HCIAdapter)(nil)
