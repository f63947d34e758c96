package ble

import (
	"errors"
	"fmt"
	"time"
)

// scanStartWait is how long a backend waits for a refused scan to come
// back before treating the session as running.
const scanStartWait = 100 * time.Millisecond

// awaitScanStart waits up to wait for a scan goroutine that exits at once,
// as platforms do when already scanning or powered off. done is closed when
// the goroutine exits; scanErr is read only after that.
func awaitScanStart(done <-chan struct{}, scanErr func() error, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-done:
		if err := scanErr(); err != nil {
			return fmt.Errorf("ble: start scan: %w", err)
		}
		return errors.New("ble: start scan: scan ended immediately")
	case <-timer.C:
		return nil
	}
}
