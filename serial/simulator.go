package serial

import "sync"

// SimulatorDevice is an in-memory device. Bytes injected with Fill are
// handed to the listener immediately; nothing is ever registered with the
// event loop.
type SimulatorDevice struct {
	*deviceBase

	mu   sync.Mutex
	data []byte
}

var _ Device = (*SimulatorDevice)(nil)

// Open does nothing, a simulator has no handle to acquire.
func (d *SimulatorDevice) Open(bool) error { return nil }

// Close does nothing.
func (d *SimulatorDevice) Close() error { return nil }

// Send logs data and drops it.
func (d *SimulatorDevice) Send(data []byte) error {
	if len(data) > 0 {
		d.log.Debug().Str("data", SafeString(data)).Msg("simulator ignoring write")
	}
	return nil
}

// Receive returns the bytes stored by the last Fill, once.
func (d *SimulatorDevice) Receive() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.data
	d.data = nil
	return out
}

// Working is always false: the injected data is a one-shot message.
func (d *SimulatorDevice) Working() bool { return false }

// Fill stores data as if it had been received and runs the listener
// synchronously on the calling goroutine.
func (d *SimulatorDevice) Fill(data []byte) {
	d.mu.Lock()
	d.data = append(d.data, data...)
	d.mu.Unlock()

	if cb := d.callback(); cb != nil {
		cb()
	}
}
