package driver

import (
	"context"

	"github.com/Station-Manager/wmbus/frame"
	"github.com/Station-Manager/wmbus/serial"
	"github.com/Station-Manager/wmbus/telegram"
)

// RawTTY drives a receiver that writes bare binary telegrams,
// <len><0x44><payload...>, with no framing around them.
type RawTTY struct {
	common
}

var _ Bus = (*RawTTY)(nil)

// OpenRawTTY attaches a rawtty driver to the tty at path, or to override
// when it is not nil.
func OpenRawTTY(m *serial.Manager, path string, baudRate int, h telegram.Handler, override serial.Device) (*RawTTY, error) {
	dev := override
	if dev == nil {
		dev = m.CreateTTY(path, baudRate)
	}
	d := &RawTTY{common: newCommon(m, dev, h, "rawtty")}
	if err := d.attach(d.processSerialData); err != nil {
		return nil, err
	}
	return d, nil
}

// Type returns "rawtty".
func (d *RawTTY) Type() string { return "rawtty" }

// Ping always succeeds, a raw receiver cannot be queried.
func (d *RawTTY) Ping() bool { return true }

// DeviceID returns 0, raw receivers have no id.
func (d *RawTTY) DeviceID() uint32 { return 0 }

// SupportedLinkModes returns Any: the receiver listens to whatever it was
// set up for.
func (d *RawTTY) SupportedLinkModes() LinkModeSet { return NewLinkModeSet(Any) }

// CanSetLinkModes is always true: the receiver is configured out of band.
func (d *RawTTY) CanSetLinkModes(LinkModeSet) bool { return true }

// SetLinkModes only records lms.
func (d *RawTTY) SetLinkModes(_ context.Context, lms LinkModeSet) error {
	d.storeLinkModes(lms)
	return nil
}

func (d *RawTTY) processSerialData() {
	data := d.dev.Receive()

	var payloads [][]byte
	d.mu.Lock()
	d.buf = append(d.buf, data...)
	consumed := 0
	for {
		res, _ := frame.CheckRawTTY(d.buf[consumed:])
		if res.Status == frame.Partial {
			break
		}
		if res.Status == frame.Error {
			d.log.Info().Msg("no sensible telegram found, clearing buffer")
			d.log.Debug().Hex("buffer", d.buf[consumed:]).Msg("protocol error")
			d.buf = d.buf[:0]
			consumed = 0
			break
		}
		if res.Skipped > 0 {
			d.log.Info().Int("skipped", res.Skipped).Msg("out of sync, skipping bytes")
		}
		// zero length headers are consumed without a telegram
		if p := frame.RawTTYPayload(d.buf[consumed:], res); len(p) > 0 {
			payloads = append(payloads, p)
		}
		consumed += res.Length
	}
	d.compact(consumed)
	d.mu.Unlock()

	d.forward(payloads)
}
