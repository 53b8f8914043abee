package driver

import (
	"bytes"
	"context"
	"fmt"

	"github.com/Station-Manager/wmbus/frame"
	"github.com/Station-Manager/wmbus/serial"
	"github.com/Station-Manager/wmbus/telegram"
)

const (
	culBaudRate = serial.Baud38400
	culDeviceID = 0x11111111
)

// CULSupportedLinkModes lists what the CUL firmware can listen to, one at a time.
const CULSupportedLinkModes = LinkModeSet(1<<C1 | 1<<S1 | 1<<T1)

var culResponses = []string{"CMODE", "TMODE", "SMODE"}

// CUL drives a CUL stick running culfw, which reports telegrams as hex text
// lines.
type CUL struct {
	common

	// set while SetLinkModes waits for the mode confirmation; guarded by mu
	awaiting  bool
	responses chan string
}

var _ Bus = (*CUL)(nil)

// OpenCUL attaches a CUL driver to the tty at path, or to override when it
// is not nil.
func OpenCUL(m *serial.Manager, path string, h telegram.Handler, override serial.Device) (*CUL, error) {
	dev := override
	if dev == nil {
		dev = m.CreateTTY(path, culBaudRate.Int())
	}
	d := &CUL{
		common:    newCommon(m, dev, h, "cul"),
		responses: make(chan string, 1),
	}
	if err := d.attach(d.processSerialData); err != nil {
		return nil, err
	}
	return d, nil
}

// Type returns "cul".
func (d *CUL) Type() string { return "cul" }

// Ping reports whether the dongle is reachable. The CUL has no ping
// command, so it always is.
func (d *CUL) Ping() bool {
	d.log.Debug().Msg("ping")
	return true
}

// DeviceID returns the fixed id used for all CUL sticks.
func (d *CUL) DeviceID() uint32 { return culDeviceID }

// SupportedLinkModes returns C1, S1 and T1.
func (d *CUL) SupportedLinkModes() LinkModeSet { return CULSupportedLinkModes }

// CanSetLinkModes accepts exactly one supported mode.
func (d *CUL) CanSetLinkModes(lms LinkModeSet) bool {
	return lms.Count() == 1 && !lms.Has(Any) && CULSupportedLinkModes.Supports(lms)
}

// SetLinkModes switches the receiver to the single mode in lms and waits
// until the stick confirms it, the context ends, or the manager stops.
func (d *CUL) SetLinkModes(ctx context.Context, lms LinkModeSet) error {
	if !d.CanSetLinkModes(lms) {
		return fmt.Errorf("%w: cul listens to exactly one of c1, s1, t1, not %s", ErrLinkModeUnsupported, lms)
	}

	var cmd byte
	var want string
	switch {
	case lms.Has(C1):
		cmd, want = 'c', "CMODE"
	case lms.Has(S1):
		cmd, want = 's', "SMODE"
	default:
		cmd, want = 't', "TMODE"
	}

	if d.passive() {
		d.log.Debug().Str("linkmodes", lms.String()).Msg("passive input, not configuring dongle")
		d.storeLinkModes(lms)
		return nil
	}

	d.mu.Lock()
	d.awaiting = true
	select {
	case <-d.responses:
	default:
	}
	d.mu.Unlock()

	d.log.Info().Str("linkmode", string(cmd)).Msg("setting link mode")
	err := d.dev.Send([]byte{'b', 'r', cmd, '\n', '\r'})
	if err == nil {
		err = d.waitForResponse(ctx, want)
	}
	d.mu.Lock()
	d.awaiting = false
	d.mu.Unlock()
	if err != nil {
		return err
	}

	d.storeLinkModes(lms)

	// X01 starts the receiver; the stick does not answer it.
	if err := d.dev.Send([]byte("X01\n\r")); err != nil {
		return fmt.Errorf("starting receiver: %w", err)
	}
	return nil
}

func (d *CUL) waitForResponse(ctx context.Context, want string) error {
	select {
	case got := <-d.responses:
		d.log.Debug().Str("response", got).Msg("link mode confirmed")
		if got != want {
			return fmt.Errorf("%w: expected %s, got %s", ErrLinkModeRejected, want, got)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", want, ctx.Err())
	case <-d.manager.Done():
		return fmt.Errorf("waiting for %s: %w", want, ErrNoResponse)
	}
}

func (d *CUL) processSerialData() {
	data := d.dev.Receive()

	var payloads [][]byte
	d.mu.Lock()
	d.buf = append(d.buf, data...)
	consumed := 0
	for {
		rest := d.buf[consumed:]
		res := frame.CheckCUL(rest)
		if res.Status == frame.Partial {
			break
		}
		switch res.Status {
		case frame.Text:
			d.handleTextLocked(rest[:res.Length])
		case frame.Full:
			payload, err := frame.CULPayload(rest, res)
			if err != nil {
				d.log.Warn().Err(err).Str("line", serial.SafeString(rest[:res.Length])).Msg("damaged telegram")
			}
			// a line holding only the crc carries no telegram
			if len(payload) > 0 {
				payloads = append(payloads, payload)
			}
		}
		consumed += res.Length
	}
	d.compact(consumed)
	d.mu.Unlock()

	d.forward(payloads)
}

func (d *CUL) handleTextLocked(line []byte) {
	if !d.awaiting {
		d.log.Debug().Str("line", serial.SafeString(line)).Msg("ignoring text")
		return
	}
	for _, r := range culResponses {
		if bytes.Contains(line, []byte(r)) {
			select {
			case d.responses <- r:
			default:
			}
			return
		}
	}
}
