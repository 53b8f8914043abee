// Package driver implements the wM-Bus dongle protocols on top of the serial
// device manager. A driver owns one device, decodes what it receives and
// hands every complete telegram to a telegram.Handler.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Station-Manager/wmbus/serial"
	"github.com/Station-Manager/wmbus/telegram"
	"github.com/rs/zerolog"
)

var (
	ErrLinkModeUnsupported = errors.New("driver: link mode not supported")
	ErrLinkModeRejected    = errors.New("driver: dongle rejected link mode")
	ErrNoResponse          = errors.New("driver: no response from dongle")
)

// Bus is the surface shared by every dongle driver.
type Bus interface {
	Type() string
	Device() serial.Device
	Ping() bool
	DeviceID() uint32
	LinkModes() LinkModeSet
	SetLinkModes(ctx context.Context, lms LinkModeSet) error
	SupportedLinkModes() LinkModeSet
	CanSetLinkModes(lms LinkModeSet) bool
	// Simulate feeds data through the driver as if the dongle had sent it.
	// Only drivers on a simulator device accept it.
	Simulate(data []byte) error
	Close() error
}

// common holds what the drivers share: the device, the accumulation buffer
// and the configured link modes.
type common struct {
	manager *serial.Manager
	dev     serial.Device
	handler telegram.Handler
	log     zerolog.Logger

	mu        sync.Mutex
	buf       []byte
	linkModes LinkModeSet
}

func newCommon(m *serial.Manager, dev serial.Device, h telegram.Handler, kind string) common {
	if h == nil {
		h = telegram.Discard
	}
	return common{
		manager: m,
		dev:     dev,
		handler: h,
		log:     m.Logger().With().Str("driver", kind).Str("device", dev.Name()).Logger(),
	}
}

// attach registers cb and opens the device, failing hard.
func (c *common) attach(cb func()) error {
	if err := c.manager.ListenTo(c.dev, cb); err != nil {
		return err
	}
	if err := c.dev.Open(true); err != nil {
		return fmt.Errorf("opening %s: %w", c.dev.Name(), err)
	}
	return nil
}

// Device returns the serial device the driver reads from.
func (c *common) Device() serial.Device { return c.dev }

// LinkModes returns the link modes last configured.
func (c *common) LinkModes() LinkModeSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.linkModes
}

func (c *common) storeLinkModes(lms LinkModeSet) {
	c.mu.Lock()
	c.linkModes = lms
	c.mu.Unlock()
}

// Simulate feeds data to the driver as if the dongle had sent it. It only
// works for drivers opened on a simulator device.
func (c *common) Simulate(data []byte) error {
	sim, ok := c.dev.(*serial.SimulatorDevice)
	if !ok {
		return fmt.Errorf("simulate on %s: %w", c.dev.Name(), serial.ErrNotSimulator)
	}
	sim.Fill(data)
	return nil
}

// Close closes the underlying device.
func (c *common) Close() error {
	return c.dev.Close()
}

// compact moves the unconsumed tail of the buffer to its start.
func (c *common) compact(consumed int) {
	n := copy(c.buf, c.buf[consumed:])
	c.buf = c.buf[:n]
}

func (c *common) forward(payloads [][]byte) {
	now := time.Now()
	for _, p := range payloads {
		c.handler.HandleTelegram(telegram.Telegram{
			Source:   c.dev.Name(),
			Received: now,
			Payload:  p,
		})
	}
}

// passive reports whether the device cannot talk back, so commands to the
// dongle are skipped.
func (c *common) passive() bool {
	k := c.dev.Kind()
	return k == serial.KindFile || k == serial.KindSimulator
}
