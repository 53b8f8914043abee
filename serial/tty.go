package serial

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// ttyOpenRetryDelay is how long a failed open waits before its single retry.
var ttyOpenRetryDelay = time.Second

// TTYDevice is a serial character device configured raw 8N1.
type TTYDevice struct {
	*deviceBase
	path     string
	baudRate int

	openedAt atomic.Int64 // unix nano of the last (re)open
}

var _ Device = (*TTYDevice)(nil)

// Path returns the device node, e.g. /dev/ttyUSB0.
func (d *TTYDevice) Path() string  { return d.path }
func (d *TTYDevice) BaudRate() int { return d.baudRate }

// Open opens the port non-blocking, locks it exclusively and configures it
// raw 8N1 at the device baud rate.
func (d *TTYDevice) Open(failHard bool) error {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	if d.Fd() >= 0 {
		return nil
	}
	if !d.manager.IsRunning() {
		return d.openFailed(failHard, fmt.Errorf("opening %s: %w", d.name, ErrManagerStopped))
	}
	if !ValidBaudRate(d.baudRate) {
		err := fmt.Errorf("%w: %d", ErrUnsupportedBaudRate, d.baudRate)
		d.log.Error().Err(err).Msg("cannot configure tty")
		return err
	}
	if err := checkCharacterDevice(d.path); err != nil {
		return d.openFailed(failHard, err)
	}
	fd, err := openTTY(d.path, d.baudRate)
	if err != nil {
		return d.openFailed(failHard, fmt.Errorf("could not open %s with %d baud N81: %w", d.path, d.baudRate, err))
	}

	d.fd.Store(int32(fd))
	d.wfd.Store(int32(fd))
	d.openedAt.Store(time.Now().UnixNano())
	d.manager.metrics.DevicesOpened.Add(1)
	d.manager.opened(d)
	d.log.Info().Str("path", d.path).Int("baud", d.baudRate).Msg("opened")
	return nil
}

// Close unlocks and closes the port.
func (d *TTYDevice) Close() error {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	released, err := d.release(closeLocked)
	if released {
		d.log.Info().Msg("closed")
	}
	return err
}

func (d *TTYDevice) Send(data []byte) error { return d.send(data) }

func (d *TTYDevice) Receive() []byte { return d.receive() }

// Working reports whether the device node is still present, which stops
// being true when a usb dongle is pulled.
func (d *TTYDevice) Working() bool {
	if d.Fd() < 0 {
		return false
	}
	_, err := os.Stat(d.path)
	return err == nil
}

// CheckIfShouldReopen closes and reopens the handle in place once the
// manager's reopen interval has elapsed and nothing is waiting to be read.
// The device stays registered; only its handle may change.
func (d *TTYDevice) CheckIfShouldReopen() {
	interval := d.manager.ReopenAfter()
	if interval <= 0 || d.Fd() < 0 {
		return
	}
	since := time.Since(time.Unix(0, d.openedAt.Load()))
	if since <= interval {
		return
	}

	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.readMu.Lock()
	defer d.readMu.Unlock()
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	fd := d.Fd()
	if fd < 0 {
		return
	}
	if available, err := inputPending(fd); err == nil && available > 0 {
		return
	}

	d.log.Debug().Dur("since", since).Msg("reopening")
	_ = closeLocked(fd)
	d.manager.metrics.Reopens.Add(1)

	nfd, err := openTTY(d.path, d.baudRate)
	if err != nil {
		d.fd.Store(noFd)
		d.wfd.Store(noFd)
		d.manager.metrics.ReopenErrors.Add(1)
		d.manager.metrics.DevicesClosed.Add(1)
		d.log.Error().Err(err).Msgf("could not re-open %s with %d baud N81", d.path, d.baudRate)
		d.manager.closed(d)
		return
	}
	d.fd.Store(int32(nfd))
	d.wfd.Store(int32(nfd))
	d.openedAt.Store(time.Now().UnixNano())
	d.manager.refresh()
}

// openTTY opens, locks and configures path. The open is retried once since
// freshly enumerated usb serial devices are sometimes not ready yet.
func openTTY(path string, baudRate int) (int, error) {
	var fd int
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		fd, err = unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err == nil {
			break
		}
		if attempt == 0 {
			time.Sleep(ttyOpenRetryDelay)
		}
	}
	if err != nil {
		return noFd, err
	}

	if err = lockExclusive(fd); err != nil {
		_ = unix.Close(fd)
		return noFd, err
	}
	if err = makeRaw(fd, baudRate); err != nil {
		_ = closeLocked(fd)
		return noFd, err
	}
	return fd, nil
}

func lockExclusive(fd int) error {
	err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrDeviceLocked
	}
	return fmt.Errorf("flock: %w", err)
}

func closeLocked(fd int) error {
	_ = unix.Flock(fd, unix.LOCK_UN)
	return unix.Close(fd)
}
