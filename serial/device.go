package serial

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// allow tests to override the raw descriptor calls
var (
	sysRead  = unix.Read
	sysWrite = unix.Write
)

// noFd marks a device without an underlying handle.
const noFd = -1

// Kind identifies a device variant.
type Kind int

const (
	KindTTY Kind = iota
	KindCommand
	KindFile
	KindSimulator
)

func (k Kind) String() string {
	switch k {
	case KindTTY:
		return "tty"
	case KindCommand:
		return "command"
	case KindFile:
		return "file"
	case KindSimulator:
		return "simulator"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Device is one communication endpoint owned by a Manager.
type Device interface {
	// Open acquires the underlying resource and registers the device with
	// its manager. With failHard the failure is reported at error level.
	Open(failHard bool) error
	// Close releases the handle. Calling it more than once is a no-op.
	Close() error
	// Send writes all of data, blocking until done.
	Send(data []byte) error
	// Receive drains the bytes available right now without blocking.
	Receive() []byte
	// Working is the variant specific liveness probe.
	Working() bool
	// CheckIfShouldReopen recycles the handle when the reopen timer expired.
	CheckIfShouldReopen()
	// Fd returns the handle used for readiness waits, or -1.
	Fd() int
	Name() string
	Kind() Kind
}

// member is implemented by every device a Manager creates.
type member interface {
	base() *deviceBase
}

// deviceBase carries the state shared by all variants.
type deviceBase struct {
	manager *Manager
	self    Device
	name    string
	kind    Kind
	log     zerolog.Logger

	fd  atomic.Int32 // read side, also the select handle
	wfd atomic.Int32 // write side

	// stateMu serializes open, close and reopen.
	stateMu sync.Mutex
	readMu  sync.Mutex
	writeMu sync.Mutex

	cbMu   sync.RWMutex
	onData func()

	fdWarned atomic.Bool // handle was reported as beyond selectFdLimit

	eofCloses bool // EOF means the source is gone for good
	ascii     bool // dump received bytes as text rather than hex
}

func newDeviceBase(m *Manager, name string, kind Kind) *deviceBase {
	b := &deviceBase{
		manager: m,
		name:    name,
		kind:    kind,
		log:     m.log.With().Str("device", name).Str("kind", kind.String()).Logger(),
	}
	b.fd.Store(noFd)
	b.wfd.Store(noFd)
	return b
}

func (b *deviceBase) base() *deviceBase { return b }

func (b *deviceBase) Fd() int      { return int(b.fd.Load()) }
func (b *deviceBase) Name() string { return b.name }
func (b *deviceBase) Kind() Kind   { return b.kind }

func (b *deviceBase) CheckIfShouldReopen() {}

func (b *deviceBase) setCallback(cb func()) error {
	b.cbMu.Lock()
	defer b.cbMu.Unlock()
	if b.onData != nil {
		return ErrCallbackAlreadySet
	}
	b.onData = cb
	return nil
}

func (b *deviceBase) callback() func() {
	b.cbMu.RLock()
	defer b.cbMu.RUnlock()
	return b.onData
}

func (b *deviceBase) listening() bool {
	return b.callback() != nil
}

// send writes all of data to the write handle, retrying on EINTR and EAGAIN.
func (b *deviceBase) send(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	fd := int(b.wfd.Load())
	if fd < 0 {
		return fmt.Errorf("sending to %s: %w", b.name, ErrClosed)
	}

	start := time.Now()
	written := 0
	var err error
	for written < len(data) {
		var n int
		n, err = sysWrite(fd, data[written:])
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) {
				time.Sleep(time.Millisecond)
				continue
			}
			break
		}
		written += n
	}
	b.manager.metrics.recordWrite(written, time.Since(start), err)
	if err != nil {
		b.log.Error().Err(err).Int("written", written).Int("len", len(data)).Msg("write failed")
		return fmt.Errorf("sending to %s: %w", b.name, err)
	}

	b.log.Debug().Func(func(e *zerolog.Event) { b.dump(e, data) }).Msg("sent")
	return nil
}

// receive drains the read handle. A close triggered by EOF or a bad
// descriptor runs after the read lock has been released.
func (b *deviceBase) receive() []byte {
	var out []byte
	closeAfter, failed := false, false

	b.readMu.Lock()
	buf := b.manager.readPool.Get()
loop:
	for {
		fd := b.Fd()
		if fd < 0 {
			break
		}
		n, err := sysRead(fd, buf)
		switch {
		case err == nil && n > 0:
			out = append(out, buf[:n]...)
		case err == nil:
			if b.eofCloses {
				b.manager.metrics.EOFs.Add(1)
				b.log.Debug().Msg("end of stream")
				closeAfter = true
			}
			break loop
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			break loop
		case errors.Is(err, unix.EBADF):
			b.log.Debug().Err(err).Msg("descriptor no longer valid")
			closeAfter, failed = true, true
			break loop
		default:
			b.log.Warn().Err(err).Msg("read failed")
			failed = true
			break loop
		}
	}
	b.manager.readPool.Put(buf)
	b.readMu.Unlock()

	b.manager.metrics.recordRead(len(out), failed)
	if len(out) > 0 {
		b.log.Debug().Func(func(e *zerolog.Event) { b.dump(e, out) }).Msg("received")
	}
	if closeAfter {
		_ = b.self.Close()
	}
	return out
}

func (b *deviceBase) dump(e *zerolog.Event, data []byte) {
	e.Int("len", len(data))
	if b.ascii {
		e.Str("data", SafeString(data))
		return
	}
	e.Hex("data", data)
}

// release drops the handles and unregisters from the manager. The caller
// holds stateMu. It reports whether a handle was actually released.
func (b *deviceBase) release(closeFd func(fd int) error) (bool, error) {
	fd := int(b.fd.Swap(noFd))
	wfd := int(b.wfd.Swap(noFd))
	if fd < 0 {
		return false, nil
	}
	err := closeFd(fd)
	if wfd >= 0 && wfd != fd {
		err = errors.Join(err, unix.Close(wfd))
	}
	b.manager.metrics.DevicesClosed.Add(1)
	b.manager.closed(b.self)
	return true, err
}

// openFailed records and logs a failed open. Absence is only interesting
// when the caller needs the device, a lock conflict always is.
func (b *deviceBase) openFailed(failHard bool, err error) error {
	b.manager.metrics.OpenFailures.Add(1)
	switch {
	case errors.Is(err, ErrDeviceLocked):
		b.manager.metrics.LockConflicts.Add(1)
		b.log.Warn().Err(err).Msg("device is already in use, is another instance pointed at the same hardware?")
	case failHard:
		b.log.Error().Err(err).Msg("could not open device")
	default:
		b.log.Debug().Err(err).Msg("could not open device")
	}
	return err
}
