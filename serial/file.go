package serial

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FileDevice reads a recorded stream from a plain file or from stdin.
type FileDevice struct {
	*deviceBase
	path string
}

var _ Device = (*FileDevice)(nil)

// Path returns the file path, or StdinPath.
func (d *FileDevice) Path() string { return d.path }

func (d *FileDevice) isStdin() bool { return d.path == StdinPath }

// Open opens the file non-blocking. Stdin is switched to non-blocking mode
// instead.
func (d *FileDevice) Open(failHard bool) error {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	if d.Fd() >= 0 {
		return nil
	}
	if !d.manager.IsRunning() {
		return d.openFailed(failHard, fmt.Errorf("opening %s: %w", d.name, ErrManagerStopped))
	}

	fd := 0
	if d.isStdin() {
		if err := unix.SetNonblock(0, true); err != nil {
			return d.openFailed(failHard, fmt.Errorf("stdin: %w", err))
		}
	} else {
		if err := checkFileExists(d.path); err != nil {
			return d.openFailed(failHard, err)
		}
		var err error
		fd, err = unix.Open(d.path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			return d.openFailed(failHard, fmt.Errorf("could not open %s: %w", d.path, err))
		}
	}

	d.fd.Store(int32(fd))
	d.manager.metrics.DevicesOpened.Add(1)
	d.manager.opened(d)
	d.log.Info().Str("path", d.path).Msg("opened")
	return nil
}

// Close releases the file. Stdin is detached but left open for the process.
func (d *FileDevice) Close() error {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	closeFd := unix.Close
	if d.isStdin() {
		closeFd = func(int) error { return nil }
	}
	released, err := d.release(closeFd)
	if released {
		d.log.Info().Msg("closed")
	}
	return err
}

// Send is accepted and dropped, a recording has nobody to answer.
func (d *FileDevice) Send(data []byte) error {
	if d.Fd() < 0 {
		return fmt.Errorf("sending to %s: %w", d.name, ErrClosed)
	}
	if len(data) > 0 {
		d.log.Debug().Str("data", SafeString(data)).Msg("dropping write to file source")
	}
	return nil
}

func (d *FileDevice) Receive() []byte { return d.receive() }

// Working is true until end of file has been read.
func (d *FileDevice) Working() bool { return d.Fd() >= 0 }
