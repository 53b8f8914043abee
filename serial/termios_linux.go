//go:build linux

package serial

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var baudSpeeds = map[BaudRate]uint32{
	Baud9600:   unix.B9600,
	Baud19200:  unix.B19200,
	Baud38400:  unix.B38400,
	Baud57600:  unix.B57600,
	Baud115200: unix.B115200,
}

// makeRaw puts the tty in raw 8N1 mode without flow control. VMIN and
// VTIME are zero so reads never block beyond O_NONBLOCK.
func makeRaw(fd int, baudRate int) error {
	speed, ok := baudSpeeds[BaudRate(baudRate)]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedBaudRate, baudRate)
	}

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("tcgetattr: %w", err)
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("tcsetattr: %w", err)
	}
	return nil
}

// inputPending returns the number of bytes queued for reading on fd.
func inputPending(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.TIOCINQ)
}
