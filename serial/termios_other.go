//go:build !linux

package serial

import (
	"errors"

	"golang.org/x/sys/unix"
)

func makeRaw(fd int, baudRate int) error {
	return errors.New("serial: tty configuration is only implemented for linux")
}

func inputPending(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.FIONREAD)
}
