package serial

import "errors"

var (
	ErrClosed              = errors.New("serial: device closed")
	ErrDeviceNotFound      = errors.New("serial: device does not exist")
	ErrDeviceLocked        = errors.New("serial: device is locked by another process")
	ErrUnsupportedBaudRate = errors.New("serial: unsupported baud rate")
	ErrForeignDevice       = errors.New("serial: device was not created by this manager")
	ErrCallbackAlreadySet  = errors.New("serial: device already has a listener")
	ErrNotSimulator        = errors.New("serial: device is not a simulator")
	ErrManagerStopped      = errors.New("serial: manager stopped")
)

var (
	ErrMsgNilDevice = "device is nil"
)
